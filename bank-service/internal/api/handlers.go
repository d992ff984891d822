/**
 * @description
 * HTTP handlers for the settlement API. Handlers decode and coerce request
 * parameters only; every business rule is enforced by the transfer engine.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mehedi-4/LMS/bank-service/internal/app"
	"github.com/mehedi-4/LMS/bank-service/internal/domain"
	"github.com/shopspring/decimal"
)

// TransferService is the subset of the engine used by the handlers.
type TransferService interface {
	GetBalance(ctx context.Context, accountNo string) (*domain.Account, error)
	GetTransfer(ctx context.Context, idempotencyKey string) (*domain.Transfer, error)
	TransferToPlatform(ctx context.Context, in app.ChargeInput) (*domain.TransferResult, error)
	PayoutFromPlatform(ctx context.Context, in app.PayoutInput) (*domain.TransferResult, error)
}

// Handler holds the transfer engine that handlers interact with.
type Handler struct {
	service TransferService
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service TransferService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type balanceRequest struct {
	AccountNo string `json:"account_no"`
}

type balanceResponse struct {
	Success   bool   `json:"success"`
	AccountNo string `json:"account_no"`
	Balance   string `json:"balance"`
}

type transferRequest struct {
	FromAccountNo  string           `json:"from_account_no"`
	SecretKey      string           `json:"secret_key"`
	Amount         *decimal.Decimal `json:"amount"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type payoutRequest struct {
	ToAccountNo    string           `json:"to_account_no"`
	Amount         *decimal.Decimal `json:"amount"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type transferResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransferID    string `json:"transfer_id"`
	FromAccountNo string `json:"from_account_no"`
	ToAccountNo   string `json:"to_account_no"`
	Amount        string `json:"amount"`
	NewBalance    string `json:"new_balance"`
	Replayed      bool   `json:"replayed"`
}

type payoutResponse struct {
	transferResponse
	LMSNewBalance        string `json:"lms_new_balance"`
	InstructorNewBalance string `json:"instructor_new_balance"`
}

type transferRecordResponse struct {
	Success          bool   `json:"success"`
	TransferID       string `json:"transfer_id"`
	IdempotencyKey   string `json:"idempotency_key"`
	Kind             string `json:"kind"`
	FromAccountNo    string `json:"from_account_no"`
	ToAccountNo      string `json:"to_account_no"`
	Amount           string `json:"amount"`
	FromBalanceAfter string `json:"from_balance_after"`
	ToBalanceAfter   string `json:"to_balance_after"`
	CreatedAt        string `json:"created_at"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	accountNo := strings.TrimSpace(req.AccountNo)
	if accountNo == "" {
		badRequest(w, "Account number is required")
		return
	}

	account, err := h.service.GetBalance(r.Context(), accountNo)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Success:   true,
		AccountNo: account.AccountNo,
		Balance:   account.Balance.StringFixed(2),
	})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.FromAccountNo) == "" || req.SecretKey == "" || req.Amount == nil {
		badRequest(w, "Missing required fields")
		return
	}

	result, err := h.service.TransferToPlatform(r.Context(), app.ChargeInput{
		FromAccountNo:  strings.TrimSpace(req.FromAccountNo),
		SecretKey:      req.SecretKey,
		Amount:         *req.Amount,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newTransferResponse(result, "Transfer successful", result.Transfer.FromBalanceAfter))
}

func (h *Handler) handlePayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ToAccountNo) == "" || req.Amount == nil {
		badRequest(w, "Missing required fields")
		return
	}

	result, err := h.service.PayoutFromPlatform(r.Context(), app.PayoutInput{
		ToAccountNo:    strings.TrimSpace(req.ToAccountNo),
		Amount:         *req.Amount,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, payoutResponse{
		transferResponse:     newTransferResponse(result, "Transfer from LMS to instructor successful", result.Transfer.FromBalanceAfter),
		LMSNewBalance:        result.Transfer.FromBalanceAfter.StringFixed(2),
		InstructorNewBalance: result.Transfer.ToBalanceAfter.StringFixed(2),
	})
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "idempotencyKey")
	if key == "" {
		badRequest(w, "Idempotency key is required")
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), key)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, transferRecordResponse{
		Success:          true,
		TransferID:       transfer.ID.String(),
		IdempotencyKey:   key,
		Kind:             string(transfer.Kind),
		FromAccountNo:    transfer.FromAccountNo,
		ToAccountNo:      transfer.ToAccountNo,
		Amount:           transfer.Amount.StringFixed(2),
		FromBalanceAfter: transfer.FromBalanceAfter.StringFixed(2),
		ToBalanceAfter:   transfer.ToBalanceAfter.StringFixed(2),
		CreatedAt:        transfer.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func newTransferResponse(result *domain.TransferResult, message string, newBalance decimal.Decimal) transferResponse {
	return transferResponse{
		Success:       true,
		Message:       message,
		TransferID:    result.Transfer.ID.String(),
		FromAccountNo: result.Transfer.FromAccountNo,
		ToAccountNo:   result.Transfer.ToAccountNo,
		Amount:        result.Transfer.Amount.StringFixed(2),
		NewBalance:    newBalance.StringFixed(2),
		Replayed:      result.Replayed,
	}
}

// idempotencyKey prefers the Idempotency-Key header over the body field.
func idempotencyKey(r *http.Request, bodyKey string) string {
	if header := strings.TrimSpace(r.Header.Get("Idempotency-Key")); header != "" {
		return header
	}
	return strings.TrimSpace(bodyKey)
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
