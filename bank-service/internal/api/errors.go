package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mehedi-4/LMS/bank-service/internal/domain"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domain.ErrSameAccount, http.StatusBadRequest, "same_account"},
	{domain.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{domain.ErrTransferNotFound, http.StatusNotFound, "transfer_not_found"},
	{domain.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
}

// writeError maps engine errors to a status and a stable code. Anything not in
// the table is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			writeJSON(w, entry.status, errorResponse{Success: false, Error: entry.err.Error(), Code: entry.code})
			return
		}
	}
	logger.Error("unhandled bank error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Success: false, Error: "Internal server error", Code: "internal"})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Success: false, Error: message, Code: "bad_request"})
}
