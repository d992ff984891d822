package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
	"github.com/mehedi-4/LMS/catalog-service/pkg/bankclient"
	"github.com/shopspring/decimal"
)

const payoutCompletedRouting = "instructor.payout.completed"

// PayoutResult is the outcome of an instructor payout.
type PayoutResult struct {
	InstructorID         int64           `json:"instructorId"`
	TransferID           string          `json:"transferId"`
	Amount               decimal.Decimal `json:"amount"`
	InstructorNewBalance string          `json:"instructorNewBalance,omitempty"`
	Replayed             bool            `json:"replayed"`
}

// PayoutService pays instructors out of the platform account.
type PayoutService struct {
	users     store.UserRepository
	bank      BankClient
	publisher EventPublisher
	logger    *slog.Logger
}

// NewPayoutService creates a new payout service.
func NewPayoutService(users store.UserRepository, bank BankClient, publisher EventPublisher, logger *slog.Logger) *PayoutService {
	return &PayoutService{users: users, bank: bank, publisher: publisher, logger: logger}
}

// PayInstructor credits an instructor's bank account. The caller's key is
// namespaced so it never collides with enrollment attempt keys.
func (s *PayoutService) PayInstructor(ctx context.Context, instructorID int64, amount decimal.Decimal, idempotencyKey string) (*PayoutResult, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidInput)
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount must be positive with at most two decimal places", domain.ErrInvalidInput)
	}

	instructor, err := s.users.FindInstructorByID(ctx, instructorID)
	if err != nil {
		return nil, err
	}
	if !instructor.Configured() {
		return nil, domain.ErrPaymentNotConfigured
	}

	result, err := s.bank.Payout(ctx, bankclient.PayoutRequest{
		ToAccountNo:    instructor.BankAccNo,
		Amount:         amount,
		IdempotencyKey: "payout:" + idempotencyKey,
	})
	if err != nil {
		return nil, mapBankTransferError(err)
	}

	s.logger.Info("instructor payout settled", "instructor_id", instructorID, "transfer_id", result.TransferID, "amount", amount.StringFixed(2), "replayed", result.Replayed)
	if !result.Replayed {
		publishEvent(ctx, s.publisher, s.logger, payoutCompletedRouting, map[string]interface{}{
			"instructor_id": instructorID,
			"transfer_id":   result.TransferID,
			"amount":        amount.StringFixed(2),
			"timestamp":     time.Now().UTC(),
		})
	}

	out := &PayoutResult{
		InstructorID: instructorID,
		TransferID:   result.TransferID,
		Amount:       amount,
		Replayed:     result.Replayed,
	}
	if result.InstructorNewBalance != nil {
		out.InstructorNewBalance = result.InstructorNewBalance.StringFixed(2)
	}
	return out, nil
}

// mapBankTransferError turns a bank client error into a catalog sentinel.
func mapBankTransferError(err error) error {
	var apiErr *bankclient.APIError
	switch {
	case !errors.As(err, &apiErr) || errors.Is(err, bankclient.ErrUnavailable):
		return fmt.Errorf("%w: %v", domain.ErrSettlementUnavailable, err)
	case apiErr.Code == bankclient.CodeInsufficientFunds:
		return domain.ErrInsufficientFunds
	default:
		return fmt.Errorf("%w: %s", domain.ErrPaymentRejected, apiErr.Message)
	}
}
