/**
 * @description
 * Transfer records and amount validation rules for the ledger.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferKind identifies which transfer variant produced a row.
type TransferKind string

const (
	// TransferKindPlatformCharge is a debit-authenticated transfer into the platform account.
	TransferKindPlatformCharge TransferKind = "platform_charge"
	// TransferKindPlatformPayout is a credit-only transfer out of the platform account.
	TransferKindPlatformPayout TransferKind = "platform_payout"
)

// Transfer is the row written for every committed transfer.
type Transfer struct {
	ID               uuid.UUID       `json:"id"`
	IdempotencyKey   *string         `json:"idempotency_key,omitempty"`
	Kind             TransferKind    `json:"kind"`
	FromAccountNo    string          `json:"from_account_no"`
	ToAccountNo      string          `json:"to_account_no"`
	Amount           decimal.Decimal `json:"amount"`
	FromBalanceAfter decimal.Decimal `json:"from_balance_after"`
	ToBalanceAfter   decimal.Decimal `json:"to_balance_after"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Matches reports whether a stored transfer describes the same movement of money.
func (t Transfer) Matches(kind TransferKind, from, to string, amount decimal.Decimal) bool {
	return t.Kind == kind && t.FromAccountNo == from && t.ToAccountNo == to && t.Amount.Equal(amount)
}

// TransferResult is what the engine hands back to callers.
type TransferResult struct {
	Transfer Transfer
	// Replayed is set when the result was served from an earlier transfer with the same key.
	Replayed bool
}

// ValidateAmount enforces a positive amount with cent precision.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}
