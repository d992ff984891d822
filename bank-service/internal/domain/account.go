/**
 * @description
 * Domain models for ledger accounts held by the bank-service.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a ledger account. Balances are only mutated by the transfer engine.
type Account struct {
	AccountNo  string          `json:"account_no"`
	Balance    decimal.Decimal `json:"balance"`
	SecretHash string          `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}
