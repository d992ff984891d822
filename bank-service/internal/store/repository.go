/**
 * @description
 * This file defines the ledger contracts used by the bank-service. The `Ledger`
 * is the only component allowed to touch account balances, and it only does so
 * through a `LedgerTx` handed to the transfer engine inside one database
 * transaction.
 */

package store

import (
	"context"

	"github.com/mehedi-4/LMS/bank-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Ledger is the durable account store.
type Ledger interface {
	GetAccount(ctx context.Context, accountNo string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindTransferByKey(ctx context.Context, idempotencyKey string) (*domain.Transfer, error)

	// RunInTx executes fn in a single all-or-nothing transaction. Any error
	// returned by fn rolls back every write made through the LedgerTx.
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx exposes the primitives only valid inside an open transaction.
type LedgerTx interface {
	FindTransferByKey(ctx context.Context, idempotencyKey string) (*domain.Transfer, error)
	SecretHash(ctx context.Context, accountNo string) (string, error)

	// LockAccounts row-locks the given accounts in a stable order and returns
	// the ones that exist, keyed by account number.
	LockAccounts(ctx context.Context, accountNos ...string) (map[string]domain.Account, error)

	Debit(ctx context.Context, accountNo string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, accountNo string, amount decimal.Decimal) (decimal.Decimal, error)
	InsertTransfer(ctx context.Context, transfer *domain.Transfer) error
}
