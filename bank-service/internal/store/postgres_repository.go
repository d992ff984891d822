/**
 * @description
 * PostgreSQL implementation of the ledger. Balances are NUMERIC columns read as
 * text and parsed into shopspring decimals so no float ever touches money.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and transaction handling.
 * - github.com/shopspring/decimal: fixed-point balances.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mehedi-4/LMS/bank-service/internal/domain"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// PostgresLedger is the pgx-backed Ledger.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger creates a new ledger on top of a connection pool.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// GetAccount returns a single account without locking it.
func (l *PostgresLedger) GetAccount(ctx context.Context, accountNo string) (*domain.Account, error) {
	var account domain.Account
	var balance string
	err := l.db.QueryRow(ctx,
		"SELECT account_no, balance::text, secret_hash, created_at FROM accounts WHERE account_no = $1",
		accountNo,
	).Scan(&account.AccountNo, &balance, &account.SecretHash, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance for account %s: %w", accountNo, err)
	}
	return &account, nil
}

// CreateAccount inserts a seeded account. Accounts are never created through the API.
func (l *PostgresLedger) CreateAccount(ctx context.Context, account *domain.Account) error {
	err := l.db.QueryRow(ctx,
		"INSERT INTO accounts (account_no, balance, secret_hash) VALUES ($1, $2::numeric, $3) RETURNING created_at",
		account.AccountNo, account.Balance.StringFixed(2), account.SecretHash,
	).Scan(&account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// FindTransferByKey looks up a committed transfer by its idempotency key.
func (l *PostgresLedger) FindTransferByKey(ctx context.Context, idempotencyKey string) (*domain.Transfer, error) {
	return findTransferByKey(ctx, l.db, idempotencyKey)
}

// RunInTx begins a transaction, hands it to fn and commits only if fn succeeds.
func (l *PostgresLedger) RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresLedgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateTransfer
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresLedgerTx struct {
	tx pgx.Tx
}

func (t *postgresLedgerTx) FindTransferByKey(ctx context.Context, idempotencyKey string) (*domain.Transfer, error) {
	return findTransferByKey(ctx, t.tx, idempotencyKey)
}

func (t *postgresLedgerTx) SecretHash(ctx context.Context, accountNo string) (string, error) {
	var hash string
	err := t.tx.QueryRow(ctx, "SELECT secret_hash FROM accounts WHERE account_no = $1", accountNo).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrAccountNotFound
		}
		return "", err
	}
	return hash, nil
}

func (t *postgresLedgerTx) LockAccounts(ctx context.Context, accountNos ...string) (map[string]domain.Account, error) {
	ordered := append([]string(nil), accountNos...)
	sort.Strings(ordered)

	// Locks are taken one row at a time in account_no order so two transfers over
	// the same pair in opposite directions cannot deadlock.
	accounts := make(map[string]domain.Account, len(ordered))
	for _, accountNo := range ordered {
		if _, seen := accounts[accountNo]; seen {
			continue
		}
		var account domain.Account
		var balance string
		err := t.tx.QueryRow(ctx,
			"SELECT account_no, balance::text, created_at FROM accounts WHERE account_no = $1 FOR UPDATE",
			accountNo,
		).Scan(&account.AccountNo, &balance, &account.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("failed to lock account %s: %w", accountNo, err)
		}
		account.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance for account %s: %w", accountNo, err)
		}
		accounts[accountNo] = account
	}
	return accounts, nil
}

func (t *postgresLedgerTx) Debit(ctx context.Context, accountNo string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := t.tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance - $1::numeric WHERE account_no = $2 AND balance >= $1::numeric RETURNING balance::text",
		amount.StringFixed(2), accountNo,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrInsufficientFunds
		}
		return decimal.Zero, fmt.Errorf("failed to debit account %s: %w", accountNo, err)
	}
	return decimal.NewFromString(balance)
}

func (t *postgresLedgerTx) Credit(ctx context.Context, accountNo string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance string
	err := t.tx.QueryRow(ctx,
		"UPDATE accounts SET balance = balance + $1::numeric WHERE account_no = $2 RETURNING balance::text",
		amount.StringFixed(2), accountNo,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to credit account %s: %w", accountNo, err)
	}
	return decimal.NewFromString(balance)
}

func (t *postgresLedgerTx) InsertTransfer(ctx context.Context, transfer *domain.Transfer) error {
	query := `
		INSERT INTO transfers (
			id, idempotency_key, kind, from_account_no, to_account_no,
			amount, from_balance_after, to_balance_after
		)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric)
		RETURNING created_at
	`
	err := t.tx.QueryRow(ctx, query,
		transfer.ID,
		transfer.IdempotencyKey,
		string(transfer.Kind),
		transfer.FromAccountNo,
		transfer.ToAccountNo,
		transfer.Amount.StringFixed(2),
		transfer.FromBalanceAfter.StringFixed(2),
		transfer.ToBalanceAfter.StringFixed(2),
	).Scan(&transfer.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateTransfer
		}
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func findTransferByKey(ctx context.Context, db queryRower, idempotencyKey string) (*domain.Transfer, error) {
	query := `
		SELECT id, idempotency_key, kind, from_account_no, to_account_no,
		       amount::text, from_balance_after::text, to_balance_after::text, created_at
		FROM transfers
		WHERE idempotency_key = $1
	`
	var transfer domain.Transfer
	var kind, amount, fromAfter, toAfter string
	err := db.QueryRow(ctx, query, idempotencyKey).Scan(
		&transfer.ID,
		&transfer.IdempotencyKey,
		&kind,
		&transfer.FromAccountNo,
		&transfer.ToAccountNo,
		&amount,
		&fromAfter,
		&toAfter,
		&transfer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to find transfer: %w", err)
	}

	transfer.Kind = domain.TransferKind(kind)
	if transfer.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if transfer.FromBalanceAfter, err = decimal.NewFromString(fromAfter); err != nil {
		return nil, err
	}
	if transfer.ToBalanceAfter, err = decimal.NewFromString(toAfter); err != nil {
		return nil, err
	}
	return &transfer, nil
}
