/**
 * @description
 * The transfer engine. Every movement of money goes through Service.transfer,
 * which validates the request in a fixed order and performs both balance
 * mutations plus the transfer row inside one ledger transaction.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mehedi-4/LMS/bank-service/internal/domain"
	"github.com/mehedi-4/LMS/bank-service/internal/store"
	"github.com/shopspring/decimal"
)

const (
	eventsExchange           = "lms.events"
	transferCompletedRouting = "ledger.transfer.completed"
)

// SecretHasher hashes and verifies account secrets.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Service provides balance lookups and the two transfer variants.
type Service struct {
	ledger            store.Ledger
	hasher            SecretHasher
	publisher         EventPublisher
	platformAccountNo string
	logger            *slog.Logger
}

// NewService creates a new ledger service.
func NewService(ledger store.Ledger, hasher SecretHasher, publisher EventPublisher, platformAccountNo string, logger *slog.Logger) *Service {
	return &Service{
		ledger:            ledger,
		hasher:            hasher,
		publisher:         publisher,
		platformAccountNo: platformAccountNo,
		logger:            logger,
	}
}

// PlatformAccountNo returns the intermediary account that receives student payments.
func (s *Service) PlatformAccountNo() string {
	return s.platformAccountNo
}

// ChargeInput is a debit-authenticated transfer from a student into the platform account.
type ChargeInput struct {
	FromAccountNo  string
	SecretKey      string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// PayoutInput is a credit-only transfer from the platform account.
type PayoutInput struct {
	ToAccountNo    string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// GetBalance returns the current balance of an account.
func (s *Service) GetBalance(ctx context.Context, accountNo string) (*domain.Account, error) {
	return s.ledger.GetAccount(ctx, accountNo)
}

// GetTransfer returns a committed transfer by idempotency key.
func (s *Service) GetTransfer(ctx context.Context, idempotencyKey string) (*domain.Transfer, error) {
	return s.ledger.FindTransferByKey(ctx, idempotencyKey)
}

// TransferToPlatform moves money from an authenticated account into the platform account.
func (s *Service) TransferToPlatform(ctx context.Context, in ChargeInput) (*domain.TransferResult, error) {
	return s.transfer(ctx, transferRequest{
		kind:           domain.TransferKindPlatformCharge,
		from:           in.FromAccountNo,
		to:             s.platformAccountNo,
		amount:         in.Amount,
		idempotencyKey: in.IdempotencyKey,
		authorize: func(ctx context.Context, tx store.LedgerTx) error {
			hash, err := tx.SecretHash(ctx, in.FromAccountNo)
			if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
				return err
			}
			// A missing account verifies against an empty hash and fails the same way.
			if !s.hasher.Verify(hash, in.SecretKey) {
				return domain.ErrInvalidCredentials
			}
			return nil
		},
	})
}

// PayoutFromPlatform moves money out of the platform account. Callers are trusted
// service-to-service clients; no account secret is involved.
func (s *Service) PayoutFromPlatform(ctx context.Context, in PayoutInput) (*domain.TransferResult, error) {
	return s.transfer(ctx, transferRequest{
		kind:           domain.TransferKindPlatformPayout,
		from:           s.platformAccountNo,
		to:             in.ToAccountNo,
		amount:         in.Amount,
		idempotencyKey: in.IdempotencyKey,
	})
}

// SeedAccount creates an account with a hashed secret. Used by the seed tool only.
func (s *Service) SeedAccount(ctx context.Context, accountNo, secret string, balance decimal.Decimal) (*domain.Account, error) {
	if strings.TrimSpace(accountNo) == "" || secret == "" {
		return nil, errors.New("account number and secret are required")
	}
	if balance.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}
	account := &domain.Account{AccountNo: accountNo, Balance: balance.Round(2), SecretHash: hash}
	if err := s.ledger.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

type transferRequest struct {
	kind           domain.TransferKind
	from           string
	to             string
	amount         decimal.Decimal
	idempotencyKey string
	// authorize runs before any lock is taken. A nil authorize means the caller is trusted.
	authorize func(ctx context.Context, tx store.LedgerTx) error
}

func (s *Service) transfer(ctx context.Context, req transferRequest) (*domain.TransferResult, error) {
	if err := domain.ValidateAmount(req.amount); err != nil {
		return nil, err
	}
	if req.from == req.to {
		return nil, domain.ErrSameAccount
	}

	var result *domain.TransferResult
	err := s.ledger.RunInTx(ctx, func(tx store.LedgerTx) error {
		if req.idempotencyKey != "" {
			replay, err := s.replay(ctx, tx, req, true)
			if err != nil {
				return err
			}
			if replay != nil {
				result = replay
				return nil
			}
		}

		if req.authorize != nil {
			if err := req.authorize(ctx, tx); err != nil {
				return err
			}
		}

		accounts, err := tx.LockAccounts(ctx, req.from, req.to)
		if err != nil {
			return err
		}
		// A concurrent request with the same key may have committed while we
		// waited on the row locks. The read after the lock sees its row.
		if req.idempotencyKey != "" {
			replay, err := s.replay(ctx, tx, req, false)
			if err != nil {
				return err
			}
			if replay != nil {
				result = replay
				return nil
			}
		}
		source, ok := accounts[req.from]
		if !ok {
			if req.authorize != nil {
				return domain.ErrInvalidCredentials
			}
			return fmt.Errorf("platform account %s: %w", req.from, domain.ErrAccountNotFound)
		}
		if source.Balance.LessThan(req.amount) {
			return domain.ErrInsufficientFunds
		}
		if _, ok := accounts[req.to]; !ok {
			return fmt.Errorf("destination account %s: %w", req.to, domain.ErrAccountNotFound)
		}

		fromAfter, err := tx.Debit(ctx, req.from, req.amount)
		if err != nil {
			return err
		}
		toAfter, err := tx.Credit(ctx, req.to, req.amount)
		if err != nil {
			return err
		}

		transfer := domain.Transfer{
			ID:               uuid.New(),
			Kind:             req.kind,
			FromAccountNo:    req.from,
			ToAccountNo:      req.to,
			Amount:           req.amount,
			FromBalanceAfter: fromAfter,
			ToBalanceAfter:   toAfter,
		}
		if req.idempotencyKey != "" {
			key := req.idempotencyKey
			transfer.IdempotencyKey = &key
		}
		if err := tx.InsertTransfer(ctx, &transfer); err != nil {
			return err
		}

		result = &domain.TransferResult{Transfer: transfer}
		return nil
	})

	if errors.Is(err, domain.ErrDuplicateTransfer) && req.idempotencyKey != "" {
		// Lost a race against a concurrent request carrying the same key; our
		// writes were rolled back, so serve the winner's result.
		existing, lookupErr := s.ledger.FindTransferByKey(ctx, req.idempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if !existing.Matches(req.kind, req.from, req.to, req.amount) {
			return nil, domain.ErrIdempotencyConflict
		}
		return &domain.TransferResult{Transfer: *existing, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.logger.Info("transfer committed",
			"transfer_id", result.Transfer.ID,
			"kind", result.Transfer.Kind,
			"from", result.Transfer.FromAccountNo,
			"to", result.Transfer.ToAccountNo,
			"amount", result.Transfer.Amount.StringFixed(2),
		)
		s.publishCompleted(ctx, result.Transfer)
	}
	return result, nil
}

// replay returns the stored result for the request's key, or nil when the key
// is unused. reauthorize is false once the caller has already run authorize.
func (s *Service) replay(ctx context.Context, tx store.LedgerTx, req transferRequest, reauthorize bool) (*domain.TransferResult, error) {
	existing, err := tx.FindTransferByKey(ctx, req.idempotencyKey)
	if errors.Is(err, domain.ErrTransferNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !existing.Matches(req.kind, req.from, req.to, req.amount) {
		return nil, domain.ErrIdempotencyConflict
	}
	// A replay for the authenticated variant still has to prove the secret.
	if reauthorize && req.authorize != nil {
		if err := req.authorize(ctx, tx); err != nil {
			return nil, err
		}
	}
	return &domain.TransferResult{Transfer: *existing, Replayed: true}, nil
}

type transferCompletedEvent struct {
	TransferID    string    `json:"transfer_id"`
	Kind          string    `json:"kind"`
	FromAccountNo string    `json:"from_account_no"`
	ToAccountNo   string    `json:"to_account_no"`
	Amount        string    `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

func (s *Service) publishCompleted(ctx context.Context, transfer domain.Transfer) {
	if s.publisher == nil {
		return
	}

	event := transferCompletedEvent{
		TransferID:    transfer.ID.String(),
		Kind:          string(transfer.Kind),
		FromAccountNo: transfer.FromAccountNo,
		ToAccountNo:   transfer.ToAccountNo,
		Amount:        transfer.Amount.StringFixed(2),
		Timestamp:     time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, eventsExchange, transferCompletedRouting, event); err != nil {
		s.logger.Warn("failed to publish transfer event", "transfer_id", transfer.ID, "error", err)
	}
}
