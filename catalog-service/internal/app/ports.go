package app

import (
	"context"
	"time"

	"github.com/mehedi-4/LMS/catalog-service/pkg/bankclient"
	"github.com/shopspring/decimal"
)

const eventsExchange = "lms.events"

// BankClient is the settlement API as seen by the catalog.
type BankClient interface {
	Charge(ctx context.Context, req bankclient.ChargeRequest) (*bankclient.TransferResult, error)
	Payout(ctx context.Context, req bankclient.PayoutRequest) (*bankclient.TransferResult, error)
	GetBalance(ctx context.Context, accountNo string) (decimal.Decimal, error)
	GetTransfer(ctx context.Context, idempotencyKey string) (*bankclient.TransferRecord, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RateLimiter counts requests per scope and subject over a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}
