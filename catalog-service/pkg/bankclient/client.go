/**
 * @description
 * Client for the bank-service settlement API.
 *
 * Transfers are sent exactly once per call; safety on retry comes from the
 * idempotency key the caller supplies, not from this client. Only reads
 * (balance and transfer lookups) are retried, with a short backoff, when the
 * bank is unreachable or answers with a 5xx.
 */
package bankclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stable error codes returned by the bank.
const (
	CodeInsufficientFunds   = "insufficient_funds"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeAccountNotFound     = "account_not_found"
	CodeTransferNotFound    = "transfer_not_found"
	CodeIdempotencyConflict = "idempotency_conflict"
	CodeInvalidAmount       = "invalid_amount"
)

var (
	// ErrUnavailable covers timeouts, network failures, 5xx responses and
	// unreadable success bodies. The outcome of a transfer is unknown.
	ErrUnavailable = errors.New("bank service unavailable")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("bank resource not found")
)

// APIError is a non-2xx answer from the bank.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bank returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode >= 500:
		return ErrUnavailable
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ChargeRequest debits a student account into the platform account.
type ChargeRequest struct {
	FromAccountNo  string
	SecretKey      string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// PayoutRequest credits an account from the platform account.
type PayoutRequest struct {
	ToAccountNo    string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// TransferResult is the bank's answer to a committed or replayed transfer.
type TransferResult struct {
	TransferID           string           `json:"transfer_id"`
	FromAccountNo        string           `json:"from_account_no"`
	ToAccountNo          string           `json:"to_account_no"`
	Amount               decimal.Decimal  `json:"amount"`
	NewBalance           decimal.Decimal  `json:"new_balance"`
	Replayed             bool             `json:"replayed"`
	LMSNewBalance        *decimal.Decimal `json:"lms_new_balance,omitempty"`
	InstructorNewBalance *decimal.Decimal `json:"instructor_new_balance,omitempty"`
}

// TransferRecord is a stored transfer looked up by idempotency key.
type TransferRecord struct {
	TransferID     string          `json:"transfer_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Kind           string          `json:"kind"`
	FromAccountNo  string          `json:"from_account_no"`
	ToAccountNo    string          `json:"to_account_no"`
	Amount         decimal.Decimal `json:"amount"`
}

// Client is a client for the bank service.
type Client struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
	readRetries int
	backoff     time.Duration
}

// NewClient creates a bank client. Every request is bounded by timeout.
func NewClient(baseURL, internalKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		internalKey: strings.TrimSpace(internalKey),
		httpClient:  &http.Client{Timeout: timeout},
		readRetries: 3,
		backoff:     200 * time.Millisecond,
	}
}

// Charge performs the debit-authenticated transfer. It is never retried here.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*TransferResult, error) {
	payload := map[string]string{
		"from_account_no": req.FromAccountNo,
		"secret_key":      req.SecretKey,
		"amount":          req.Amount.StringFixed(2),
		"idempotency_key": req.IdempotencyKey,
	}
	var result TransferResult
	if err := c.do(ctx, http.MethodPost, "/bank-api/transfer", payload, req.IdempotencyKey, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Payout performs the credit-only transfer from the platform account.
func (c *Client) Payout(ctx context.Context, req PayoutRequest) (*TransferResult, error) {
	payload := map[string]string{
		"to_account_no":   req.ToAccountNo,
		"amount":          req.Amount.StringFixed(2),
		"idempotency_key": req.IdempotencyKey,
	}
	var result TransferResult
	if err := c.do(ctx, http.MethodPost, "/bank-api/transfer-lms-to-instructor", payload, req.IdempotencyKey, true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBalance reads an account balance.
func (c *Client) GetBalance(ctx context.Context, accountNo string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	err := c.withReadRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/bank-api/balance", map[string]string{"account_no": accountNo}, "", false, &out)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

// GetTransfer looks up a committed transfer by idempotency key. ErrNotFound
// means the bank never applied a transfer with that key.
func (c *Client) GetTransfer(ctx context.Context, idempotencyKey string) (*TransferRecord, error) {
	var record TransferRecord
	path := "/bank-api/transfers/" + url.PathEscape(idempotencyKey)
	err := c.withReadRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, "", true, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) withReadRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.readRetries; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		if attempt == c.readRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(c.backoff * time.Duration(1<<attempt)):
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, idempotencyKey string, internal bool, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: base URL is not configured", ErrUnavailable)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal bank request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if internal && c.internalKey != "" {
		req.Header.Set("X-Internal-API-Key", c.internalKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &errBody) == nil {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: failed to parse response: %v", ErrUnavailable, err)
		}
	}
	return nil
}
