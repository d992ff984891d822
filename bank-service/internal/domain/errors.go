package domain

import "errors"

var (
	ErrInvalidAmount       = errors.New("amount must be a positive number with at most two decimal places")
	ErrSameAccount         = errors.New("source and destination accounts must differ")
	ErrInvalidCredentials  = errors.New("invalid account number or secret key")
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrIdempotencyConflict = errors.New("idempotency key already used for a different transfer")

	// ErrDuplicateTransfer is returned by the store when a concurrent transfer
	// committed the same idempotency key first.
	ErrDuplicateTransfer = errors.New("duplicate transfer idempotency key")
)
