package orders

import "errors"

var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already exists")
	// ErrNotRetryable: a payment retry was requested for an order that is
	// not in Failed or Expired.
	ErrNotRetryable = errors.New("order is not retryable")
	// ErrConflict: a competing trigger won the guarded transition first.
	ErrConflict = errors.New("order state changed concurrently")
)
