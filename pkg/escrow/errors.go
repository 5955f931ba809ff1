package escrow

import "errors"

// Engine error kinds. Every failed operation wraps exactly one of these,
// so callers dispatch with errors.Is and still get the human-readable
// detail of the specific failure.
var (
	ErrUnauthorized      = errors.New("caller is not allowed to perform this operation")
	ErrInvalidState      = errors.New("operation not allowed in the order's current state")
	ErrOrderNotFound     = errors.New("order not found")
	ErrUserNotFound      = errors.New("user is not registered on the platform")
	ErrAlreadyRegistered = errors.New("seller is already registered")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSlippageExceeded  = errors.New("swap would exceed the caller's stated maximum input")
	ErrNotPegged         = errors.New("changing the data feed to a non-stablecoin watcher")
)
