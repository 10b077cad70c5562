package api

import (
	"errors"
	"fmt"
)

// Surface errors.
var (
	// ErrNoOwner is returned when a call's context carries no owner.
	ErrNoOwner = errors.New("no extension owner in context")

	// ErrInvalidInput is wrapped by every argument validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrHandleDisposed is returned by operations on a disposed handle.
	ErrHandleDisposed = errors.New("handle disposed")

	// ErrNoProvider is returned when no provider serves a request.
	ErrNoProvider = errors.New("no provider registered")
)

// invalid wraps ErrInvalidInput with a formatted description.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
