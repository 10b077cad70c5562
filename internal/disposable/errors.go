package disposable

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	// ErrDisposeFailed is wrapped by every error produced when a single
	// disposable fails to release.
	ErrDisposeFailed = errors.New("dispose failed")

	// ErrOwnerReleased is returned when registering under an owner whose
	// disposables have already been released.
	ErrOwnerReleased = errors.New("owner already released")

	// ErrNilDisposable is returned when registering a nil disposable.
	ErrNilDisposable = errors.New("disposable is nil")

	// ErrEmptyOwner is returned when an owner id is empty.
	ErrEmptyOwner = errors.New("owner id is empty")
)

// DisposeError describes the failure of one disposable during release.
type DisposeError struct {
	Owner string
	Index int
	Err   error
}

// Error implements the error interface.
func (e *DisposeError) Error() string {
	return fmt.Sprintf("dispose %s[%d]: %v", e.Owner, e.Index, e.Err)
}

// Unwrap returns both the sentinel and the underlying cause so that
// errors.Is matches either.
func (e *DisposeError) Unwrap() []error {
	return []error{ErrDisposeFailed, e.Err}
}
