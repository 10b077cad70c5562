package extension

import (
	"errors"
	"fmt"

	"github.com/dshills/exthost/internal/extension/security"
)

// Extension runtime errors.
var (
	// ErrPolicyDenied is returned when a manifest requests more than the
	// sandbox policy allows. The entry point is never loaded.
	ErrPolicyDenied = security.ErrPolicyDenied

	// ErrEntryPointMissing is returned when the main entry cannot be found.
	ErrEntryPointMissing = errors.New("entry point missing")

	// ErrActivationFailed is returned when the activation hook fails,
	// panics or times out.
	ErrActivationFailed = errors.New("activation failed")

	// ErrDeactivationFailed is returned when the deactivation hook fails.
	// Cleanup still ran.
	ErrDeactivationFailed = errors.New("deactivation failed")

	// ErrAlreadyActive is returned when activating an active or activating
	// extension.
	ErrAlreadyActive = errors.New("extension already active")

	// ErrNotActive is returned when deactivating an extension that is not
	// active.
	ErrNotActive = errors.New("extension not active")

	// ErrStillActivating is returned when deactivating an extension whose
	// activation has not finished.
	ErrStillActivating = errors.New("extension still activating")

	// ErrStillDeactivating is returned when activating an extension whose
	// deactivation has not finished.
	ErrStillDeactivating = errors.New("extension still deactivating")

	// ErrExtensionNotFound is returned for unknown extension ids.
	ErrExtensionNotFound = errors.New("extension not found")

	// ErrContextDisposed is returned when pushing onto a disposed Context.
	ErrContextDisposed = errors.New("extension context disposed")

	// ErrInvalidManifest is returned when a manifest fails validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrRuntimeClosed is returned after Shutdown.
	ErrRuntimeClosed = errors.New("extension runtime shut down")
)

// Error attaches an extension id and operation to an error.
type Error struct {
	ID  string
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extension %s: %s: %v", e.ID, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(id, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{ID: id, Op: op, Err: err}
}
