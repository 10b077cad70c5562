package command

import (
	"errors"
	"fmt"
)

// Command bus errors.
var (
	// ErrCommandNotFound is returned when executing an id with no handler.
	ErrCommandNotFound = errors.New("command not found")

	// ErrAlreadyRegistered is returned when registering an id that is taken.
	ErrAlreadyRegistered = errors.New("command already registered")

	// ErrInvalidCommandID is returned for empty or whitespace-containing ids.
	ErrInvalidCommandID = errors.New("invalid command id")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("command handler is nil")

	// ErrEmptyOwner is returned when registering without an owner.
	ErrEmptyOwner = errors.New("command owner is empty")

	// ErrHandlerPanic is wrapped when a handler panics.
	ErrHandlerPanic = errors.New("command handler panicked")
)

// CollisionError describes a rejected duplicate registration.
type CollisionError struct {
	ID            string
	Owner         string
	ExistingOwner string
}

// Error implements the error interface.
func (e *CollisionError) Error() string {
	return fmt.Sprintf("command %q already registered by %s (attempted by %s)", e.ID, e.ExistingOwner, e.Owner)
}

// Unwrap returns ErrAlreadyRegistered.
func (e *CollisionError) Unwrap() error {
	return ErrAlreadyRegistered
}
