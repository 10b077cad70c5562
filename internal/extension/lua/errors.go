package lua

import "errors"

// Errors for Lua extension execution.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNotFunction is returned when a global expected to be a function
	// is something else.
	ErrNotFunction = errors.New("lua global is not a function")

	// ErrModuleDenied is returned when a script requires a module the
	// sandbox policy denies.
	ErrModuleDenied = errors.New("lua module denied")
)
