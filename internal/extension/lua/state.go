package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/exthost/internal/logging"
)

// Default gopher-lua sizing for extension states.
const (
	DefaultCallStackSize = 256
	DefaultRegistrySize  = 1024 * 20
)

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. Every access goes through Do,
// which holds the state's mutex for the duration of the call.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool

	callStackSize int
	registrySize  int
	denied        map[string]bool
	preload       map[string]lua.LGFunction
	loaded        map[string]lua.LValue
	logger        *log.Logger
}

// StateOption configures a State.
type StateOption func(*State)

// WithDeniedModules names modules require must refuse with ErrModuleDenied.
func WithDeniedModules(modules ...string) StateOption {
	return func(s *State) {
		for _, m := range modules {
			s.denied[m] = true
		}
	}
}

// WithLogger sets the logger print writes to.
func WithLogger(l *log.Logger) StateOption {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCallStackSize sets the maximum Lua call depth.
func WithCallStackSize(n int) StateOption {
	return func(s *State) {
		if n > 0 {
			s.callStackSize = n
		}
	}
}

// NewState creates a sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	s := &State{
		callStackSize: DefaultCallStackSize,
		registrySize:  DefaultRegistrySize,
		denied:        make(map[string]bool),
		preload:       make(map[string]lua.LGFunction),
		loaded:        make(map[string]lua.LValue),
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: s.callStackSize,
		RegistrySize:  s.registrySize,
	})
	openSafeLibraries(s.L)
	s.installSandbox()
	return s
}

// openSafeLibraries opens only the side-effect free standard libraries.
// io, os, debug, package and channel are never opened.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenCoroutine(L)
}

// Preload makes a module available to require under name. The loader runs
// once, on first require, and must push the module value.
func (s *State) Preload(name string, loader lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preload[name] = loader
}

type heldKey struct{}

// Do runs fn with exclusive access to the state. ctx bounds the Lua
// execution: cancelling it aborts the running script.
//
// If ctx was derived from a context passed to fn by this same state, the
// call is a re-entry from Lua on the same goroutine and fn runs without
// taking the lock again. Such a context must not be handed to another
// goroutine.
func (s *State) Do(ctx context.Context, fn func(ctx context.Context, L *lua.LState) error) error {
	if held, _ := ctx.Value(heldKey{}).(*State); held == s {
		return s.run(ctx, fn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	ctx = context.WithValue(ctx, heldKey{}, s)
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()
	return s.run(ctx, fn)
}

// run executes fn with panic recovery.
func (s *State) run(ctx context.Context, fn func(ctx context.Context, L *lua.LState) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn(ctx, s.L)
}

// DoFile executes the script at path.
func (s *State) DoFile(ctx context.Context, path string) error {
	return s.Do(ctx, func(_ context.Context, L *lua.LState) error {
		return L.DoFile(path)
	})
}

// DoString executes code.
func (s *State) DoString(ctx context.Context, code string) error {
	return s.Do(ctx, func(_ context.Context, L *lua.LState) error {
		return L.DoString(code)
	})
}

// HasFunction reports whether the global name is a function.
func (s *State) HasFunction(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// CallGlobal calls the global function name. It returns an error wrapping
// ErrNotFunction if name is not a function.
func (s *State) CallGlobal(ctx context.Context, name string, args ...lua.LValue) ([]lua.LValue, error) {
	var results []lua.LValue
	err := s.Do(ctx, func(_ context.Context, L *lua.LState) error {
		fn := L.GetGlobal(name)
		if fn.Type() != lua.LTFunction {
			return fmt.Errorf("%w: %q is %s", ErrNotFunction, name, fn.Type())
		}
		var err error
		results, err = pcall(L, fn, args...)
		return err
	})
	return results, err
}

// pcall calls fn in protected mode and returns the values it produced.
// The caller must hold the state.
func pcall(L *lua.LState, fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	top := L.GetTop()
	L.Push(fn)
	for _, a := range args {
		L.Push(a)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return nil, err
	}

	n := L.GetTop() - top
	if n <= 0 {
		return []lua.LValue{}, nil
	}
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.Pop(n)
	return results, nil
}

// IsClosed reports whether Close was called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Later calls fail with ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.L.Close()
	return nil
}
