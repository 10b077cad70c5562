package lua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/api"
	"github.com/dshills/exthost/internal/logging"
)

// Global hook names a script defines.
const (
	ActivateFunc   = "activate"
	DeactivateFunc = "deactivate"
)

// Loader resolves ".lua" entry points. It implements
// extension.EntryLoader.
type Loader struct {
	logger        *log.Logger
	callStackSize int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger scripts print to when the load request
// carries none.
func WithLoaderLogger(l *log.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithLoaderCallStackSize sets the Lua call depth of every state.
func WithLoaderCallStackSize(n int) LoaderOption {
	return func(ld *Loader) { ld.callStackSize = n }
}

// NewLoader creates a Lua entry point loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{logger: logging.Discard()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load checks the script exists. The script itself runs on Activate.
func (l *Loader) Load(_ context.Context, req extension.LoadRequest) (extension.Module, error) {
	path := req.EntryPath()
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", extension.ErrEntryPointMissing, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", extension.ErrEntryPointMissing, path)
	}

	logger := req.Logger
	if logger == nil {
		logger = l.logger.With("extension", req.ID)
	}
	return &Module{
		id:            req.ID,
		path:          path,
		denied:        req.Policy.DeniedModules(),
		callStackSize: l.callStackSize,
		logger:        logger,
	}, nil
}

// Module is a Lua extension. Each activation runs the script in a fresh
// state; deactivation closes it.
type Module struct {
	id            string
	path          string
	denied        []string
	callStackSize int
	logger        *log.Logger

	mu      sync.Mutex
	state   *State
	binding *binding
}

// Path returns the script path.
func (m *Module) Path() string { return m.path }

// Activate loads the script and calls its activate function with the
// context table. A script without activate is accepted.
func (m *Module) Activate(ctx context.Context, ec *extension.Context, surface api.Surface) error {
	s := NewState(
		WithDeniedModules(m.denied...),
		WithLogger(m.logger),
		WithCallStackSize(m.callStackSize),
	)
	b := newBinding(s, ec, surface, m.logger)
	s.Preload(ModuleName, b.open)

	m.mu.Lock()
	m.state, m.binding = s, b
	m.mu.Unlock()

	// Released with the Context if activation is abandoned mid-script.
	if err := ec.Push(disposable.Func(s.Close)); err != nil {
		_ = s.Close()
		return err
	}

	err := s.Do(ctx, func(_ context.Context, L *lua.LState) error {
		b.install(L)
		if err := L.DoFile(m.path); err != nil {
			return fmt.Errorf("load %s: %w", m.path, err)
		}
		fn := L.GetGlobal(ActivateFunc)
		if fn.Type() != lua.LTFunction {
			m.logger.Debug("script has no activate function", "path", m.path)
			return nil
		}
		_, err := pcall(L, fn, b.contextTable(L))
		return err
	})
	if err != nil {
		m.teardown(context.WithoutCancel(ctx))
		return err
	}
	return nil
}

// Deactivate calls the script's deactivate function, disposes
// context.subscriptions and closes the state.
func (m *Module) Deactivate(ctx context.Context) error {
	m.mu.Lock()
	s := m.state
	m.mu.Unlock()
	if s == nil {
		return nil
	}

	var hookErr error
	err := s.Do(ctx, func(_ context.Context, L *lua.LState) error {
		if fn := L.GetGlobal(DeactivateFunc); fn.Type() == lua.LTFunction {
			_, hookErr = pcall(L, fn)
		}
		return nil
	})
	m.teardown(context.WithoutCancel(ctx))
	return errors.Join(hookErr, err)
}

// teardown disposes the script's subscriptions and closes the state.
func (m *Module) teardown(ctx context.Context) {
	m.mu.Lock()
	s, b := m.state, m.binding
	m.state, m.binding = nil, nil
	m.mu.Unlock()
	if s == nil {
		return
	}

	err := s.Do(ctx, func(_ context.Context, L *lua.LState) error {
		b.disposeSubscriptions(L)
		return nil
	})
	if err != nil && !errors.Is(err, ErrStateClosed) {
		m.logger.Warn("subscriptions failed to dispose", "error", err)
	}
	_ = s.Close()
}

var _ extension.EntryLoader = (*Loader)(nil)
var _ extension.Deactivator = (*Module)(nil)
