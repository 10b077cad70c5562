package extension

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension/state"
)

// Mode is how the extension was started.
type Mode int

// Extension modes.
const (
	ModeProduction Mode = iota + 1
	ModeDevelopment
	ModeTest
)

// String returns a string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeProduction:
		return "production"
	case ModeDevelopment:
		return "development"
	case ModeTest:
		return "test"
	default:
		return "unknown"
	}
}

// ContextConfig configures NewContext.
type ContextConfig struct {
	ExtensionID   string
	ExtensionPath string

	// StorageRoot holds per-extension storage, global storage and log
	// directories. Empty disables them.
	StorageRoot string
	Mode        Mode

	Registry *disposable.Registry
	States   *state.Store
}

// Context is handed to an extension's activation hook. Every Context has a
// fresh owner id; all resources the extension acquires are recorded under
// it and released when the Context is disposed.
type Context struct {
	owner       string
	id          string
	path        string
	storageRoot string
	mode        Mode

	registry  *disposable.Registry
	workspace *state.Memento
	global    *state.Memento

	mu            sync.Mutex
	subscriptions int
	disposed      bool
}

// NewContext creates a Context with a new owner id.
func NewContext(cfg ContextConfig) *Context {
	if cfg.Registry == nil {
		cfg.Registry = disposable.NewRegistry()
	}
	if cfg.States == nil {
		cfg.States = state.NewStore()
	}
	if cfg.Mode == 0 {
		cfg.Mode = ModeProduction
	}
	return &Context{
		owner:       uuid.NewString(),
		id:          cfg.ExtensionID,
		path:        cfg.ExtensionPath,
		storageRoot: cfg.StorageRoot,
		mode:        cfg.Mode,
		registry:    cfg.Registry,
		workspace:   cfg.States.Workspace(cfg.ExtensionID),
		global:      cfg.States.Global(cfg.ExtensionID),
	}
}

// Owner returns the owner id resources are recorded under.
func (c *Context) Owner() string { return c.owner }

// ExtensionID returns the extension id.
func (c *Context) ExtensionID() string { return c.id }

// ExtensionPath returns the install directory.
func (c *Context) ExtensionPath() string { return c.path }

// Mode returns the extension mode.
func (c *Context) Mode() Mode { return c.mode }

// WorkspaceState returns state scoped to the current workspace.
func (c *Context) WorkspaceState() *state.Memento { return c.workspace }

// GlobalState returns state shared across workspaces.
func (c *Context) GlobalState() *state.Memento { return c.global }

// AsAbsolutePath resolves rel against the install directory. Absolute
// paths are returned cleaned.
func (c *Context) AsAbsolutePath(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(c.path, rel)
}

// StoragePath returns the workspace-scoped storage directory, or "".
func (c *Context) StoragePath() string {
	return c.storageDir("workspace")
}

// GlobalStoragePath returns the global storage directory, or "".
func (c *Context) GlobalStoragePath() string {
	return c.storageDir("global")
}

// LogPath returns the log directory, or "".
func (c *Context) LogPath() string {
	return c.storageDir("logs")
}

func (c *Context) storageDir(kind string) string {
	if c.storageRoot == "" {
		return ""
	}
	return filepath.Join(c.storageRoot, kind, c.id)
}

// Push adds disposables released with the Context, in push order after
// everything acquired earlier. Pushing onto a disposed Context releases
// the disposables at once and returns ErrContextDisposed.
func (c *Context) Push(ds ...disposable.Disposable) error {
	var errs []error
	for _, d := range ds {
		if d == nil {
			continue
		}
		if _, err := c.registry.Register(c.owner, d); err != nil {
			if errors.Is(err, disposable.ErrOwnerReleased) {
				err = ErrContextDisposed
			}
			errs = append(errs, err)
			continue
		}
		c.mu.Lock()
		c.subscriptions++
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Subscriptions returns how many disposables were pushed.
func (c *Context) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions
}

// IsDisposed reports whether Dispose was called.
func (c *Context) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Dispose releases everything recorded under the owner. Later calls are
// no-ops.
func (c *Context) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.mu.Unlock()

	return c.registry.ReleaseAll(c.owner)
}
