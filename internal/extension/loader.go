package extension

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dshills/exthost/internal/extension/api"
	"github.com/dshills/exthost/internal/extension/security"
)

// Module is a loaded entry point.
type Module interface {
	// Activate is called once per activation with a fresh Context.
	Activate(ctx context.Context, ec *Context, surface api.Surface) error
}

// Deactivator is implemented by modules with a deactivation hook.
type Deactivator interface {
	Deactivate(ctx context.Context) error
}

// ModuleFuncs adapts plain functions to Module and Deactivator.
type ModuleFuncs struct {
	OnActivate   func(ctx context.Context, ec *Context, surface api.Surface) error
	OnDeactivate func(ctx context.Context) error
}

// Activate calls OnActivate.
func (m ModuleFuncs) Activate(ctx context.Context, ec *Context, surface api.Surface) error {
	if m.OnActivate == nil {
		return nil
	}
	return m.OnActivate(ctx, ec, surface)
}

// Deactivate calls OnDeactivate.
func (m ModuleFuncs) Deactivate(ctx context.Context) error {
	if m.OnDeactivate == nil {
		return nil
	}
	return m.OnDeactivate(ctx)
}

// LoadRequest describes the entry point to load.
type LoadRequest struct {
	ID          string
	InstallPath string
	Manifest    *Manifest
	Policy      security.Policy
	Logger      *log.Logger
}

// EntryPath returns the absolute path of the manifest's main entry.
func (r LoadRequest) EntryPath() string {
	return filepath.Join(r.InstallPath, r.Manifest.Main)
}

// EntryLoader turns a manifest entry point into a Module. Loading must not
// run extension code; that happens in Activate.
type EntryLoader interface {
	Load(ctx context.Context, req LoadRequest) (Module, error)
}

// EntryLoaderFunc adapts a function to EntryLoader.
type EntryLoaderFunc func(ctx context.Context, req LoadRequest) (Module, error)

// Load calls f.
func (f EntryLoaderFunc) Load(ctx context.Context, req LoadRequest) (Module, error) {
	return f(ctx, req)
}

// StaticLoader resolves entry points to Go modules registered by main name.
type StaticLoader struct {
	mu      sync.RWMutex
	modules map[string]func() Module
}

// NewStaticLoader creates an empty StaticLoader.
func NewStaticLoader() *StaticLoader {
	return &StaticLoader{modules: make(map[string]func() Module)}
}

// Register adds a module factory for main. A factory is called once per
// activation so every activation gets fresh module state.
func (s *StaticLoader) Register(main string, factory func() Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[main] = factory
}

// Has reports whether main is registered.
func (s *StaticLoader) Has(main string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.modules[main]
	return ok
}

// Load returns a new instance of the module registered under the manifest's
// main.
func (s *StaticLoader) Load(_ context.Context, req LoadRequest) (Module, error) {
	s.mu.RLock()
	factory, ok := s.modules[req.Manifest.Main]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no module registered as %q", ErrEntryPointMissing, req.Manifest.Main)
	}
	m := factory()
	if m == nil {
		return nil, fmt.Errorf("%w: module %q factory returned nil", ErrEntryPointMissing, req.Manifest.Main)
	}
	return m, nil
}

// Discovered is an extension directory found by a Loader.
type Discovered struct {
	ID       string
	Path     string
	Manifest *Manifest
	Err      error
}

// Loader finds extension directories below its search paths.
type Loader struct {
	paths []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the search paths, checked in order.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = append([]string(nil), paths...)
	}
}

// NewLoader creates a Loader. Without WithPaths it searches
// DefaultExtensionPaths.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{paths: DefaultExtensionPaths()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultExtensionPaths returns the user and project extension directories.
func DefaultExtensionPaths() []string {
	paths := make([]string, 0, 2)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "exthost", "extensions"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".exthost", "extensions"))
	}
	return paths
}

// Paths returns the search paths.
func (l *Loader) Paths() []string {
	return append([]string(nil), l.paths...)
}

// Discover returns every extension directory below the search paths,
// sorted by id. When two directories declare the same id the first path
// wins. Directories with a broken manifest are returned with Err set.
func (l *Loader) Discover() ([]Discovered, error) {
	found := make(map[string]Discovered)
	var errs []error

	for _, base := range l.paths {
		entries, err := os.ReadDir(base)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			d := inspect(entry.Name(), filepath.Join(base, entry.Name()))
			if _, exists := found[d.ID]; exists {
				continue
			}
			found[d.ID] = d
		}
	}

	out := make([]Discovered, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, errors.Join(errs...)
}

func inspect(name, dir string) Discovered {
	d := Discovered{ID: name, Path: dir}
	manifestPath := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(manifestPath); err != nil {
		d.Err = fmt.Errorf("%w: %s not found", ErrInvalidManifest, ManifestFile)
		return d
	}
	m, err := LoadManifest(manifestPath)
	if err != nil {
		d.Err = err
		return d
	}
	d.ID = m.ID()
	d.Manifest = m
	return d
}
