package extension

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/exthost/internal/extension/api"
	"github.com/dshills/exthost/internal/extension/security"
	"github.com/dshills/exthost/internal/extension/state"
	"github.com/dshills/exthost/internal/logging"
)

// Default hook timeouts.
const (
	DefaultActivationTimeout   = 10 * time.Second
	DefaultDeactivationTimeout = 5 * time.Second
)

// DefaultHostVersion is checked against manifest engines.host constraints.
const DefaultHostVersion = "1.0.0"

const tracerName = "github.com/dshills/exthost/internal/extension"

// extension is the runtime's record of one extension.
type extension struct {
	id string

	mu       sync.Mutex
	path     string
	manifest *Manifest
	state    State
	reason   string
	err      error
	ec       *Context
	module   Module

	// Set while activating.
	cancel context.CancelFunc
	done   chan struct{}
}

// Info is a snapshot of an extension.
type Info struct {
	ID       string
	Path     string
	State    State
	Manifest *Manifest
	// Reason and Err describe the last failure.
	Reason string
	Err    error
	// Owner is the owner id of the live Context, or "".
	Owner string
}

func (e *extension) info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := Info{
		ID:     e.id,
		Path:   e.path,
		State:  e.state,
		Reason: e.reason,
		Err:    e.err,
	}
	if e.manifest != nil {
		info.Manifest = e.manifest.Clone()
	}
	if e.ec != nil {
		info.Owner = e.ec.Owner()
	}
	return info
}

// Runtime is the extension registry and lifecycle controller.
type Runtime struct {
	mu         sync.RWMutex
	extensions map[string]*extension
	closed     bool

	host        *api.Host
	loaders     map[string]EntryLoader
	static      *StaticLoader
	discovery   *Loader
	policy      security.Policy
	overrides   map[string]security.Policy
	enforcer    security.Enforcer
	states      *state.Store
	storageRoot string
	mode        Mode
	hostVersion string

	activationTimeout   time.Duration
	deactivationTimeout time.Duration

	logger *log.Logger
	tracer trace.Tracer
	subs   subscribers
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHost sets the capability surface shared by every extension.
func WithHost(h *api.Host) Option {
	return func(r *Runtime) { r.host = h }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEntryLoader routes entry points whose file extension is ext (".lua")
// to l.
func WithEntryLoader(ext string, l EntryLoader) Option {
	return func(r *Runtime) { r.loaders[strings.ToLower(ext)] = l }
}

// WithStaticModule registers a Go module under a main name.
func WithStaticModule(main string, factory func() Module) Option {
	return func(r *Runtime) { r.static.Register(main, factory) }
}

// WithPolicy sets the default sandbox policy.
func WithPolicy(p security.Policy) Option {
	return func(r *Runtime) { r.policy = p }
}

// WithPolicyFor sets the policy for one extension id.
func WithPolicyFor(id string, p security.Policy) Option {
	return func(r *Runtime) { r.overrides[id] = p }
}

// WithEnforcer sets the OS-level policy enforcer.
func WithEnforcer(e security.Enforcer) Option {
	return func(r *Runtime) { r.enforcer = e }
}

// WithStateStore sets the memento store.
func WithStateStore(s *state.Store) Option {
	return func(r *Runtime) { r.states = s }
}

// WithStorageRoot sets the directory storage paths are derived from.
func WithStorageRoot(dir string) Option {
	return func(r *Runtime) { r.storageRoot = dir }
}

// WithMode sets the mode reported to extensions.
func WithMode(m Mode) Option {
	return func(r *Runtime) { r.mode = m }
}

// WithHostVersion sets the version engine constraints are checked against.
func WithHostVersion(v string) Option {
	return func(r *Runtime) { r.hostVersion = v }
}

// WithActivationTimeout bounds the activation hook.
func WithActivationTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.activationTimeout = d }
}

// WithDeactivationTimeout bounds the deactivation hook.
func WithDeactivationTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.deactivationTimeout = d }
}

// WithDiscovery sets the Loader used by Discover.
func WithDiscovery(l *Loader) Option {
	return func(r *Runtime) { r.discovery = l }
}

// WithTracer sets the tracer spans are recorded on.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runtime) { r.tracer = t }
}

// NewRuntime creates a Runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		extensions:          make(map[string]*extension),
		loaders:             make(map[string]EntryLoader),
		static:              NewStaticLoader(),
		policy:              security.DefaultPolicy(),
		overrides:           make(map[string]security.Policy),
		mode:                ModeProduction,
		hostVersion:         DefaultHostVersion,
		activationTimeout:   DefaultActivationTimeout,
		deactivationTimeout: DefaultDeactivationTimeout,
		logger:              logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runtime")
	if r.host == nil {
		r.host = api.NewHost(api.WithLogger(r.logger))
	}
	if r.enforcer == nil {
		r.enforcer = security.NoopEnforcer{Logger: r.logger}
	}
	if r.states == nil {
		r.states = state.NewStore()
	}
	if r.discovery == nil {
		r.discovery = NewLoader()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// Surface returns the capability surface shared by every extension.
func (r *Runtime) Surface() api.Surface { return r.host }

// Host returns the host surface implementation.
func (r *Runtime) Host() *api.Host { return r.host }

// PolicyFor returns the policy applied to id.
func (r *Runtime) PolicyFor(id string) security.Policy {
	if p, ok := r.overrides[id]; ok {
		return p
	}
	return r.policy
}

// lookup returns the record for id.
func (r *Runtime) lookup(id string) (*extension, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[id]
	if !ok {
		return nil, wrap(id, "lookup", ErrExtensionNotFound)
	}
	return ext, nil
}

func (r *Runtime) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// register returns the record for id, creating it in StateDiscovered.
func (r *Runtime) register(id, path string, m *Manifest) (*extension, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrRuntimeClosed
	}
	if ext, ok := r.extensions[id]; ok {
		return ext, false, nil
	}
	ext := &extension{id: id, path: path, manifest: m, state: StateDiscovered}
	r.extensions[id] = ext
	return ext, true, nil
}

// Activate registers the extension if it is new and activates it. A nil
// manifest is read from installPath.
func (r *Runtime) Activate(ctx context.Context, id, installPath string, m *Manifest) error {
	if m == nil {
		loaded, err := LoadManifestFromDir(installPath)
		if err != nil {
			return wrap(id, "activate", err)
		}
		m = loaded
	}
	if id == "" {
		id = m.ID()
	}
	if abs, err := filepath.Abs(installPath); err == nil {
		installPath = abs
	}

	ext, _, err := r.register(id, installPath, m)
	if err != nil {
		return wrap(id, "activate", err)
	}

	policy := r.PolicyFor(id)
	req := m.Request()
	req.ExtensionID = id
	perr := r.checkPolicy(policy, req, m)

	ext.mu.Lock()
	if r.isClosed() {
		ext.mu.Unlock()
		return wrap(id, "activate", ErrRuntimeClosed)
	}
	switch ext.state {
	case StateActive, StateActivating:
		ext.mu.Unlock()
		return wrap(id, "activate", ErrAlreadyActive)
	case StateDeactivating:
		ext.mu.Unlock()
		return wrap(id, "activate", ErrStillDeactivating)
	}
	from := ext.state
	ext.path = installPath
	ext.manifest = m
	if perr != nil {
		// A denied extension never enters StateActivating.
		ext.mu.Unlock()
		r.logger.Warn("policy denied", "extension", id, "error", perr)
		r.fail(ext, from, ReasonPolicyDenied, perr)
		return wrap(id, "activate", perr)
	}
	actx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ext.state = StateActivating
	ext.reason, ext.err = "", nil
	ext.cancel, ext.done = cancel, done
	ext.mu.Unlock()

	r.emit(LifecycleEvent{ExtensionID: id, From: from, To: StateActivating})

	err = r.activate(actx, ext, installPath, m, policy, req)

	ext.mu.Lock()
	ext.cancel, ext.done = nil, nil
	ext.mu.Unlock()
	cancel()
	close(done)
	return err
}

func (r *Runtime) activate(ctx context.Context, ext *extension, installPath string, m *Manifest, policy security.Policy, req security.Request) (err error) {
	ctx, span := r.tracer.Start(ctx, "extension.activate", trace.WithAttributes(
		attribute.String("extension.id", ext.id),
		attribute.String("extension.version", m.Version),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	loader := r.entryLoader(m.Main)
	module, lerr := loader.Load(ctx, LoadRequest{
		ID:          ext.id,
		InstallPath: installPath,
		Manifest:    m,
		Policy:      policy,
		Logger:      r.logger.With("extension", ext.id),
	})
	if lerr != nil {
		reason := ReasonActivationFailed
		if errors.Is(lerr, ErrEntryPointMissing) {
			reason = ReasonEntryPointMissing
		} else {
			lerr = fmt.Errorf("%w: %w", ErrActivationFailed, lerr)
		}
		r.logger.Error("entry point load failed", "extension", ext.id, "main", m.Main, "error", lerr)
		r.fail(ext, StateActivating, reason, lerr)
		return wrap(ext.id, "activate", lerr)
	}

	ec := NewContext(ContextConfig{
		ExtensionID:   ext.id,
		ExtensionPath: installPath,
		StorageRoot:   r.storageRoot,
		Mode:          r.mode,
		Registry:      r.host.Registry(),
		States:        r.states,
	})
	r.host.Gate().Grant(ec.Owner(), ext.id, policy.Grantable(req), policy)

	hookErr := r.startContext(ctx, ext.id, ec, policy)
	if hookErr == nil {
		hookErr = r.runHook(ctx, r.activationTimeout, ec.Owner(), func(hctx context.Context) error {
			return module.Activate(hctx, ec, r.host)
		})
	}
	if hookErr != nil {
		reason := ReasonActivationFailed
		if errors.Is(hookErr, context.DeadlineExceeded) {
			reason = ReasonActivationTimeout
		}
		cause := fmt.Errorf("%w: %w", ErrActivationFailed, hookErr)
		if cerr := r.release(ec); cerr != nil {
			r.logger.Warn("cleanup after failed activation", "extension", ext.id, "error", cerr)
		}
		r.logger.Error("activation failed", "extension", ext.id, "reason", reason, "error", hookErr)
		r.fail(ext, StateActivating, reason, cause)
		return wrap(ext.id, "activate", cause)
	}

	ext.mu.Lock()
	ext.state = StateActive
	ext.ec = ec
	ext.module = module
	ext.mu.Unlock()

	r.logger.Info("extension activated", "extension", ext.id, "version", m.Version, "owner", ec.Owner())
	r.emit(LifecycleEvent{ExtensionID: ext.id, From: StateActivating, To: StateActive})
	return nil
}

// checkPolicy checks the sandbox request and the engine constraint,
// reporting every violation together.
func (r *Runtime) checkPolicy(p security.Policy, req security.Request, m *Manifest) error {
	err := p.Check(req)
	engineErr := m.CheckEngine(r.hostVersion)
	if engineErr == nil {
		return err
	}

	v := security.Violation{Kind: security.ViolationEngine, Detail: engineErr.Error()}
	var perr *security.PolicyError
	if errors.As(err, &perr) {
		perr.Violations = append(perr.Violations, v)
		return perr
	}
	return &security.PolicyError{ExtensionID: req.ExtensionID, Violations: []security.Violation{v}}
}

func (r *Runtime) entryLoader(main string) EntryLoader {
	if l, ok := r.loaders[strings.ToLower(filepath.Ext(main))]; ok {
		return l
	}
	return r.static
}

// startContext attaches the sandbox enforcement to the Context.
func (r *Runtime) startContext(ctx context.Context, id string, ec *Context, p security.Policy) error {
	d, err := r.enforcer.Apply(ctx, id, p)
	if err != nil {
		return fmt.Errorf("apply policy: %w", err)
	}
	return ec.Push(d)
}

// runHook runs fn on its own goroutine under the owner, bounded by timeout
// and ctx. Panics are returned as errors. On timeout the goroutine is
// abandoned; its context is cancelled.
func (r *Runtime) runHook(ctx context.Context, timeout time.Duration, owner string, fn func(context.Context) error) error {
	hctx := api.WithOwner(ctx, owner)
	var cancel context.CancelFunc
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(hctx, timeout)
	} else {
		hctx, cancel = context.WithCancel(hctx)
	}
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				result <- fmt.Errorf("panic: %v", p)
			}
		}()
		result <- fn(hctx)
	}()

	select {
	case err := <-result:
		return err
	case <-hctx.Done():
		return hctx.Err()
	}
}

// release disposes the Context and drops every command and grant held by
// its owner.
func (r *Runtime) release(ec *Context) error {
	err := ec.Dispose()
	r.host.CommandBus().UnregisterAll(ec.Owner())
	r.host.Gate().Revoke(ec.Owner())
	return err
}

// fail moves ext from `from` into StateError.
func (r *Runtime) fail(ext *extension, from State, reason string, err error) {
	ext.mu.Lock()
	ext.state = StateError
	ext.reason = reason
	ext.err = err
	ext.ec = nil
	ext.module = nil
	ext.mu.Unlock()
	r.emit(LifecycleEvent{ExtensionID: ext.id, From: from, To: StateError, Reason: reason, Err: err})
}

// Deactivate runs the deactivation hook and releases every resource the
// extension holds. Cleanup runs even when the hook fails.
func (r *Runtime) Deactivate(ctx context.Context, id string) error {
	ext, err := r.lookup(id)
	if err != nil {
		return err
	}
	return r.deactivate(ctx, ext)
}

func (r *Runtime) deactivate(ctx context.Context, ext *extension) (err error) {
	ext.mu.Lock()
	switch ext.state {
	case StateActive:
	case StateActivating:
		ext.mu.Unlock()
		return wrap(ext.id, "deactivate", ErrStillActivating)
	case StateDeactivating:
		ext.mu.Unlock()
		return wrap(ext.id, "deactivate", ErrStillDeactivating)
	default:
		ext.mu.Unlock()
		return wrap(ext.id, "deactivate", ErrNotActive)
	}
	ext.state = StateDeactivating
	ec, module := ext.ec, ext.module
	ext.mu.Unlock()

	r.emit(LifecycleEvent{ExtensionID: ext.id, From: StateActive, To: StateDeactivating})

	ctx, span := r.tracer.Start(ctx, "extension.deactivate", trace.WithAttributes(
		attribute.String("extension.id", ext.id),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var hookErr error
	if d, ok := module.(Deactivator); ok {
		hookErr = r.runHook(ctx, r.deactivationTimeout, ec.Owner(), d.Deactivate)
	}
	releaseErr := r.release(ec)

	ext.mu.Lock()
	ext.ec, ext.module = nil, nil
	if hookErr != nil {
		cause := fmt.Errorf("%w: %w", ErrDeactivationFailed, hookErr)
		ext.state = StateError
		ext.reason = ReasonDeactivationFailed
		ext.err = cause
		ext.mu.Unlock()

		r.logger.Error("deactivation failed", "extension", ext.id, "error", hookErr)
		r.emit(LifecycleEvent{ExtensionID: ext.id, From: StateDeactivating, To: StateError, Reason: ReasonDeactivationFailed, Err: cause})
		return wrap(ext.id, "deactivate", cause)
	}

	ext.state = StateInactive
	var reason string
	if releaseErr != nil {
		reason = ReasonDisposeFailed
		ext.reason = reason
		ext.err = releaseErr
	}
	ext.mu.Unlock()

	if releaseErr != nil {
		r.logger.Warn("dispose failed during deactivation", "extension", ext.id, "error", releaseErr)
	}
	r.logger.Info("extension deactivated", "extension", ext.id)
	r.emit(LifecycleEvent{ExtensionID: ext.id, From: StateDeactivating, To: StateInactive, Reason: reason, Err: releaseErr})
	return nil
}

// Unload deactivates the extension if it is active and forgets it.
func (r *Runtime) Unload(ctx context.Context, id string) error {
	ext, err := r.lookup(id)
	if err != nil {
		return err
	}

	var deactivateErr error
	ext.mu.Lock()
	st := ext.state
	ext.mu.Unlock()
	switch st {
	case StateActivating:
		return wrap(id, "unload", ErrStillActivating)
	case StateDeactivating:
		return wrap(id, "unload", ErrStillDeactivating)
	case StateActive:
		deactivateErr = r.deactivate(ctx, ext)
	}

	r.mu.Lock()
	delete(r.extensions, id)
	r.mu.Unlock()
	r.logger.Debug("extension unloaded", "extension", id)
	return deactivateErr
}

// Shutdown cancels in-flight activations, waits for them to settle and
// deactivates every active extension concurrently. Later calls to Activate
// fail with ErrRuntimeClosed.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	exts := make([]*extension, 0, len(r.extensions))
	for _, ext := range r.extensions {
		exts = append(exts, ext)
	}
	r.mu.Unlock()

	for _, ext := range exts {
		ext.mu.Lock()
		cancel, done := ext.cancel, ext.done
		ext.mu.Unlock()
		if cancel == nil {
			continue
		}
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, ext := range exts {
		if ext.info().State != StateActive {
			continue
		}
		wg.Add(1)
		go func(ext *extension) {
			defer wg.Done()
			if err := r.deactivate(ctx, ext); err != nil && !errors.Is(err, ErrNotActive) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(ext)
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		r.logger.Warn("shutdown finished with failures", "count", len(errs))
	} else {
		r.logger.Info("runtime shut down", "extensions", len(exts))
	}
	return err
}

// Get returns a snapshot of one extension.
func (r *Runtime) Get(id string) (Info, bool) {
	ext, err := r.lookup(id)
	if err != nil {
		return Info{}, false
	}
	return ext.info(), true
}

// ListExtensions returns a snapshot of every extension, sorted by id.
func (r *Runtime) ListExtensions() []Info {
	r.mu.RLock()
	exts := make([]*extension, 0, len(r.extensions))
	for _, ext := range r.extensions {
		exts = append(exts, ext)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(exts))
	for _, ext := range exts {
		out = append(out, ext.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Status is a snapshot of what the host currently runs.
type Status struct {
	Extensions       int
	ActiveExtensions int
	Resources        api.Resources
}

// Status counts the registered and active extensions and the live
// handles they hold.
func (r *Runtime) Status() Status {
	st := Status{Resources: r.host.Resources()}
	for _, info := range r.ListExtensions() {
		st.Extensions++
		if info.State == StateActive {
			st.ActiveExtensions++
		}
	}
	return st
}

// Discover scans the discovery paths and registers every valid extension
// found in StateDiscovered. Extensions already known are left alone.
func (r *Runtime) Discover() ([]Discovered, error) {
	found, err := r.discovery.Discover()
	for _, d := range found {
		if d.Err != nil {
			r.logger.Warn("skipping extension", "path", d.Path, "error", d.Err)
			continue
		}
		_, created, rerr := r.register(d.ID, d.Path, d.Manifest)
		if rerr != nil {
			return found, rerr
		}
		if created {
			r.logger.Debug("extension discovered", "extension", d.ID, "path", d.Path)
		}
	}
	return found, err
}

// ActivateByEvent activates every idle extension whose manifest lists
// event, or "*". It returns the ids it activated.
func (r *Runtime) ActivateByEvent(ctx context.Context, event string) ([]string, error) {
	var candidates []Info
	for _, info := range r.ListExtensions() {
		if info.State != StateDiscovered && info.State != StateInactive {
			continue
		}
		if info.Manifest == nil || !info.Manifest.HasActivationEvent(event) {
			continue
		}
		candidates = append(candidates, info)
	}

	var (
		activated []string
		errs      []error
	)
	for _, info := range candidates {
		if err := r.Activate(ctx, info.ID, info.Path, info.Manifest); err != nil {
			if errors.Is(err, ErrAlreadyActive) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		activated = append(activated, info.ID)
	}
	return activated, errors.Join(errs...)
}

// ExecuteCommand runs a command, first activating the extensions that
// declare onCommand:<id> when nobody has registered it yet.
func (r *Runtime) ExecuteCommand(ctx context.Context, id string, args ...any) (any, error) {
	bus := r.host.CommandBus()
	if !bus.Has(id) {
		if _, err := r.ActivateByEvent(ctx, EventCommandPrefix+id); err != nil {
			r.logger.Warn("lazy activation failed", "command", id, "error", err)
		}
	}
	return bus.Execute(ctx, id, args...)
}
