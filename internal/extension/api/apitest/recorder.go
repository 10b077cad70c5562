// Package apitest provides an in-memory api.Surface for tests.
//
// Recorder accepts every call, validates nothing beyond what the handle
// constructors do, and records what was asked so tests can assert on it.
// Commands run against a private command bus.
package apitest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/event"
	"github.com/dshills/exthost/internal/extension/api"
)

// DefaultOwner attributes calls made without an owner in the context.
const DefaultOwner = "apitest"

// Call is one recorded surface call.
type Call struct {
	Group  string
	Method string
	Args   []any
}

// Notification is one recorded side effect.
type Notification struct {
	Topic   event.Topic
	Owner   string
	Payload any
}

type releasable interface {
	IsDisposed() bool
}

// Recorder is a Surface that records calls.
type Recorder struct {
	mu            sync.Mutex
	calls         []Call
	notifications []Notification
	acquired      []releasable
	clipboard     string

	bus *command.Bus
}

// New creates an empty recorder.
func New() *Recorder {
	return &Recorder{bus: command.NewBus()}
}

// Notify implements api.Notifier.
func (r *Recorder) Notify(topic event.Topic, owner string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{Topic: topic, Owner: owner, Payload: payload})
}

func (r *Recorder) record(group, method string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Group: group, Method: method, Args: args})
}

func (r *Recorder) keep(h releasable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquired = append(r.acquired, h)
}

func ownerOf(ctx context.Context) string {
	if owner, ok := api.OwnerFrom(ctx); ok {
		return owner
	}
	return DefaultOwner
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallCount returns how many times method was called.
func (r *Recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Notifications returns a copy of every recorded side effect.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.notifications)
}

// Acquired returns how many disposables were handed out.
func (r *Recorder) Acquired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.acquired)
}

// Live returns how many handed-out disposables are not yet released.
func (r *Recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.acquired {
		if !h.IsDisposed() {
			n++
		}
	}
	return n
}

// CommandBus returns the recorder's private bus.
func (r *Recorder) CommandBus() *command.Bus { return r.bus }

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.notifications = nil
	r.acquired = nil
}

// tracked is a plain disposable that remembers being released.
type tracked struct {
	once     sync.Once
	mu       sync.Mutex
	disposed bool
	inner    disposable.Disposable
}

func (t *tracked) Dispose() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		t.disposed = true
		t.mu.Unlock()
		if t.inner != nil {
			err = t.inner.Dispose()
		}
	})
	return err
}

func (t *tracked) IsDisposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

func (r *Recorder) track(inner disposable.Disposable) *tracked {
	t := &tracked{inner: inner}
	r.keep(t)
	return t
}

// Window returns the window group.
func (r *Recorder) Window() api.Window { return window{r} }

// Workspace returns the workspace group.
func (r *Recorder) Workspace() api.Workspace { return workspace{r} }

// Commands returns the commands group.
func (r *Recorder) Commands() api.Commands { return commands{r} }

// Languages returns the languages group.
func (r *Recorder) Languages() api.Languages { return languages{r} }

// Debug returns the debug group.
func (r *Recorder) Debug() api.Debug { return debug{r} }

// Tasks returns the tasks group.
func (r *Recorder) Tasks() api.Tasks { return tasks{r} }

// SourceControl returns the source control group.
func (r *Recorder) SourceControl() api.SourceControl { return scm{r} }

// Env returns the environment group.
func (r *Recorder) Env() api.Env { return env{r} }

var _ api.Surface = (*Recorder)(nil)

type window struct{ r *Recorder }

func (w window) ShowMessage(_ context.Context, severity api.Severity, message string, items ...string) (string, error) {
	w.r.record("window", "ShowMessage", severity, message, slices.Clone(items))
	if len(items) > 0 {
		return items[0], nil
	}
	return "", nil
}

func (w window) ShowQuickPick(_ context.Context, items []string, opts api.QuickPickOptions) (string, error) {
	w.r.record("window", "ShowQuickPick", slices.Clone(items), opts)
	if len(items) > 0 {
		return items[0], nil
	}
	return "", nil
}

func (w window) ShowInputBox(_ context.Context, opts api.InputBoxOptions) (string, error) {
	w.r.record("window", "ShowInputBox", opts)
	return opts.Value, nil
}

func (w window) CreateOutputChannel(ctx context.Context, name string) (*api.OutputChannel, error) {
	w.r.record("window", "CreateOutputChannel", name)
	ch := api.NewOutputChannel(ownerOf(ctx), name, w.r)
	w.r.keep(ch)
	return ch, nil
}

func (w window) CreateStatusBarItem(ctx context.Context, alignment api.Alignment, priority int) (*api.StatusBarItem, error) {
	w.r.record("window", "CreateStatusBarItem", alignment, priority)
	item := api.NewStatusBarItem(ownerOf(ctx), alignment, priority, w.r)
	w.r.keep(item)
	return item, nil
}

func (w window) SetStatusBarMessage(_ context.Context, message string, timeout time.Duration) (disposable.Disposable, error) {
	w.r.record("window", "SetStatusBarMessage", message, timeout)
	return w.r.track(nil), nil
}

func (w window) CreateTerminal(ctx context.Context, opts api.TerminalOptions) (*api.Terminal, error) {
	w.r.record("window", "CreateTerminal", opts)
	t := api.NewTerminal(ownerOf(ctx), opts, w.r)
	w.r.keep(t)
	return t, nil
}

func (w window) CreateWebviewPanel(ctx context.Context, viewType, title string, opts api.WebviewOptions) (*api.WebviewPanel, error) {
	w.r.record("window", "CreateWebviewPanel", viewType, title, opts)
	p := api.NewWebviewPanel(ownerOf(ctx), viewType, title, opts, w.r)
	w.r.keep(p)
	return p, nil
}

type workspace struct{ r *Recorder }

func (w workspace) Folders() []api.WorkspaceFolder {
	w.r.record("workspace", "Folders")
	return nil
}

func (w workspace) Configuration(section string) api.Configuration {
	w.r.record("workspace", "Configuration", section)
	return emptyConfig{}
}

func (w workspace) FindFiles(_ context.Context, pattern string, max int) ([]api.URI, error) {
	w.r.record("workspace", "FindFiles", pattern, max)
	return nil, nil
}

func (w workspace) OnDidChangeConfiguration(_ context.Context, _ func(api.ConfigurationChangeEvent)) (disposable.Disposable, error) {
	w.r.record("workspace", "OnDidChangeConfiguration")
	return w.r.track(nil), nil
}

func (w workspace) CreateFileSystemWatcher(ctx context.Context, glob string, fn func(api.FileEvent)) (*api.FileSystemWatcher, error) {
	w.r.record("workspace", "CreateFileSystemWatcher", glob)
	fw, err := api.NewFileSystemWatcher(ownerOf(ctx), glob, nil, fn, w.r, nil)
	if err != nil {
		return nil, err
	}
	w.r.keep(fw)
	return fw, nil
}

type emptyConfig struct{}

func (emptyConfig) Get(_ string, def any) any { return def }
func (emptyConfig) Has(string) bool           { return false }
func (emptyConfig) Keys() []string            { return nil }

type commands struct{ r *Recorder }

func (c commands) RegisterCommand(ctx context.Context, id string, handler command.Handler) (disposable.Disposable, error) {
	c.r.record("commands", "RegisterCommand", id)
	d, err := c.r.bus.Register(id, ownerOf(ctx), handler)
	if err != nil {
		return nil, err
	}
	return c.r.track(d), nil
}

func (c commands) ExecuteCommand(ctx context.Context, id string, args ...any) (any, error) {
	c.r.record("commands", "ExecuteCommand", append([]any{id}, args...)...)
	return c.r.bus.Execute(ctx, id, args...)
}

func (c commands) GetCommands(filterInternal bool) []string {
	c.r.record("commands", "GetCommands", filterInternal)
	return c.r.bus.List(filterInternal)
}

type languages struct{ r *Recorder }

func (l languages) RegisterProvider(_ context.Context, kind api.ProviderKind, selector api.DocumentSelector, _ any) (disposable.Disposable, error) {
	l.r.record("languages", "RegisterProvider", kind, slices.Clone(selector))
	return l.r.track(nil), nil
}

func (l languages) CreateDiagnosticCollection(ctx context.Context, name string) (*api.DiagnosticCollection, error) {
	l.r.record("languages", "CreateDiagnosticCollection", name)
	dc := api.NewDiagnosticCollection(ownerOf(ctx), name, l.r)
	l.r.keep(dc)
	return dc, nil
}

func (l languages) Languages() []string {
	l.r.record("languages", "Languages")
	return nil
}

type debug struct{ r *Recorder }

func (d debug) StartDebugging(ctx context.Context, cfg api.DebugConfiguration) (*api.DebugSession, error) {
	d.r.record("debug", "StartDebugging", cfg.Type, cfg.Name)
	s := api.NewDebugSession(ownerOf(ctx), cfg, d.r)
	d.r.keep(s)
	return s, nil
}

func (d debug) StopDebugging(_ context.Context, session *api.DebugSession) error {
	d.r.record("debug", "StopDebugging")
	if session == nil {
		return nil
	}
	return session.Dispose()
}

func (d debug) RegisterConfigurationProvider(_ context.Context, debugType string, _ api.DebugConfigurationProvider) (disposable.Disposable, error) {
	d.r.record("debug", "RegisterConfigurationProvider", debugType)
	return d.r.track(nil), nil
}

func (d debug) AddBreakpoints(_ context.Context, bps ...api.Breakpoint) ([]api.Breakpoint, error) {
	d.r.record("debug", "AddBreakpoints", len(bps))
	return slices.Clone(bps), nil
}

func (d debug) RemoveBreakpoints(_ context.Context, ids ...string) error {
	d.r.record("debug", "RemoveBreakpoints", slices.Clone(ids))
	return nil
}

func (d debug) Breakpoints() []api.Breakpoint {
	d.r.record("debug", "Breakpoints")
	return nil
}

type tasks struct{ r *Recorder }

func (t tasks) RegisterTaskProvider(_ context.Context, taskType string, _ api.TaskProvider) (disposable.Disposable, error) {
	t.r.record("tasks", "RegisterTaskProvider", taskType)
	return t.r.track(nil), nil
}

func (t tasks) FetchTasks(_ context.Context, taskType string) ([]api.Task, error) {
	t.r.record("tasks", "FetchTasks", taskType)
	return nil, nil
}

func (t tasks) ExecuteTask(ctx context.Context, task api.Task) (*api.TaskExecution, error) {
	t.r.record("tasks", "ExecuteTask", task.Name)
	e := api.NewTaskExecution(ownerOf(ctx), task, t.r)
	t.r.keep(e)
	return e, nil
}

type scm struct{ r *Recorder }

func (s scm) CreateSourceControl(ctx context.Context, id, label string, root api.URI) (*api.SourceControlHandle, error) {
	s.r.record("scm", "CreateSourceControl", id, label, root)
	sc := api.NewSourceControl(ownerOf(ctx), id, label, root, s.r)
	s.r.keep(sc)
	return sc, nil
}

type env struct{ r *Recorder }

func (e env) AppName() string   { return "apitest" }
func (e env) AppRoot() string   { return "/" }
func (e env) Language() string  { return "en" }
func (e env) MachineID() string { return "apitest-machine" }
func (e env) SessionID() string { return "apitest-session" }

func (e env) ReadClipboard(context.Context) (string, error) {
	e.r.record("env", "ReadClipboard")
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	return e.r.clipboard, nil
}

func (e env) WriteClipboard(_ context.Context, text string) error {
	e.r.record("env", "WriteClipboard", text)
	e.r.mu.Lock()
	defer e.r.mu.Unlock()
	e.r.clipboard = text
	return nil
}

func (e env) OpenExternal(_ context.Context, uri api.URI) (bool, error) {
	e.r.record("env", "OpenExternal", uri.String())
	return true, nil
}
