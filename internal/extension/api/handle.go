package api

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/event"
)

// handle is the bookkeeping shared by every resource handle.
type handle struct {
	mu           sync.Mutex
	id           string
	owner        string
	notifier     Notifier
	disposed     bool
	registration disposable.Disposable
}

func newHandle(owner string, n Notifier) handle {
	if n == nil {
		n = nopNotifier{}
	}
	return handle{id: uuid.NewString(), owner: owner, notifier: n}
}

// ID returns the handle's unique id.
func (h *handle) ID() string { return h.id }

// Owner returns the owner the handle was acquired for.
func (h *handle) Owner() string { return h.owner }

// IsDisposed reports whether the handle was released.
func (h *handle) IsDisposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}

// attach links the handle to its registry entry.
func (h *handle) attach(reg disposable.Disposable) {
	h.mu.Lock()
	h.registration = reg
	h.mu.Unlock()
}

// markDisposed flips the disposed flag and reports whether this call did.
func (h *handle) markDisposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return false
	}
	h.disposed = true
	return true
}

// dispose releases through the registry when attached so the entry is
// dropped too; close runs exactly once either way.
func (h *handle) dispose(close func()) error {
	h.mu.Lock()
	reg := h.registration
	h.mu.Unlock()
	if reg != nil {
		return reg.Dispose()
	}
	close()
	return nil
}

func (h *handle) notify(topic event.Topic, payload any) {
	h.notifier.Notify(topic, h.owner, payload)
}

// OutputChannel is a named text sink shown by the UI layer.
type OutputChannel struct {
	handle
	name    string
	content strings.Builder
}

// NewOutputChannel creates an unattached output channel.
func NewOutputChannel(owner, name string, n Notifier) *OutputChannel {
	return &OutputChannel{handle: newHandle(owner, n), name: name}
}

// Name returns the channel name.
func (c *OutputChannel) Name() string { return c.name }

// Append adds text to the channel.
func (c *OutputChannel) Append(text string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrHandleDisposed
	}
	c.content.WriteString(text)
	c.mu.Unlock()

	c.notify(TopicOutputAppend, OutputEvent{Channel: c.name, Text: text})
	return nil
}

// AppendLine adds text followed by a newline.
func (c *OutputChannel) AppendLine(text string) error {
	return c.Append(text + "\n")
}

// Clear empties the channel.
func (c *OutputChannel) Clear() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrHandleDisposed
	}
	c.content.Reset()
	c.mu.Unlock()

	c.notify(TopicOutputClear, OutputEvent{Channel: c.name})
	return nil
}

// Show asks the UI layer to reveal the channel.
func (c *OutputChannel) Show() error {
	if c.IsDisposed() {
		return ErrHandleDisposed
	}
	c.notify(TopicOutputShow, OutputEvent{Channel: c.name})
	return nil
}

// Content returns everything appended since the last Clear.
func (c *OutputChannel) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content.String()
}

// Dispose releases the channel.
func (c *OutputChannel) Dispose() error { return c.dispose(c.close) }

func (c *OutputChannel) close() {
	if !c.markDisposed() {
		return
	}
	c.notify(TopicOutputDisposed, OutputEvent{Channel: c.name})
}

// StatusBarState is a snapshot of a status bar item.
type StatusBarState struct {
	ID        string
	Alignment Alignment
	Priority  int
	Text      string
	Tooltip   string
	Command   string
	Color     string
	Visible   bool
}

// StatusBarItem is an item in the status bar.
type StatusBarItem struct {
	handle
	state StatusBarState
}

// NewStatusBarItem creates an unattached, hidden status bar item.
func NewStatusBarItem(owner string, alignment Alignment, priority int, n Notifier) *StatusBarItem {
	item := &StatusBarItem{handle: newHandle(owner, n)}
	item.state = StatusBarState{ID: item.id, Alignment: alignment, Priority: priority}
	return item
}

func (s *StatusBarItem) update(fn func(*StatusBarState)) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrHandleDisposed
	}
	fn(&s.state)
	snap := s.state
	s.mu.Unlock()

	s.notify(TopicStatusBarChanged, snap)
	return nil
}

// SetText sets the item text.
func (s *StatusBarItem) SetText(text string) error {
	return s.update(func(st *StatusBarState) { st.Text = text })
}

// SetTooltip sets the hover text.
func (s *StatusBarItem) SetTooltip(tooltip string) error {
	return s.update(func(st *StatusBarState) { st.Tooltip = tooltip })
}

// SetCommand sets the command run when the item is clicked.
func (s *StatusBarItem) SetCommand(id string) error {
	return s.update(func(st *StatusBarState) { st.Command = id })
}

// SetColor sets the text color.
func (s *StatusBarItem) SetColor(color string) error {
	return s.update(func(st *StatusBarState) { st.Color = color })
}

// Show makes the item visible.
func (s *StatusBarItem) Show() error {
	return s.update(func(st *StatusBarState) { st.Visible = true })
}

// Hide hides the item.
func (s *StatusBarItem) Hide() error {
	return s.update(func(st *StatusBarState) { st.Visible = false })
}

// State returns a snapshot of the item.
func (s *StatusBarItem) State() StatusBarState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispose removes the item.
func (s *StatusBarItem) Dispose() error { return s.dispose(s.close) }

func (s *StatusBarItem) close() {
	if !s.markDisposed() {
		return
	}
	s.notify(TopicStatusBarDisposed, s.State())
}

// Terminal is an integrated terminal rendered by the UI layer.
type Terminal struct {
	handle
	opts TerminalOptions
}

// NewTerminal creates an unattached terminal.
func NewTerminal(owner string, opts TerminalOptions, n Notifier) *Terminal {
	if opts.Name == "" {
		opts.Name = "Terminal"
	}
	opts.ShellArgs = slices.Clone(opts.ShellArgs)
	opts.Env = maps.Clone(opts.Env)
	return &Terminal{handle: newHandle(owner, n), opts: opts}
}

// Name returns the terminal name.
func (t *Terminal) Name() string { return t.opts.Name }

// Options returns a copy of the creation options.
func (t *Terminal) Options() TerminalOptions {
	o := t.opts
	o.ShellArgs = slices.Clone(o.ShellArgs)
	o.Env = maps.Clone(o.Env)
	return o
}

// SendText writes text to the terminal, optionally followed by a newline.
func (t *Terminal) SendText(text string, addNewLine bool) error {
	if t.IsDisposed() {
		return ErrHandleDisposed
	}
	if addNewLine {
		text += "\n"
	}
	t.notify(TopicTerminalSendText, TerminalEvent{TerminalID: t.id, Name: t.opts.Name, Text: text})
	return nil
}

// Show asks the UI layer to reveal the terminal.
func (t *Terminal) Show() error {
	if t.IsDisposed() {
		return ErrHandleDisposed
	}
	t.notify(TopicTerminalShow, TerminalEvent{TerminalID: t.id, Name: t.opts.Name})
	return nil
}

// Dispose closes the terminal.
func (t *Terminal) Dispose() error { return t.dispose(t.close) }

func (t *Terminal) close() {
	if !t.markDisposed() {
		return
	}
	t.notify(TopicTerminalDisposed, TerminalEvent{TerminalID: t.id, Name: t.opts.Name})
}

// WebviewPanel is an HTML panel rendered by the UI layer.
type WebviewPanel struct {
	handle
	viewType  string
	title     string
	opts      WebviewOptions
	html      string
	listeners []func(any)
}

// NewWebviewPanel creates an unattached webview panel.
func NewWebviewPanel(owner, viewType, title string, opts WebviewOptions, n Notifier) *WebviewPanel {
	return &WebviewPanel{handle: newHandle(owner, n), viewType: viewType, title: title, opts: opts}
}

// ViewType returns the panel's view type.
func (w *WebviewPanel) ViewType() string { return w.viewType }

// Title returns the panel title.
func (w *WebviewPanel) Title() string { return w.title }

// Options returns the creation options.
func (w *WebviewPanel) Options() WebviewOptions { return w.opts }

// SetHTML replaces the panel content.
func (w *WebviewPanel) SetHTML(html string) error {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return ErrHandleDisposed
	}
	w.html = html
	w.mu.Unlock()

	w.notify(TopicWebviewHTML, w.snapshot(nil))
	return nil
}

// HTML returns the current content.
func (w *WebviewPanel) HTML() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.html
}

// PostMessage sends msg to the panel's page.
func (w *WebviewPanel) PostMessage(msg any) error {
	if w.IsDisposed() {
		return ErrHandleDisposed
	}
	w.notify(TopicWebviewMessage, w.snapshot(msg))
	return nil
}

// OnDidReceiveMessage registers fn for messages sent by the page.
func (w *WebviewPanel) OnDidReceiveMessage(fn func(any)) error {
	if fn == nil {
		return invalid("nil message listener")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disposed {
		return ErrHandleDisposed
	}
	w.listeners = append(w.listeners, fn)
	return nil
}

// Deliver hands a message from the page to the registered listeners. It
// is called by the UI layer.
func (w *WebviewPanel) Deliver(msg any) int {
	w.mu.Lock()
	if w.disposed {
		w.mu.Unlock()
		return 0
	}
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() { _ = recover() }()
			fn(msg)
		}()
	}
	return len(listeners)
}

func (w *WebviewPanel) snapshot(msg any) WebviewEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WebviewEvent{PanelID: w.id, ViewType: w.viewType, Title: w.title, HTML: w.html, Message: msg}
}

// Dispose closes the panel.
func (w *WebviewPanel) Dispose() error { return w.dispose(w.close) }

func (w *WebviewPanel) close() {
	if !w.markDisposed() {
		return
	}
	w.mu.Lock()
	w.listeners = nil
	w.mu.Unlock()
	w.notify(TopicWebviewDisposed, WebviewEvent{PanelID: w.id, ViewType: w.viewType, Title: w.title})
}

// DiagnosticCollection holds diagnostics per resource.
type DiagnosticCollection struct {
	handle
	name  string
	items map[string][]Diagnostic
	uris  map[string]URI
}

// NewDiagnosticCollection creates an unattached collection.
func NewDiagnosticCollection(owner, name string, n Notifier) *DiagnosticCollection {
	return &DiagnosticCollection{
		handle: newHandle(owner, n),
		name:   name,
		items:  make(map[string][]Diagnostic),
		uris:   make(map[string]URI),
	}
}

// Name returns the collection name.
func (d *DiagnosticCollection) Name() string { return d.name }

// Set replaces the diagnostics of uri. An empty slice deletes them.
func (d *DiagnosticCollection) Set(uri URI, diags []Diagnostic) error {
	if uri.IsZero() {
		return invalid("empty uri")
	}
	key := uri.String()

	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return ErrHandleDisposed
	}
	if len(diags) == 0 {
		delete(d.items, key)
		delete(d.uris, key)
	} else {
		d.items[key] = slices.Clone(diags)
		d.uris[key] = uri
	}
	d.mu.Unlock()

	d.notify(TopicDiagnostics, DiagnosticsEvent{Collection: d.name, URI: uri, Count: len(diags)})
	return nil
}

// Delete removes the diagnostics of uri.
func (d *DiagnosticCollection) Delete(uri URI) error {
	return d.Set(uri, nil)
}

// Clear removes every diagnostic.
func (d *DiagnosticCollection) Clear() error {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return ErrHandleDisposed
	}
	d.items = make(map[string][]Diagnostic)
	d.uris = make(map[string]URI)
	d.mu.Unlock()

	d.notify(TopicDiagnostics, DiagnosticsEvent{Collection: d.name})
	return nil
}

// Get returns a copy of the diagnostics of uri.
func (d *DiagnosticCollection) Get(uri URI) []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.items[uri.String()])
}

// Has reports whether uri has diagnostics.
func (d *DiagnosticCollection) Has(uri URI) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.items[uri.String()]
	return ok
}

// URIs returns the resources with diagnostics, sorted by string form.
func (d *DiagnosticCollection) URIs() []URI {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.uris))
	for k := range d.uris {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]URI, len(keys))
	for i, k := range keys {
		out[i] = d.uris[k]
	}
	return out
}

// Dispose clears and releases the collection.
func (d *DiagnosticCollection) Dispose() error { return d.dispose(d.close) }

func (d *DiagnosticCollection) close() {
	if !d.markDisposed() {
		return
	}
	d.mu.Lock()
	d.items = make(map[string][]Diagnostic)
	d.uris = make(map[string]URI)
	d.mu.Unlock()
	d.notify(TopicDiagnostics, DiagnosticsEvent{Collection: d.name})
}

// SourceControlState is a snapshot of a source control provider.
type SourceControlState struct {
	ID         string
	Label      string
	Root       URI
	Count      int
	InputValue string
}

// SourceControlHandle is a source control provider registered by an
// extension.
type SourceControlHandle struct {
	handle
	state SourceControlState
}

// NewSourceControl creates an unattached source control handle.
func NewSourceControl(owner, id, label string, root URI, n Notifier) *SourceControlHandle {
	return &SourceControlHandle{
		handle: newHandle(owner, n),
		state:  SourceControlState{ID: id, Label: label, Root: root},
	}
}

func (s *SourceControlHandle) update(fn func(*SourceControlState)) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrHandleDisposed
	}
	fn(&s.state)
	snap := s.state
	s.mu.Unlock()

	s.notify(TopicSCMChanged, SCMEvent{ID: snap.ID, Label: snap.Label, Count: snap.Count, Input: snap.InputValue})
	return nil
}

// SetCount sets the badge count.
func (s *SourceControlHandle) SetCount(n int) error {
	if n < 0 {
		return invalid("negative count %d", n)
	}
	return s.update(func(st *SourceControlState) { st.Count = n })
}

// SetInputValue sets the commit message box content.
func (s *SourceControlHandle) SetInputValue(v string) error {
	return s.update(func(st *SourceControlState) { st.InputValue = v })
}

// State returns a snapshot.
func (s *SourceControlHandle) State() SourceControlState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispose unregisters the provider.
func (s *SourceControlHandle) Dispose() error { return s.dispose(s.close) }

func (s *SourceControlHandle) close() {
	if !s.markDisposed() {
		return
	}
	st := s.State()
	s.notify(TopicSCMDisposed, SCMEvent{ID: st.ID, Label: st.Label})
}

// DebugSession is a running debug session.
type DebugSession struct {
	handle
	cfg     DebugConfiguration
	onClose func()
}

// NewDebugSession creates an unattached session.
func NewDebugSession(owner string, cfg DebugConfiguration, n Notifier) *DebugSession {
	cfg.Settings = maps.Clone(cfg.Settings)
	return &DebugSession{handle: newHandle(owner, n), cfg: cfg}
}

// Type returns the debug type.
func (s *DebugSession) Type() string { return s.cfg.Type }

// Name returns the session name.
func (s *DebugSession) Name() string { return s.cfg.Name }

// Configuration returns a copy of the launch configuration.
func (s *DebugSession) Configuration() DebugConfiguration {
	c := s.cfg
	c.Settings = maps.Clone(c.Settings)
	return c
}

// CustomRequest forwards a debug adapter request to the host.
func (s *DebugSession) CustomRequest(command string) error {
	if command == "" {
		return invalid("empty debug request")
	}
	if s.IsDisposed() {
		return ErrHandleDisposed
	}
	s.notify(TopicDebugRequest, DebugEvent{SessionID: s.id, Type: s.cfg.Type, Name: s.cfg.Name, Command: command})
	return nil
}

// Dispose terminates the session.
func (s *DebugSession) Dispose() error { return s.dispose(s.close) }

func (s *DebugSession) close() {
	if !s.markDisposed() {
		return
	}
	if s.onClose != nil {
		s.onClose()
	}
	s.notify(TopicDebugTerminated, DebugEvent{SessionID: s.id, Type: s.cfg.Type, Name: s.cfg.Name})
}

// TaskExecution is a started task.
type TaskExecution struct {
	handle
	task Task
}

// NewTaskExecution creates an unattached execution.
func NewTaskExecution(owner string, task Task, n Notifier) *TaskExecution {
	task.Args = slices.Clone(task.Args)
	return &TaskExecution{handle: newHandle(owner, n), task: task}
}

// Task returns a copy of the executed task.
func (e *TaskExecution) Task() Task {
	t := e.task
	t.Args = slices.Clone(t.Args)
	return t
}

// Terminate stops the task. It is the same as Dispose.
func (e *TaskExecution) Terminate() error { return e.Dispose() }

// Dispose stops the task.
func (e *TaskExecution) Dispose() error { return e.dispose(e.close) }

func (e *TaskExecution) close() {
	if !e.markDisposed() {
		return
	}
	e.notify(TopicTaskTerminated, TaskEvent{ExecutionID: e.id, Task: e.Task()})
}
