package api

import "github.com/dshills/exthost/internal/event"

// Side-effect topics published on the host event bus. The UI layer
// subscribes to these to render what extensions asked for.
const (
	TopicWindowMessage     event.Topic = "window.message"
	TopicStatusBarChanged  event.Topic = "statusbar.changed"
	TopicStatusBarDisposed event.Topic = "statusbar.disposed"
	TopicStatusBarMessage  event.Topic = "statusbar.message"
	TopicOutputAppend      event.Topic = "output.append"
	TopicOutputClear       event.Topic = "output.clear"
	TopicOutputShow        event.Topic = "output.show"
	TopicOutputDisposed    event.Topic = "output.disposed"
	TopicTerminalCreated   event.Topic = "terminal.created"
	TopicTerminalSendText  event.Topic = "terminal.sendText"
	TopicTerminalShow      event.Topic = "terminal.show"
	TopicTerminalDisposed  event.Topic = "terminal.disposed"
	TopicWebviewCreated    event.Topic = "webview.created"
	TopicWebviewHTML       event.Topic = "webview.html"
	TopicWebviewMessage    event.Topic = "webview.message"
	TopicWebviewDisposed   event.Topic = "webview.disposed"
	TopicDiagnostics       event.Topic = "languages.diagnostics"
	TopicProviderChanged   event.Topic = "languages.provider"
	TopicDebugStarted      event.Topic = "debug.started"
	TopicDebugTerminated   event.Topic = "debug.terminated"
	TopicDebugRequest      event.Topic = "debug.request"
	TopicBreakpoints       event.Topic = "debug.breakpoints"
	TopicTaskStarted       event.Topic = "tasks.started"
	TopicTaskTerminated    event.Topic = "tasks.terminated"
	TopicSCMChanged        event.Topic = "scm.changed"
	TopicSCMDisposed       event.Topic = "scm.disposed"
	TopicConfiguration     event.Topic = "workspace.configuration"
	TopicFileChanged       event.Topic = "workspace.file"
	TopicClipboard         event.Topic = "env.clipboard"
	TopicOpenExternal      event.Topic = "env.openExternal"
)

// Notifier receives side effects produced by handles.
type Notifier interface {
	Notify(topic event.Topic, owner string, payload any)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(topic event.Topic, owner string, payload any)

// Notify calls f.
func (f NotifierFunc) Notify(topic event.Topic, owner string, payload any) {
	f(topic, owner, payload)
}

type nopNotifier struct{}

func (nopNotifier) Notify(event.Topic, string, any) {}

// MessageEvent is published for ShowMessage.
type MessageEvent struct {
	Severity Severity
	Message  string
	Items    []string
}

// StatusBarMessageEvent is published by SetStatusBarMessage. An empty
// Message clears the status bar.
type StatusBarMessageEvent struct {
	Message string
}

// OutputEvent is published by output channel operations.
type OutputEvent struct {
	Channel string
	Text    string
}

// TerminalEvent is published by terminal operations.
type TerminalEvent struct {
	TerminalID string
	Name       string
	Text       string
}

// WebviewEvent is published by webview operations.
type WebviewEvent struct {
	PanelID  string
	ViewType string
	Title    string
	HTML     string
	Message  any
}

// DiagnosticsEvent is published when a collection changes.
type DiagnosticsEvent struct {
	Collection string
	URI        URI
	Count      int
}

// ProviderEvent is published when a language provider is added or removed.
type ProviderEvent struct {
	Kind     ProviderKind
	Selector DocumentSelector
	Removed  bool
}

// DebugEvent is published by debug session operations.
type DebugEvent struct {
	SessionID string
	Type      string
	Name      string
	Command   string
}

// BreakpointsEvent is published when breakpoints change.
type BreakpointsEvent struct {
	Added   []Breakpoint
	Removed []Breakpoint
}

// TaskEvent is published by task executions.
type TaskEvent struct {
	ExecutionID string
	Task        Task
}

// SCMEvent is published when a source control changes.
type SCMEvent struct {
	ID    string
	Label string
	Count int
	Input string
}

// ConfigurationChangeEvent describes a configuration update.
type ConfigurationChangeEvent struct {
	Keys []string
}

// AffectsConfiguration reports whether section or any key below it changed.
func (e ConfigurationChangeEvent) AffectsConfiguration(section string) bool {
	for _, k := range e.Keys {
		if section == "" || k == section || hasSectionPrefix(k, section) {
			return true
		}
	}
	return false
}

func hasSectionPrefix(key, section string) bool {
	return len(key) > len(section) && key[:len(section)] == section && key[len(section)] == '.'
}

// FileEventKind classifies a file system change.
type FileEventKind int

// File event kinds.
const (
	FileCreated FileEventKind = iota
	FileChanged
	FileDeleted
)

// String returns a string representation of the kind.
func (k FileEventKind) String() string {
	switch k {
	case FileCreated:
		return "created"
	case FileChanged:
		return "changed"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileEvent is delivered to file system watchers.
type FileEvent struct {
	Kind FileEventKind
	URI  URI
}

// ExternalEvent is published by OpenExternal.
type ExternalEvent struct {
	URI URI
}
