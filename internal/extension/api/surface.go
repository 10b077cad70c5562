package api

import (
	"context"
	"time"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/disposable"
)

// Surface is the full capability surface handed to an extension.
type Surface interface {
	Window() Window
	Workspace() Workspace
	Commands() Commands
	Languages() Languages
	Debug() Debug
	Tasks() Tasks
	SourceControl() SourceControl
	Env() Env
}

// Severity is the level of a user-facing message.
type Severity string

// Message severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityError
}

// Alignment places a status bar item.
type Alignment int

// Status bar alignments.
const (
	AlignLeft Alignment = iota + 1
	AlignRight
)

// String returns a string representation of the alignment.
func (a Alignment) String() string {
	switch a {
	case AlignLeft:
		return "left"
	case AlignRight:
		return "right"
	default:
		return "unknown"
	}
}

// QuickPickOptions configures ShowQuickPick.
type QuickPickOptions struct {
	Title       string
	Placeholder string
	CanPickMany bool
}

// InputBoxOptions configures ShowInputBox.
type InputBoxOptions struct {
	Prompt      string
	Placeholder string
	Value       string
	Password    bool
}

// TerminalOptions configures CreateTerminal.
type TerminalOptions struct {
	Name      string
	ShellPath string
	ShellArgs []string
	Cwd       string
	Env       map[string]string
}

// WebviewOptions configures CreateWebviewPanel.
type WebviewOptions struct {
	EnableScripts bool
}

// Window is the window/UI group.
type Window interface {
	// ShowMessage shows a message and resolves to the chosen item, or ""
	// if the message was dismissed.
	ShowMessage(ctx context.Context, severity Severity, message string, items ...string) (string, error)
	ShowQuickPick(ctx context.Context, items []string, opts QuickPickOptions) (string, error)
	ShowInputBox(ctx context.Context, opts InputBoxOptions) (string, error)
	CreateOutputChannel(ctx context.Context, name string) (*OutputChannel, error)
	CreateStatusBarItem(ctx context.Context, alignment Alignment, priority int) (*StatusBarItem, error)
	// SetStatusBarMessage shows message until the returned Disposable is
	// released or timeout elapses. A zero timeout never expires.
	SetStatusBarMessage(ctx context.Context, message string, timeout time.Duration) (disposable.Disposable, error)
	CreateTerminal(ctx context.Context, opts TerminalOptions) (*Terminal, error)
	CreateWebviewPanel(ctx context.Context, viewType, title string, opts WebviewOptions) (*WebviewPanel, error)
}

// WorkspaceFolder is one root of the open workspace.
type WorkspaceFolder struct {
	URI   URI
	Name  string
	Index int
}

// Configuration is a read-only view of one configuration section.
type Configuration interface {
	Get(key string, def any) any
	Has(key string) bool
	Keys() []string
}

// Workspace is the workspace group.
type Workspace interface {
	Folders() []WorkspaceFolder
	Configuration(section string) Configuration
	// FindFiles returns files below the workspace folders whose relative
	// path (or base name, for patterns without a slash) matches pattern.
	// A max of zero means no limit.
	FindFiles(ctx context.Context, pattern string, max int) ([]URI, error)
	OnDidChangeConfiguration(ctx context.Context, fn func(ConfigurationChangeEvent)) (disposable.Disposable, error)
	CreateFileSystemWatcher(ctx context.Context, glob string, fn func(FileEvent)) (*FileSystemWatcher, error)
}

// Commands is the commands group.
type Commands interface {
	RegisterCommand(ctx context.Context, id string, handler command.Handler) (disposable.Disposable, error)
	ExecuteCommand(ctx context.Context, id string, args ...any) (any, error)
	GetCommands(filterInternal bool) []string
}

// Languages is the language services group.
type Languages interface {
	// RegisterProvider registers provider for documents matching selector.
	// The provider must implement the interface that goes with kind.
	RegisterProvider(ctx context.Context, kind ProviderKind, selector DocumentSelector, provider any) (disposable.Disposable, error)
	CreateDiagnosticCollection(ctx context.Context, name string) (*DiagnosticCollection, error)
	Languages() []string
}

// DebugConfiguration describes a debug launch.
type DebugConfiguration struct {
	Type     string
	Name     string
	Request  string
	Settings map[string]any
}

// DebugConfigurationProvider may fill in or veto a configuration before a
// session starts.
type DebugConfigurationProvider interface {
	ResolveDebugConfiguration(ctx context.Context, cfg DebugConfiguration) (DebugConfiguration, error)
}

// Breakpoint is a source breakpoint.
type Breakpoint struct {
	ID        string
	Location  Location
	Enabled   bool
	Condition string
	// Owner is set by the host to the extension that added it. Only the
	// owner may remove it.
	Owner string
}

// Debug is the debug group.
type Debug interface {
	StartDebugging(ctx context.Context, cfg DebugConfiguration) (*DebugSession, error)
	StopDebugging(ctx context.Context, session *DebugSession) error
	RegisterConfigurationProvider(ctx context.Context, debugType string, p DebugConfigurationProvider) (disposable.Disposable, error)
	// AddBreakpoints adds breakpoints, assigning ids to those without one,
	// and returns them as stored.
	AddBreakpoints(ctx context.Context, bps ...Breakpoint) ([]Breakpoint, error)
	RemoveBreakpoints(ctx context.Context, ids ...string) error
	Breakpoints() []Breakpoint
}

// Task is a unit of work a task provider can supply.
type Task struct {
	Name    string
	Type    string
	Source  string
	Command string
	Args    []string
}

// TaskProvider supplies tasks of one type.
type TaskProvider interface {
	ProvideTasks(ctx context.Context) ([]Task, error)
}

// Tasks is the tasks group.
type Tasks interface {
	RegisterTaskProvider(ctx context.Context, taskType string, p TaskProvider) (disposable.Disposable, error)
	// FetchTasks asks every provider (or those of taskType, if set) for
	// their tasks.
	FetchTasks(ctx context.Context, taskType string) ([]Task, error)
	ExecuteTask(ctx context.Context, task Task) (*TaskExecution, error)
}

// SourceControl is the source control group.
type SourceControl interface {
	CreateSourceControl(ctx context.Context, id, label string, root URI) (*SourceControlHandle, error)
}

// Env is the environment group.
type Env interface {
	AppName() string
	AppRoot() string
	Language() string
	MachineID() string
	SessionID() string
	ReadClipboard(ctx context.Context) (string, error)
	WriteClipboard(ctx context.Context, text string) error
	OpenExternal(ctx context.Context, uri URI) (bool, error)
}
