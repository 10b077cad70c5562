package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/event"
	"github.com/dshills/exthost/internal/extension/security"
	"github.com/dshills/exthost/internal/logging"
)

// AppInfo identifies the host application to extensions.
type AppInfo struct {
	Name     string
	Root     string
	Language string
}

// Host is the registry-backed Surface implementation shared by every
// extension.
type Host struct {
	registry *disposable.Registry
	commands *command.Bus
	events   *event.Bus
	gate     *security.Gate
	prompter Prompter
	logger   *log.Logger

	app       AppInfo
	machineID string
	sessionID string

	mu        sync.RWMutex
	folders   []WorkspaceFolder
	config    map[string]any
	clipboard string

	providers      []*providerEntry
	debugProviders map[string][]*debugProviderEntry
	taskProviders  []*taskProviderEntry
	sessions       map[string]*DebugSession
	breakpoints    []Breakpoint
	live           Resources
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithRegistry sets the disposable registry.
func WithRegistry(r *disposable.Registry) HostOption {
	return func(h *Host) { h.registry = r }
}

// WithCommandBus sets the command bus.
func WithCommandBus(b *command.Bus) HostOption {
	return func(h *Host) { h.commands = b }
}

// WithEventBus sets the bus side effects are published on.
func WithEventBus(b *event.Bus) HostOption {
	return func(h *Host) { h.events = b }
}

// WithGate sets the capability gate.
func WithGate(g *security.Gate) HostOption {
	return func(h *Host) { h.gate = g }
}

// WithPrompter sets who answers interactive requests.
func WithPrompter(p Prompter) HostOption {
	return func(h *Host) { h.prompter = p }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithAppInfo sets the application identity.
func WithAppInfo(info AppInfo) HostOption {
	return func(h *Host) { h.app = info }
}

// WithWorkspaceFolders sets the workspace roots.
func WithWorkspaceFolders(paths ...string) HostOption {
	return func(h *Host) {
		h.folders = h.folders[:0]
		for i, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				abs = filepath.Clean(p)
			}
			h.folders = append(h.folders, WorkspaceFolder{
				URI:   FileURI(abs),
				Name:  filepath.Base(abs),
				Index: i,
			})
		}
	}
}

// WithConfiguration sets the initial configuration values, keyed by
// dotted path.
func WithConfiguration(values map[string]any) HostOption {
	return func(h *Host) {
		h.config = make(map[string]any, len(values))
		for k, v := range values {
			h.config[k] = v
		}
	}
}

// NewHost creates a host surface. Collaborators not supplied through
// options are created fresh.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		prompter:       AutoPrompter{},
		logger:         logging.Discard(),
		config:         make(map[string]any),
		debugProviders: make(map[string][]*debugProviderEntry),
		sessions:       make(map[string]*DebugSession),
		sessionID:      uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "surface")
	if h.registry == nil {
		h.registry = disposable.NewRegistry(disposable.WithLogger(h.logger))
	}
	if h.commands == nil {
		h.commands = command.NewBus(command.WithLogger(h.logger))
	}
	if h.events == nil {
		h.events = event.NewBus()
	}
	if h.gate == nil {
		h.gate = security.NewGate(security.WithGateLogger(h.logger))
	}
	if h.app.Name == "" {
		h.app.Name = "exthost"
	}
	if h.app.Root == "" {
		h.app.Root, _ = os.Getwd()
	}
	if h.app.Language == "" {
		h.app.Language = "en"
	}
	h.machineID = machineID()
	return h
}

// machineID is stable for a host machine.
func machineID() string {
	hostname, _ := os.Hostname()
	name := fmt.Sprintf("%s-%s-%s", hostname, runtime.GOOS, runtime.GOARCH)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Registry returns the disposable registry.
func (h *Host) Registry() *disposable.Registry { return h.registry }

// CommandBus returns the command bus.
func (h *Host) CommandBus() *command.Bus { return h.commands }

// Events returns the event bus.
func (h *Host) Events() *event.Bus { return h.events }

// Gate returns the capability gate.
func (h *Host) Gate() *security.Gate { return h.gate }

// Notify publishes a side effect on the event bus.
func (h *Host) Notify(topic event.Topic, owner string, payload any) {
	h.events.Publish(context.Background(), event.Event{Topic: topic, Source: owner, Payload: payload})
}

// acquire resolves the calling owner and checks it may use group.
func (h *Host) acquire(ctx context.Context, group security.Group, op string) (string, error) {
	owner, ok := OwnerFrom(ctx)
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrNoOwner)
	}
	if err := h.gate.Check(owner, group, op); err != nil {
		return "", err
	}
	return owner, nil
}

// attachable is a handle that can be linked to its registry entry.
type attachable interface {
	attach(reg disposable.Disposable)
}

// track registers a handle under owner. close runs when the owner is
// released or the handle is disposed, whichever comes first.
func (h *Host) track(owner string, handle attachable, close func()) error {
	var once sync.Once
	release := func() {
		once.Do(func() { h.adjust(handle, -1) })
		close()
	}
	h.adjust(handle, 1)
	reg, err := h.registry.Register(owner, disposable.FuncNoErr(release))
	if err != nil {
		once.Do(func() { h.adjust(handle, -1) })
		return err
	}
	handle.attach(reg)
	return nil
}

// retain registers d under owner, disposing it at once if the owner was
// already released.
func (h *Host) retain(owner string, d disposable.Disposable) (disposable.Disposable, error) {
	reg, err := h.registry.Register(owner, d)
	if err != nil {
		_ = d.Dispose()
		return nil, err
	}
	return reg, nil
}

// Window returns the window group.
func (h *Host) Window() Window { return windowAPI{h} }

// Workspace returns the workspace group.
func (h *Host) Workspace() Workspace { return workspaceAPI{h} }

// Commands returns the commands group.
func (h *Host) Commands() Commands { return commandsAPI{h} }

// Languages returns the languages group.
func (h *Host) Languages() Languages { return languagesAPI{h} }

// Debug returns the debug group.
func (h *Host) Debug() Debug { return debugAPI{h} }

// Tasks returns the tasks group.
func (h *Host) Tasks() Tasks { return tasksAPI{h} }

// SourceControl returns the source control group.
func (h *Host) SourceControl() SourceControl { return scmAPI{h} }

// Env returns the environment group.
func (h *Host) Env() Env { return envAPI{h} }

// UpdateConfiguration merges values into the configuration and notifies
// listeners. A nil value removes the key. It is called by the host core.
func (h *Host) UpdateConfiguration(values map[string]any) {
	keys := make([]string, 0, len(values))
	h.mu.Lock()
	for k, v := range values {
		if v == nil {
			delete(h.config, k)
		} else {
			h.config[k] = v
		}
		keys = append(keys, k)
	}
	h.mu.Unlock()

	sort.Strings(keys)
	h.Notify(TopicConfiguration, "", ConfigurationChangeEvent{Keys: keys})
}

var _ Surface = (*Host)(nil)
