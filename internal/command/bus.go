package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/logging"
)

// DefaultHistorySize is the number of executions kept by default.
const DefaultHistorySize = 100

// Handler runs a command. The returned value is handed back to the caller
// of Execute.
type Handler func(ctx context.Context, args ...any) (any, error)

// Registration describes a registered command.
type Registration struct {
	ID           string
	Owner        string
	RegisteredAt time.Time

	handler Handler
	token   uint64
}

// Execution is one entry of the execution history.
type Execution struct {
	ID       string
	Caller   string
	Args     int
	Duration time.Duration
	Err      error
	At       time.Time
}

// Succeeded reports whether the execution returned no error.
func (e Execution) Succeeded() bool {
	return e.Err == nil
}

// callerKey carries the identity of whoever executes a command.
type callerKey struct{}

// WithCaller annotates ctx with the identity of the executing party. It is
// only used for history attribution.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}

// Bus maps command ids to handlers.
type Bus struct {
	mu       sync.RWMutex
	commands map[string]*Registration
	byOwner  map[string]map[string]struct{}
	tokens   uint64

	histMu      sync.Mutex
	history     []Execution
	historySize int

	logger *log.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for collisions and failures.
func WithLogger(l *log.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithHistorySize bounds the execution history. Zero disables it.
func WithHistorySize(n int) BusOption {
	return func(b *Bus) {
		if n >= 0 {
			b.historySize = n
		}
	}
}

// NewBus creates an empty command bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		commands:    make(map[string]*Registration),
		byOwner:     make(map[string]map[string]struct{}),
		historySize: DefaultHistorySize,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "commands")
	return b
}

// ValidateID checks that id is usable as a command id.
func ValidateID(id string) error {
	if id == "" || strings.TrimSpace(id) != id || strings.ContainsAny(id, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidCommandID, id)
	}
	return nil
}

// Register binds id to handler on behalf of owner.
//
// The returned Disposable removes this registration only; disposing it
// after the id was re-registered by someone else does nothing.
func (b *Bus) Register(id, owner string, handler Handler) (disposable.Disposable, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	if existing, ok := b.commands[id]; ok {
		b.mu.Unlock()
		b.logger.Warn("command registration collision", "command", id, "owner", owner, "existing_owner", existing.Owner)
		return nil, &CollisionError{ID: id, Owner: owner, ExistingOwner: existing.Owner}
	}

	b.tokens++
	reg := &Registration{
		ID:           id,
		Owner:        owner,
		RegisteredAt: time.Now(),
		handler:      handler,
		token:        b.tokens,
	}
	b.commands[id] = reg
	owned, ok := b.byOwner[owner]
	if !ok {
		owned = make(map[string]struct{})
		b.byOwner[owner] = owned
	}
	owned[id] = struct{}{}
	b.mu.Unlock()

	b.logger.Debug("command registered", "command", id, "owner", owner)

	token := reg.token
	return disposable.FuncNoErr(func() {
		b.unregister(id, token)
	}), nil
}

// unregister removes id if it still belongs to the registration with token.
func (b *Bus) unregister(id string, token uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	reg, ok := b.commands[id]
	if !ok || reg.token != token {
		return false
	}
	b.removeLocked(reg)
	return true
}

// removeLocked deletes reg from both indexes. Must be called with mu held.
func (b *Bus) removeLocked(reg *Registration) {
	delete(b.commands, reg.ID)
	if owned, ok := b.byOwner[reg.Owner]; ok {
		delete(owned, reg.ID)
		if len(owned) == 0 {
			delete(b.byOwner, reg.Owner)
		}
	}
}

// UnregisterAll removes every command registered by owner and returns how
// many were removed. Commands of other owners are untouched.
func (b *Bus) UnregisterAll(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	owned, ok := b.byOwner[owner]
	if !ok {
		return 0
	}
	n := 0
	for id := range owned {
		if reg, ok := b.commands[id]; ok && reg.Owner == owner {
			delete(b.commands, id)
			n++
		}
	}
	delete(b.byOwner, owner)
	return n
}

// Execute runs the handler for id.
func (b *Bus) Execute(ctx context.Context, id string, args ...any) (any, error) {
	b.mu.RLock()
	reg, ok := b.commands[id]
	b.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrCommandNotFound, id)
		b.record(ctx, id, len(args), 0, err)
		return nil, err
	}

	start := time.Now()
	result, err := callHandler(ctx, reg.handler, args)
	b.record(ctx, id, len(args), time.Since(start), err)
	if err != nil {
		b.logger.Debug("command failed", "command", id, "owner", reg.Owner, "error", err)
		return nil, err
	}
	return result, nil
}

// callHandler invokes h, converting panics into errors.
func callHandler(ctx context.Context, h Handler, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, args...)
}

// record appends an execution to the bounded history.
func (b *Bus) record(ctx context.Context, id string, nargs int, d time.Duration, err error) {
	if b.historySize == 0 {
		return
	}
	b.histMu.Lock()
	defer b.histMu.Unlock()

	b.history = append(b.history, Execution{
		ID:       id,
		Caller:   CallerFrom(ctx),
		Args:     nargs,
		Duration: d,
		Err:      err,
		At:       time.Now(),
	})
	if over := len(b.history) - b.historySize; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
}

// History returns up to limit most recent executions, oldest first.
// A limit <= 0 returns the whole history.
func (b *Bus) History(limit int) []Execution {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	start := 0
	if limit > 0 && len(b.history) > limit {
		start = len(b.history) - limit
	}
	out := make([]Execution, len(b.history)-start)
	copy(out, b.history[start:])
	return out
}

// ClearHistory empties the execution history.
func (b *Bus) ClearHistory() {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history = nil
}

// Has reports whether id is registered.
func (b *Bus) Has(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.commands[id]
	return ok
}

// Get returns a copy of the registration for id.
func (b *Bus) Get(id string) (Registration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	reg, ok := b.commands[id]
	if !ok {
		return Registration{}, false
	}
	return Registration{ID: reg.ID, Owner: reg.Owner, RegisteredAt: reg.RegisteredAt}, true
}

// List returns registered ids sorted. With filterInternal, ids starting
// with an underscore are omitted.
func (b *Bus) List(filterInternal bool) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.commands))
	for id := range b.commands {
		if filterInternal && strings.HasPrefix(id, "_") {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OwnedBy returns the ids registered by owner, sorted.
func (b *Bus) OwnedBy(owner string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	owned := b.byOwner[owner]
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered commands.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.commands)
}
