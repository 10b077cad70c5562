package security

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dshills/exthost/internal/logging"
)

// grant is what a single owner may do.
type grant struct {
	extensionID string
	groups      map[Group]struct{}
	limiter     *rate.Limiter
}

// Gate holds run-time grants per owner. The capability surface consults it
// on every call.
type Gate struct {
	mu     sync.RWMutex
	grants map[string]*grant
	logger *log.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger used for denials.
func WithGateLogger(l *log.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a gate with no grants.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		grants: make(map[string]*grant),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gate")
	return g
}

// Grant records that owner (acting for extensionID) may use groups under
// the call budget of p. A previous grant for owner is replaced.
func (g *Gate) Grant(owner, extensionID string, groups []Group, p Policy) {
	limit := rate.Inf
	burst := 0
	if p.CallsPerSecond() > 0 {
		limit = rate.Limit(p.CallsPerSecond())
		burst = p.CallBurst()
	}

	gr := &grant{
		extensionID: extensionID,
		groups:      make(map[Group]struct{}, len(groups)),
		limiter:     rate.NewLimiter(limit, burst),
	}
	for _, grp := range groups {
		gr.groups[grp] = struct{}{}
	}

	g.mu.Lock()
	g.grants[owner] = gr
	g.mu.Unlock()
}

// Revoke drops every grant of owner.
func (g *Gate) Revoke(owner string) {
	g.mu.Lock()
	delete(g.grants, owner)
	g.mu.Unlock()
}

// Check returns nil if owner may perform op in group right now.
func (g *Gate) Check(owner string, group Group, op string) error {
	g.mu.RLock()
	gr, ok := g.grants[owner]
	g.mu.RUnlock()

	if !ok {
		return &CapabilityError{Owner: owner, Group: group, Operation: op}
	}
	if _, ok := gr.groups[group]; !ok {
		g.logger.Warn("capability denied", "extension", gr.extensionID, "group", group, "op", op)
		return &CapabilityError{Owner: owner, Group: group, Operation: op}
	}
	if !gr.limiter.Allow() {
		g.logger.Warn("capability call rate exceeded", "extension", gr.extensionID, "op", op)
		return fmt.Errorf("%w: %s by %s", ErrRateLimited, op, gr.extensionID)
	}
	return nil
}

// Granted returns the groups granted to owner sorted.
func (g *Gate) Granted(owner string) []Group {
	g.mu.RLock()
	defer g.mu.RUnlock()

	gr, ok := g.grants[owner]
	if !ok {
		return nil
	}
	groups := make([]Group, 0, len(gr.groups))
	for grp := range gr.groups {
		groups = append(groups, grp)
	}
	sortGroups(groups)
	return groups
}

// ExtensionID returns the extension an owner acts for.
func (g *Gate) ExtensionID(owner string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gr, ok := g.grants[owner]
	if !ok {
		return "", false
	}
	return gr.extensionID, true
}
