package api

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension/security"
)

type debugProviderEntry struct {
	id       string
	owner    string
	provider DebugConfigurationProvider
}

type debugAPI struct{ h *Host }

func (d debugAPI) StartDebugging(ctx context.Context, cfg DebugConfiguration) (*DebugSession, error) {
	owner, err := d.h.acquire(ctx, security.GroupDebug, "debug.startDebugging")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, invalid("debug configuration has no type")
	}

	d.h.mu.RLock()
	providers := slices.Clone(d.h.debugProviders[cfg.Type])
	d.h.mu.RUnlock()
	for _, p := range providers {
		resolved, err := callProvider(func() (DebugConfiguration, error) {
			return p.provider.ResolveDebugConfiguration(WithOwner(ctx, p.owner), cfg)
		})
		if err != nil {
			return nil, err
		}
		cfg = resolved
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Type
	}
	if cfg.Request == "" {
		cfg.Request = "launch"
	}

	session := NewDebugSession(owner, cfg, d.h)
	session.onClose = func() {
		d.h.mu.Lock()
		delete(d.h.sessions, session.ID())
		d.h.mu.Unlock()
	}
	d.h.mu.Lock()
	d.h.sessions[session.ID()] = session
	d.h.mu.Unlock()

	if err := d.h.track(owner, session, session.close); err != nil {
		session.onClose()
		return nil, err
	}
	d.h.Notify(TopicDebugStarted, owner, DebugEvent{SessionID: session.ID(), Type: cfg.Type, Name: cfg.Name})
	return session, nil
}

func (d debugAPI) StopDebugging(ctx context.Context, session *DebugSession) error {
	owner, err := d.h.acquire(ctx, security.GroupDebug, "debug.stopDebugging")
	if err != nil {
		return err
	}
	if session == nil {
		return invalid("nil debug session")
	}
	if session.Owner() != owner {
		return invalid("debug session %s belongs to another extension", session.ID())
	}
	return session.Dispose()
}

func (d debugAPI) RegisterConfigurationProvider(ctx context.Context, debugType string, p DebugConfigurationProvider) (disposable.Disposable, error) {
	owner, err := d.h.acquire(ctx, security.GroupDebug, "debug.registerConfigurationProvider")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(debugType) == "" {
		return nil, invalid("empty debug type")
	}
	if p == nil {
		return nil, invalid("nil debug configuration provider")
	}

	entry := &debugProviderEntry{id: uuid.NewString(), owner: owner, provider: p}
	d.h.mu.Lock()
	d.h.debugProviders[debugType] = append(d.h.debugProviders[debugType], entry)
	d.h.mu.Unlock()

	return d.h.retain(owner, disposable.FuncNoErr(func() {
		d.h.mu.Lock()
		defer d.h.mu.Unlock()
		remaining := slices.DeleteFunc(d.h.debugProviders[debugType], func(e *debugProviderEntry) bool {
			return e.id == entry.id
		})
		if len(remaining) == 0 {
			delete(d.h.debugProviders, debugType)
		} else {
			d.h.debugProviders[debugType] = remaining
		}
	}))
}

func (d debugAPI) AddBreakpoints(ctx context.Context, bps ...Breakpoint) ([]Breakpoint, error) {
	owner, err := d.h.acquire(ctx, security.GroupDebug, "debug.addBreakpoints")
	if err != nil {
		return nil, err
	}
	for i, bp := range bps {
		if bp.Location.URI.IsZero() {
			return nil, invalid("breakpoint %d has no location", i)
		}
	}

	added := make([]Breakpoint, len(bps))
	d.h.mu.Lock()
	for i, bp := range bps {
		if bp.ID == "" {
			bp.ID = uuid.NewString()
		} else if slices.ContainsFunc(d.h.breakpoints, func(b Breakpoint) bool { return b.ID == bp.ID }) {
			d.h.mu.Unlock()
			return nil, invalid("breakpoint %s already exists", bp.ID)
		}
		bp.Owner = owner
		added[i] = bp
	}
	d.h.breakpoints = append(d.h.breakpoints, added...)
	d.h.mu.Unlock()

	d.h.Notify(TopicBreakpoints, owner, BreakpointsEvent{Added: slices.Clone(added)})
	return added, nil
}

func (d debugAPI) RemoveBreakpoints(ctx context.Context, ids ...string) error {
	owner, err := d.h.acquire(ctx, security.GroupDebug, "debug.removeBreakpoints")
	if err != nil {
		return err
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var removed []Breakpoint
	d.h.mu.Lock()
	for _, bp := range d.h.breakpoints {
		if _, ok := want[bp.ID]; ok && bp.Owner != owner {
			d.h.mu.Unlock()
			return invalid("breakpoint %s belongs to another extension", bp.ID)
		}
	}
	d.h.breakpoints = slices.DeleteFunc(d.h.breakpoints, func(bp Breakpoint) bool {
		if _, ok := want[bp.ID]; ok {
			removed = append(removed, bp)
			return true
		}
		return false
	})
	d.h.mu.Unlock()

	if len(removed) > 0 {
		d.h.Notify(TopicBreakpoints, owner, BreakpointsEvent{Removed: removed})
	}
	return nil
}

func (d debugAPI) Breakpoints() []Breakpoint {
	d.h.mu.RLock()
	defer d.h.mu.RUnlock()
	return slices.Clone(d.h.breakpoints)
}

// ActiveDebugSessions returns the ids of running sessions, sorted.
func (h *Host) ActiveDebugSessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

var _ Debug = debugAPI{}
