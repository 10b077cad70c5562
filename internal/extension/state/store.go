package state

import (
	"sort"
	"sync"
)

// Scope selects which of an extension's stores to use.
type Scope int

const (
	// ScopeWorkspace is state tied to the open workspace.
	ScopeWorkspace Scope = iota

	// ScopeGlobal is state shared across workspaces.
	ScopeGlobal
)

// String returns a string representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeWorkspace:
		return "workspace"
	case ScopeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

type storeKey struct {
	scope Scope
	id    string
}

// Store owns the mementos of every extension for the life of the host.
// State survives deactivation and reactivation of an extension but not a
// host restart.
type Store struct {
	mu       sync.Mutex
	mementos map[storeKey]*Memento
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{mementos: make(map[storeKey]*Memento)}
}

// Memento returns the memento for extensionID in scope, creating it on
// first use.
func (s *Store) Memento(scope Scope, extensionID string) *Memento {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := storeKey{scope: scope, id: extensionID}
	m, ok := s.mementos[k]
	if !ok {
		m = NewMemento()
		s.mementos[k] = m
	}
	return m
}

// Workspace is shorthand for Memento(ScopeWorkspace, id).
func (s *Store) Workspace(extensionID string) *Memento {
	return s.Memento(ScopeWorkspace, extensionID)
}

// Global is shorthand for Memento(ScopeGlobal, id).
func (s *Store) Global(extensionID string) *Memento {
	return s.Memento(ScopeGlobal, extensionID)
}

// Drop forgets both mementos of extensionID.
func (s *Store) Drop(extensionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mementos, storeKey{scope: ScopeWorkspace, id: extensionID})
	delete(s.mementos, storeKey{scope: ScopeGlobal, id: extensionID})
}

// Extensions returns the ids that have any state, sorted.
func (s *Store) Extensions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for k := range s.mementos {
		seen[k.id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
