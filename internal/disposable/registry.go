package disposable

import (
	"errors"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dshills/exthost/internal/logging"
)

// Registry tracks disposables per owner.
//
// Each owner has its own bucket and lock; the registry-wide lock is only
// held to find or create a bucket. Operations on different owners never
// wait on each other's releases. A released owner's bucket is dropped and
// only its name is kept, so late registrations are still refused.
type Registry struct {
	mu       sync.RWMutex
	buckets  map[string]*bucket
	released map[string]struct{}
	logger   *log.Logger
}

// bucket holds one owner's disposables.
type bucket struct {
	mu       sync.Mutex
	entries  map[uint64]*entry
	next     uint64
	released bool
}

// entry is one registered disposable.
type entry struct {
	seq  uint64
	d    Disposable
	once sync.Once
	err  error
}

// release disposes the underlying resource at most once.
// It reports whether this call performed the release.
func (e *entry) release() (bool, error) {
	first := false
	e.once.Do(func() {
		first = true
		e.err = safeDispose(e.d)
	})
	if !first {
		return false, nil
	}
	return true, e.err
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used to report release failures.
func WithLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		buckets:  make(map[string]*bucket),
		released: make(map[string]struct{}),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "disposables")
	return r
}

// bucketFor returns the owner's bucket, creating it if needed. It returns
// nil once the owner was released.
func (r *Registry) bucketFor(owner string) *bucket {
	r.mu.RLock()
	b, ok := r.buckets[owner]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, gone := r.released[owner]; gone {
		return nil
	}
	if b, ok = r.buckets[owner]; ok {
		return b
	}
	b = &bucket{entries: make(map[uint64]*entry)}
	r.buckets[owner] = b
	return b
}

// lookup returns the owner's bucket without creating it.
func (r *Registry) lookup(owner string) (*bucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[owner]
	return b, ok
}

// Register records d under owner and returns a handle.
//
// Disposing the handle releases d and removes it from the registry. If the
// owner was already released, d is released immediately and
// ErrOwnerReleased is returned.
func (r *Registry) Register(owner string, d Disposable) (Disposable, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	if d == nil {
		return nil, ErrNilDisposable
	}

	b := r.bucketFor(owner)
	if b == nil {
		return nil, r.refuse(owner, d)
	}

	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil, r.refuse(owner, d)
	}
	b.next++
	e := &entry{seq: b.next, d: d}
	b.entries[e.seq] = e
	b.mu.Unlock()

	return Func(func() error {
		_, err := e.release()
		b.mu.Lock()
		delete(b.entries, e.seq)
		b.mu.Unlock()
		return err
	}), nil
}

// refuse releases a disposable registered too late.
func (r *Registry) refuse(owner string, d Disposable) error {
	if err := safeDispose(d); err != nil {
		r.logger.Warn("late disposable failed to release", "owner", owner, "error", err)
	}
	return ErrOwnerReleased
}

// ReleaseAll releases every disposable registered under owner, in
// registration order, and marks the owner released.
//
// Every disposable is attempted even if earlier ones fail or panic. Each
// failure is logged and returned as a *DisposeError joined into the result.
// Calling ReleaseAll again for the same owner is a no-op.
func (r *Registry) ReleaseAll(owner string) error {
	r.mu.Lock()
	if _, gone := r.released[owner]; gone {
		r.mu.Unlock()
		return nil
	}
	r.released[owner] = struct{}{}
	b, ok := r.buckets[owner]
	delete(r.buckets, owner)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	// Registrations that already hold b are refused from here on.
	b.mu.Lock()
	b.released = true
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.entries = make(map[uint64]*entry)
	b.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	var errs []error
	for i, e := range entries {
		first, err := e.release()
		if !first || err == nil {
			continue
		}
		derr := &DisposeError{Owner: owner, Index: i, Err: err}
		r.logger.Warn("disposable failed to release", "owner", owner, "index", i, "error", err)
		errs = append(errs, derr)
	}
	return errors.Join(errs...)
}

// Count returns the number of live disposables held by owner.
func (r *Registry) Count(owner string) int {
	b, ok := r.lookup(owner)
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// IsReleased reports whether ReleaseAll has run for owner.
func (r *Registry) IsReleased(owner string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, gone := r.released[owner]
	return gone
}

// Owners returns the owners that currently hold live disposables, sorted.
func (r *Registry) Owners() []string {
	r.mu.RLock()
	buckets := make(map[string]*bucket, len(r.buckets))
	for owner, b := range r.buckets {
		buckets[owner] = b
	}
	r.mu.RUnlock()

	owners := make([]string, 0, len(buckets))
	for owner, b := range buckets {
		b.mu.Lock()
		live := len(b.entries) > 0
		b.mu.Unlock()
		if live {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners
}
