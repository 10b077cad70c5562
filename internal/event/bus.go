package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published occurrence.
type Event struct {
	// Topic names the event.
	Topic Topic

	// Source identifies the publisher, usually an extension id or "host".
	Source string

	// Payload carries event data. Payloads are values or copies; they never
	// alias host-internal state.
	Payload any

	// Time is when the event was published.
	Time time.Time
}

// Handler receives events.
type Handler func(ctx context.Context, ev Event)

// PanicHandler is called when a subscriber panics.
type PanicHandler func(ev Event, recovered any)

// Stats contains bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Panics      uint64
	Subscribers int
}

// Bus delivers events to subscribers whose pattern matches the topic.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64
	closed bool

	panicHandler PanicHandler

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithPanicHandler sets the function called when a subscriber panics.
func WithPanicHandler(h PanicHandler) BusOption {
	return func(b *Bus) {
		b.panicHandler = h
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is a registered handler. Dispose removes it.
type Subscription struct {
	id      uint64
	pattern Topic
	handler Handler
	bus     *Bus
	active  atomic.Bool
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return fmt.Sprintf("sub-%d", s.id)
}

// Pattern returns the subscribed topic pattern.
func (s *Subscription) Pattern() Topic {
	return s.pattern
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// Dispose unsubscribes. Repeated calls are no-ops.
func (s *Subscription) Dispose() error {
	if !s.active.Swap(false) {
		return nil
	}
	s.bus.remove(s)
	return nil
}

// Subscribe registers handler for topics matching pattern.
func (b *Bus) Subscribe(pattern Topic, handler Handler) (*Subscription, error) {
	if !pattern.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		pattern: pattern,
		handler: handler,
		bus:     b,
	}
	sub.active.Store(true)
	b.subs = append(b.subs, sub)
	return sub, nil
}

// remove drops a subscription from the bus.
func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every matching subscriber and returns how many
// handlers ran. A zero Time is set to now. Publishing on a closed bus or
// with an invalid topic delivers nothing.
func (b *Bus) Publish(ctx context.Context, ev Event) int {
	if !ev.Topic.Valid() || ev.Topic.IsPattern() {
		return 0
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	matched := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if ev.Topic.Matches(sub.pattern) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	b.published.Add(1)

	delivered := 0
	for _, sub := range matched {
		if !sub.IsActive() {
			continue
		}
		b.deliver(ctx, sub, ev)
		delivered++
	}
	b.delivered.Add(uint64(delivered))
	return delivered
}

// deliver calls one handler with panic recovery.
func (b *Bus) deliver(ctx context.Context, sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			if b.panicHandler != nil {
				b.panicHandler(ev, r)
			}
		}
	}()
	sub.handler(ctx, ev)
}

// Close removes all subscriptions. Later publishes deliver nothing.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.active.Store(false)
	}
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Panics:      b.panics.Load(),
		Subscribers: n,
	}
}
