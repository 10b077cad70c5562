package extension

import (
	"context"
	"sync"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/event"
)

// TopicLifecycle is the event bus topic lifecycle transitions are
// published on.
const TopicLifecycle event.Topic = "extension.lifecycle"

// LifecycleEvent describes one state transition.
type LifecycleEvent struct {
	ExtensionID string
	From        State
	To          State
	// Reason is set for transitions into StateError and for cleanup
	// failures.
	Reason string
	Err    error
}

// LifecycleHandler receives lifecycle events. Handlers run synchronously
// on the goroutine that made the transition and must not block.
type LifecycleHandler func(LifecycleEvent)

type subscriber struct {
	id uint64
	fn LifecycleHandler
}

type subscribers struct {
	mu     sync.RWMutex
	list   []subscriber
	nextID uint64
}

func (s *subscribers) add(fn LifecycleHandler) disposable.Disposable {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.list = append(s.list, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return disposable.FuncNoErr(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.list {
			if sub.id == id {
				s.list = append(s.list[:i:i], s.list[i+1:]...)
				return
			}
		}
	})
}

func (s *subscribers) snapshot() []subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]subscriber(nil), s.list...)
}

// Subscribe registers fn for every lifecycle transition.
func (r *Runtime) Subscribe(fn LifecycleHandler) disposable.Disposable {
	if fn == nil {
		return disposable.FuncNoErr(nil)
	}
	return r.subs.add(fn)
}

// emit delivers ev to subscribers and the event bus. It must be called
// without holding any extension lock.
func (r *Runtime) emit(ev LifecycleEvent) {
	for _, sub := range r.subs.snapshot() {
		r.deliver(sub, ev)
	}
	r.host.Events().Publish(context.Background(), event.Event{
		Topic:   TopicLifecycle,
		Source:  ev.ExtensionID,
		Payload: ev,
	})
}

func (r *Runtime) deliver(sub subscriber, ev LifecycleEvent) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("lifecycle handler panicked", "extension", ev.ExtensionID, "panic", p)
		}
	}()
	sub.fn(ev)
}
