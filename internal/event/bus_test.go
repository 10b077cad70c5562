package event

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishMatching(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var got []Topic
	_, err := bus.Subscribe("window.*", func(_ context.Context, ev Event) {
		got = append(got, ev.Topic)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, bus.Publish(ctx, Event{Topic: "window.message", Source: "demo"}))
	assert.Equal(t, 0, bus.Publish(ctx, Event{Topic: "terminal.sendText"}))
	assert.Equal(t, []Topic{"window.message"}, got)

	stats := bus.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, 1, stats.Subscribers)
}

func TestBusPublishSetsTime(t *testing.T) {
	bus := NewBus()
	var ev Event
	_, err := bus.Subscribe("x", func(_ context.Context, e Event) { ev = e })
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Topic: "x"})
	assert.False(t, ev.Time.IsZero())
}

func TestBusRejectsPatternPublish(t *testing.T) {
	bus := NewBus()
	_, err := bus.Subscribe("**", func(context.Context, Event) {})
	require.NoError(t, err)

	assert.Zero(t, bus.Publish(context.Background(), Event{Topic: "window.*"}))
	assert.Zero(t, bus.Publish(context.Background(), Event{Topic: ""}))
}

func TestBusSubscribeValidation(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe("", func(context.Context, Event) {})
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = bus.Subscribe("a", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestBusDispose(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub, err := bus.Subscribe("a", func(context.Context, Event) { calls++ })
	require.NoError(t, err)

	bus.Publish(context.Background(), Event{Topic: "a"})
	require.NoError(t, sub.Dispose())
	require.NoError(t, sub.Dispose())
	bus.Publish(context.Background(), Event{Topic: "a"})

	assert.Equal(t, 1, calls)
	assert.False(t, sub.IsActive())
	assert.Zero(t, bus.Stats().Subscribers)
}

func TestBusPanicRecovery(t *testing.T) {
	var recovered any
	bus := NewBus(WithPanicHandler(func(_ Event, r any) { recovered = r }))

	after := false
	_, err := bus.Subscribe("a", func(context.Context, Event) { panic("subscriber broke") })
	require.NoError(t, err)
	_, err = bus.Subscribe("a", func(context.Context, Event) { after = true })
	require.NoError(t, err)

	assert.Equal(t, 2, bus.Publish(context.Background(), Event{Topic: "a"}))
	assert.True(t, after)
	assert.Equal(t, "subscriber broke", recovered)
	assert.Equal(t, uint64(1), bus.Stats().Panics)
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	sub, err := bus.Subscribe("a", func(context.Context, Event) {})
	require.NoError(t, err)

	bus.Close()
	assert.False(t, sub.IsActive())
	assert.Zero(t, bus.Publish(context.Background(), Event{Topic: "a"}))

	_, err = bus.Subscribe("a", func(context.Context, Event) {})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	_, err := bus.Subscribe("**", func(context.Context, Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish(context.Background(), Event{Topic: "load.test"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, count)
}
