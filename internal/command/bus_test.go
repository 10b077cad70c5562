package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func TestRegisterAndExecute(t *testing.T) {
	b := NewBus()
	_, err := b.Register("demo.echo", "owner-a", echo)
	require.NoError(t, err)

	got, err := b.Execute(context.Background(), "demo.echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
	assert.True(t, b.Has("demo.echo"))

	reg, ok := b.Get("demo.echo")
	require.True(t, ok)
	assert.Equal(t, "owner-a", reg.Owner)
	assert.False(t, reg.RegisteredAt.IsZero())
}

func TestExecuteUnknown(t *testing.T) {
	b := NewBus()
	_, err := b.Execute(context.Background(), "missing.command")
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestExecuteHandlerError(t *testing.T) {
	b := NewBus()
	boom := errors.New("boom")
	_, err := b.Register("demo.fail", "owner-a", func(context.Context, ...any) (any, error) {
		return "ignored", boom
	})
	require.NoError(t, err)

	got, err := b.Execute(context.Background(), "demo.fail")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestExecuteHandlerPanic(t *testing.T) {
	b := NewBus()
	_, err := b.Register("demo.panic", "owner-a", func(context.Context, ...any) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, err)

	_, err = b.Execute(context.Background(), "demo.panic")
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegisterCollisionRejected(t *testing.T) {
	b := NewBus()
	_, err := b.Register("demo.cmd", "owner-a", echo)
	require.NoError(t, err)

	_, err = b.Register("demo.cmd", "owner-b", echo)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	var collision *CollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "owner-a", collision.ExistingOwner)
	assert.Equal(t, "owner-b", collision.Owner)

	reg, _ := b.Get("demo.cmd")
	assert.Equal(t, "owner-a", reg.Owner)
}

func TestRegisterValidation(t *testing.T) {
	b := NewBus()

	_, err := b.Register("", "owner", echo)
	assert.ErrorIs(t, err, ErrInvalidCommandID)

	_, err = b.Register("has space", "owner", echo)
	assert.ErrorIs(t, err, ErrInvalidCommandID)

	_, err = b.Register("ok.id", "", echo)
	assert.ErrorIs(t, err, ErrEmptyOwner)

	_, err = b.Register("ok.id", "owner", nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	assert.Zero(t, b.Count())
}

func TestDisposeRemovesOnlyOwnRegistration(t *testing.T) {
	b := NewBus()
	d, err := b.Register("demo.cmd", "owner-a", echo)
	require.NoError(t, err)

	require.NoError(t, d.Dispose())
	assert.False(t, b.Has("demo.cmd"))

	_, err = b.Register("demo.cmd", "owner-b", echo)
	require.NoError(t, err)

	// Stale handle must not remove the new registration.
	require.NoError(t, d.Dispose())
	assert.True(t, b.Has("demo.cmd"))
}

func TestUnregisterAll(t *testing.T) {
	b := NewBus()
	for i := 0; i < 3; i++ {
		_, err := b.Register(fmt.Sprintf("a.cmd%d", i), "owner-a", echo)
		require.NoError(t, err)
	}
	_, err := b.Register("b.cmd", "owner-b", echo)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.cmd0", "a.cmd1", "a.cmd2"}, b.OwnedBy("owner-a"))
	assert.Equal(t, 3, b.UnregisterAll("owner-a"))
	assert.Equal(t, 0, b.UnregisterAll("owner-a"))
	assert.Equal(t, []string{"b.cmd"}, b.List(false))
	assert.Empty(t, b.OwnedBy("owner-a"))
}

func TestListFiltersInternal(t *testing.T) {
	b := NewBus()
	for _, id := range []string{"z.last", "_internal.thing", "a.first"} {
		_, err := b.Register(id, "owner", echo)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"_internal.thing", "a.first", "z.last"}, b.List(false))
	assert.Equal(t, []string{"a.first", "z.last"}, b.List(true))
}

func TestHistoryBounded(t *testing.T) {
	b := NewBus(WithHistorySize(3))
	_, err := b.Register("demo.echo", "owner", echo)
	require.NoError(t, err)

	ctx := WithCaller(context.Background(), "tester")
	for i := 0; i < 5; i++ {
		_, _ = b.Execute(ctx, "demo.echo", i)
	}
	_, _ = b.Execute(ctx, "missing")

	hist := b.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "missing", hist[2].ID)
	assert.False(t, hist[2].Succeeded())
	assert.True(t, hist[0].Succeeded())
	assert.Equal(t, "tester", hist[0].Caller)

	last := b.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, "missing", last[0].ID)

	b.ClearHistory()
	assert.Empty(t, b.History(0))
}

func TestHistoryDisabled(t *testing.T) {
	b := NewBus(WithHistorySize(0))
	_, _ = b.Execute(context.Background(), "missing")
	assert.Empty(t, b.History(0))
}

func TestConcurrentRegisterExecute(t *testing.T) {
	b := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("c.cmd%d", n)
			owner := fmt.Sprintf("owner-%d", n%4)
			_, err := b.Register(id, owner, echo)
			assert.NoError(t, err)
			got, err := b.Execute(context.Background(), id, n)
			assert.NoError(t, err)
			assert.Equal(t, n, got)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, b.Count())

	total := 0
	for i := 0; i < 4; i++ {
		total += b.UnregisterAll(fmt.Sprintf("owner-%d", i))
	}
	assert.Equal(t, 20, total)
	assert.Zero(t, b.Count())
}
