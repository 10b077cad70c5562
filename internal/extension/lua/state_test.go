package lua

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"
)

func newTestState(t *testing.T, opts ...StateOption) *State {
	t.Helper()
	s := NewState(opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStateDoString(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	require.NoError(t, s.DoString(ctx, `x = 1 + 1`))
	err := s.Do(ctx, func(_ context.Context, L *glua.LState) error {
		assert.Equal(t, glua.LNumber(2), L.GetGlobal("x"))
		return nil
	})
	require.NoError(t, err)

	assert.Error(t, s.DoString(ctx, `invalid lua code !!!`))
}

func TestStateCallGlobal(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	require.NoError(t, s.DoString(ctx, `
		function add(a, b) return a + b, "sum" end
		notfn = 3
	`))

	assert.True(t, s.HasFunction("add"))
	assert.False(t, s.HasFunction("notfn"))

	res, err := s.CallGlobal(ctx, "add", glua.LNumber(2), glua.LNumber(3))
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, glua.LNumber(5), res[0])
	assert.Equal(t, glua.LString("sum"), res[1])

	_, err = s.CallGlobal(ctx, "notfn")
	assert.ErrorIs(t, err, ErrNotFunction)
	_, err = s.CallGlobal(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFunction)
}

func TestStateCallGlobalRuntimeError(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	require.NoError(t, s.DoString(ctx, `function fail() error("nope") end`))

	_, err := s.CallGlobal(ctx, "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	// The stack is left balanced after an error.
	err = s.Do(ctx, func(_ context.Context, L *glua.LState) error {
		assert.Zero(t, L.GetTop())
		return nil
	})
	require.NoError(t, err)
}

func TestStateContextCancelAbortsScript(t *testing.T) {
	s := newTestState(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.DoString(ctx, `while true do end`)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The state stays usable after an aborted call.
	require.NoError(t, s.DoString(context.Background(), `y = 1`))
}

func TestStateReentry(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	// A Go function called from Lua re-enters the state with the context
	// it was given.
	err := s.Do(ctx, func(ctx context.Context, L *glua.LState) error {
		L.SetGlobal("callback", L.NewFunction(func(L *glua.LState) int {
			inner := s.Do(L.Context(), func(_ context.Context, L *glua.LState) error {
				L.SetGlobal("reentered", glua.LTrue)
				return nil
			})
			if inner != nil {
				L.RaiseError("%v", inner)
			}
			return 0
		}))
		return L.DoString(`callback()`)
	})
	require.NoError(t, err)

	err = s.Do(ctx, func(_ context.Context, L *glua.LState) error {
		assert.Equal(t, glua.LTrue, L.GetGlobal("reentered"))
		return nil
	})
	require.NoError(t, err)
}

func TestStateDoRecoversPanic(t *testing.T) {
	s := newTestState(t)
	err := s.Do(context.Background(), func(context.Context, *glua.LState) error {
		panic("go side")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "go side")
}

func TestStateClose(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.IsClosed())
	assert.False(t, s.HasFunction("print"))
	assert.ErrorIs(t, s.DoString(context.Background(), `x = 1`), ErrStateClosed)
}

func TestStateCallStackSize(t *testing.T) {
	s := newTestState(t, WithCallStackSize(32))
	err := s.DoString(context.Background(), `
		local function deep(n) return deep(n + 1) + 1 end
		deep(1)
	`)
	assert.Error(t, err)
}
