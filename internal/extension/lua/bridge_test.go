package lua

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"
)

func withBridge(t *testing.T, fn func(L *glua.LState, b *Bridge)) {
	t.Helper()
	s := newTestState(t)
	err := s.Do(context.Background(), func(_ context.Context, L *glua.LState) error {
		fn(L, NewBridge(L))
		return nil
	})
	require.NoError(t, err)
}

func TestBridgeToGoValue(t *testing.T) {
	withBridge(t, func(L *glua.LState, b *Bridge) {
		require.NoError(t, L.DoString(`
			v = {
				name = "x",
				count = 3,
				ratio = 0.5,
				on = true,
				list = {"a", "b"},
				nested = {k = {1, 2}},
			}
			v.self = v
		`))
		got := b.ToGoValue(L.GetGlobal("v"))
		m, ok := got.(map[string]any)
		require.True(t, ok, "%T", got)

		assert.Equal(t, "x", m["name"])
		assert.Equal(t, int64(3), m["count"])
		assert.InDelta(t, 0.5, m["ratio"], 0.0001)
		assert.Equal(t, true, m["on"])
		assert.Equal(t, []any{"a", "b"}, m["list"])
		assert.Equal(t, map[string]any{"k": []any{int64(1), int64(2)}}, m["nested"])
		assert.Nil(t, m["self"], "cycles convert to nil")

		assert.Nil(t, b.ToGoValue(glua.LNil))
		assert.Nil(t, b.ToGoValue(L.NewFunction(func(*glua.LState) int { return 0 })))
	})
}

func TestBridgeSparseTableIsMap(t *testing.T) {
	withBridge(t, func(L *glua.LState, b *Bridge) {
		require.NoError(t, L.DoString(`v = {[1] = "a", [3] = "c"}`))
		got, ok := b.ToGoValue(L.GetGlobal("v")).(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "a", got["1"])
		assert.Equal(t, "c", got["3"])
	})
}

type sample struct {
	Name    string
	Count   int
	Tags    []string
	private string
}

func TestBridgeToLuaValue(t *testing.T) {
	withBridge(t, func(L *glua.LState, b *Bridge) {
		L.SetGlobal("s", b.ToLuaValue(sample{Name: "n", Count: 2, Tags: []string{"t"}, private: "p"}))
		L.SetGlobal("m", b.ToLuaValue(map[string]any{"a": 1, "b": []any{"x", true}}))
		L.SetGlobal("e", b.ToLuaValue(errors.New("broken")))
		L.SetGlobal("p", b.ToLuaValue(&sample{Name: "ptr"}))
		L.SetGlobal("np", b.ToLuaValue((*sample)(nil)))

		require.NoError(t, L.DoString(`
			ok = s.name == "n" and s.count == 2 and s.tags[1] == "t" and s.private == nil
			ok = ok and m.a == 1 and m.b[1] == "x" and m.b[2] == true
			ok = ok and e == "broken" and p.name == "ptr" and np == nil
		`))
		assert.Equal(t, glua.LTrue, L.GetGlobal("ok"))
	})
}

func TestBridgeFields(t *testing.T) {
	withBridge(t, func(L *glua.LState, b *Bridge) {
		require.NoError(t, L.DoString(`opts = {title = "T", many = true}; list = {"a", 2}`))
		opts := L.GetGlobal("opts").(*glua.LTable)

		assert.Equal(t, "T", b.StringField(opts, "title", ""))
		assert.Equal(t, "def", b.StringField(opts, "missing", "def"))
		assert.Equal(t, "def", b.StringField(nil, "title", "def"))
		assert.True(t, b.BoolField(opts, "many", false))
		assert.True(t, b.BoolField(nil, "many", true))

		assert.Equal(t, []string{"a", "2"}, b.ToStrings(L.GetGlobal("list")))
		assert.Nil(t, b.ToStrings(glua.LString("x")))
	})
}
