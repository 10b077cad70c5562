package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMementoGetDefault(t *testing.T) {
	m := NewMemento()
	assert.Equal(t, "fallback", m.Get("missing", "fallback"))
	assert.Nil(t, m.Get("missing", nil))
	assert.False(t, m.Has("missing"))
}

func TestMementoUpdateAndGet(t *testing.T) {
	m := NewMemento()
	require.NoError(t, m.Update("count", 3))
	require.NoError(t, m.Update("name", "demo"))
	require.NoError(t, m.Update("enabled", true))
	require.NoError(t, m.Update("nested", map[string]any{"a": []int{1, 2}}))

	assert.Equal(t, float64(3), m.Get("count", nil))
	assert.Equal(t, int64(3), m.GetInt("count", 0))
	assert.Equal(t, "demo", m.GetString("name", ""))
	assert.True(t, m.GetBool("enabled", false))
	assert.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}}, m.Get("nested", nil))
	assert.Equal(t, []string{"count", "enabled", "name", "nested"}, m.Keys())
}

func TestMementoKeysWithPathCharacters(t *testing.T) {
	m := NewMemento()
	require.NoError(t, m.Update("editor.fontSize", 14))
	require.NoError(t, m.Update("a.b.c", "x"))

	assert.Equal(t, int64(14), m.GetInt("editor.fontSize", 0))
	assert.Equal(t, "x", m.GetString("a.b.c", ""))
	assert.False(t, m.Has("editor"))
	assert.Equal(t, []string{"a.b.c", "editor.fontSize"}, m.Keys())
}

func TestMementoDeleteWithNil(t *testing.T) {
	m := NewMemento()
	require.NoError(t, m.Update("k", "v"))
	require.NoError(t, m.Update("k", nil))
	assert.False(t, m.Has("k"))
	assert.Zero(t, m.Len())
}

func TestMementoOverwrite(t *testing.T) {
	m := NewMemento()
	require.NoError(t, m.Update("k", "first"))
	require.NoError(t, m.Update("k", 2))
	assert.Equal(t, float64(2), m.Get("k", nil))
	assert.Equal(t, 1, m.Len())
}

func TestMementoEmptyKey(t *testing.T) {
	assert.ErrorIs(t, NewMemento().Update("", 1), ErrEmptyKey)
}

func TestMementoConcurrent(t *testing.T) {
	m := NewMemento()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%02d", n)
			assert.NoError(t, m.Update(key, n))
			_ = m.Get(key, nil)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, m.Len())
}

func TestStoreScopes(t *testing.T) {
	s := NewStore()
	ws := s.Workspace("demo.ext")
	gl := s.Global("demo.ext")
	require.NoError(t, ws.Update("k", "ws"))
	require.NoError(t, gl.Update("k", "global"))

	assert.Same(t, ws, s.Workspace("demo.ext"))
	assert.Equal(t, "ws", s.Workspace("demo.ext").GetString("k", ""))
	assert.Equal(t, "global", s.Global("demo.ext").GetString("k", ""))
	assert.Equal(t, []string{"demo.ext"}, s.Extensions())

	s.Drop("demo.ext")
	assert.False(t, s.Workspace("demo.ext").Has("k"))
	assert.Equal(t, "workspace", ScopeWorkspace.String())
	assert.Equal(t, "global", ScopeGlobal.String())
}
