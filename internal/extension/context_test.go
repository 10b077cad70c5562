package extension

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension/state"
)

func TestContextOwnerIsFresh(t *testing.T) {
	reg := disposable.NewRegistry()
	a := NewContext(ContextConfig{ExtensionID: "x", Registry: reg})
	b := NewContext(ContextConfig{ExtensionID: "x", Registry: reg})
	assert.NotEmpty(t, a.Owner())
	assert.NotEqual(t, a.Owner(), b.Owner())
	assert.Equal(t, ModeProduction, a.Mode())
}

func TestContextPaths(t *testing.T) {
	ec := NewContext(ContextConfig{
		ExtensionID:   "demo.hello",
		ExtensionPath: "/ext/hello",
		StorageRoot:   "/data",
		Mode:          ModeDevelopment,
	})
	assert.Equal(t, filepath.Join("/ext/hello", "media", "icon.png"), ec.AsAbsolutePath("media/icon.png"))
	assert.Equal(t, "/abs/file", ec.AsAbsolutePath("/abs/./file"))
	assert.Equal(t, filepath.Join("/data", "workspace", "demo.hello"), ec.StoragePath())
	assert.Equal(t, filepath.Join("/data", "global", "demo.hello"), ec.GlobalStoragePath())
	assert.Equal(t, filepath.Join("/data", "logs", "demo.hello"), ec.LogPath())
	assert.Equal(t, "development", ec.Mode().String())

	bare := NewContext(ContextConfig{ExtensionID: "x"})
	assert.Empty(t, bare.StoragePath())
	assert.Empty(t, bare.LogPath())
}

func TestContextState(t *testing.T) {
	store := state.NewStore()
	ec := NewContext(ContextConfig{ExtensionID: "x", States: store})
	require.NoError(t, ec.WorkspaceState().Update("count", 3))

	again := NewContext(ContextConfig{ExtensionID: "x", States: store})
	assert.Equal(t, int64(3), again.WorkspaceState().GetInt("count", 0))
	assert.False(t, again.GlobalState().Has("count"))
}

func TestContextDisposeReleasesPushed(t *testing.T) {
	ec := NewContext(ContextConfig{ExtensionID: "x"})

	var order []int
	for i := 1; i <= 3; i++ {
		require.NoError(t, ec.Push(disposable.FuncNoErr(func() { order = append(order, i) })))
	}
	assert.Equal(t, 3, ec.Subscriptions())

	require.NoError(t, ec.Dispose())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.True(t, ec.IsDisposed())

	require.NoError(t, ec.Dispose())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestContextPushAfterDispose(t *testing.T) {
	ec := NewContext(ContextConfig{ExtensionID: "x"})
	require.NoError(t, ec.Dispose())

	released := false
	err := ec.Push(disposable.FuncNoErr(func() { released = true }))
	assert.ErrorIs(t, err, ErrContextDisposed)
	assert.True(t, released)
	assert.Zero(t, ec.Subscriptions())
}
