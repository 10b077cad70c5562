package lua

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/exthost/internal/logging"
)

func TestSandboxRemovesUnsafeGlobals(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "module", "io", "debug", "package"} {
		err := s.Do(ctx, func(_ context.Context, L *glua.LState) error {
			assert.Equal(t, glua.LNil, L.GetGlobal(name), name)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestSandboxSafeOS(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	require.NoError(t, s.DoString(ctx, `t = os.time(); c = os.clock()`))
	assert.Error(t, s.DoString(ctx, `os.execute("true")`))
	assert.Error(t, s.DoString(ctx, `os.remove("/tmp/x")`))
	assert.Error(t, s.DoString(ctx, `os.getenv("HOME")`))
}

func TestSandboxRequire(t *testing.T) {
	s := newTestState(t, WithDeniedModules("child_process"))
	ctx := context.Background()

	loads := 0
	s.Preload("greeting", func(L *glua.LState) int {
		loads++
		mod := L.NewTable()
		mod.RawSetString("text", glua.LString("hi"))
		L.Push(mod)
		return 1
	})

	require.NoError(t, s.DoString(ctx, `
		local a = require("greeting")
		local b = require("greeting")
		same = a == b
		text = a.text
		str = require("string").upper("x")
	`))
	assert.Equal(t, 1, loads)

	err := s.Do(ctx, func(_ context.Context, L *glua.LState) error {
		assert.Equal(t, glua.LTrue, L.GetGlobal("same"))
		assert.Equal(t, glua.LString("hi"), L.GetGlobal("text"))
		assert.Equal(t, glua.LString("X"), L.GetGlobal("str"))
		return nil
	})
	require.NoError(t, err)

	err = s.DoString(ctx, `require("child_process")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrModuleDenied.Error())

	err = s.DoString(ctx, `require("socket")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestSandboxPrintGoesToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Output: &buf, Level: "info"})
	s := newTestState(t, WithLogger(logger))

	require.NoError(t, s.DoString(context.Background(), `print("hello", 42)`))
	out := buf.String()
	assert.True(t, strings.Contains(out, "hello"), out)
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "source=lua")
}
