package lua

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/exthost/internal/command"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/api"
	"github.com/dshills/exthost/internal/extension/api/apitest"
	"github.com/dshills/exthost/internal/extension/security"
	"github.com/dshills/exthost/internal/extension/state"
)

const helloScript = `
local ext = require("ext")

function activate(context)
    ctx = context
    local out = ext.window.createOutputChannel("Hello")
    out:appendLine("activated " .. context.id)

    context.subscribe(ext.commands.register("demo.sayHello", function(name)
        local text = "hello " .. (name or "world")
        out:appendLine(text)
        return text
    end))
    context.subscribe(ext.commands.register("demo.chain", function()
        return ext.commands.execute("demo.sayHello", "chain")
    end))
    context.subscribe(function()
        ctx.globalState.update("subscriptionDisposed", true)
    end)

    local n = context.workspaceState.get("activations", 0)
    context.workspaceState.update("activations", n + 1)
end

function deactivate()
    ctx.globalState.update("deactivated", true)
end
`

func writeScript(t *testing.T, dir, name, code string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(code), 0o644))
}

func scriptManifest(name string, groups ...string) *extension.Manifest {
	return &extension.Manifest{
		Name:         name,
		Publisher:    "demo",
		Version:      "1.0.0",
		Main:         "init.lua",
		Capabilities: groups,
	}
}

func newLuaRuntime(t *testing.T, opts ...extension.Option) (*extension.Runtime, *state.Store) {
	t.Helper()
	store := state.NewStore()
	opts = append([]extension.Option{
		extension.WithEntryLoader(".lua", NewLoader()),
		extension.WithStateStore(store),
	}, opts...)
	rt := extension.NewRuntime(opts...)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt, store
}

func TestLuaExtensionLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", helloScript)
	rt, store := newLuaRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.Activate(ctx, "demo.hello", dir, scriptManifest("hello", "commands", "window")))
	info, _ := rt.Get("demo.hello")
	assert.Equal(t, extension.StateActive, info.State)

	got, err := rt.ExecuteCommand(ctx, "demo.sayHello", "go")
	require.NoError(t, err)
	assert.Equal(t, "hello go", got)

	got, err = rt.ExecuteCommand(ctx, "demo.chain")
	require.NoError(t, err)
	assert.Equal(t, "hello chain", got)

	assert.Equal(t, int64(1), store.Workspace("demo.hello").GetInt("activations", 0))

	require.NoError(t, rt.Deactivate(ctx, "demo.hello"))
	assert.True(t, store.Global("demo.hello").GetBool("deactivated", false))
	assert.True(t, store.Global("demo.hello").GetBool("subscriptionDisposed", false))

	_, err = rt.ExecuteCommand(ctx, "demo.sayHello")
	assert.ErrorIs(t, err, command.ErrCommandNotFound)
	assert.Empty(t, rt.Host().Registry().Owners())

	require.NoError(t, rt.Activate(ctx, "demo.hello", dir, scriptManifest("hello", "commands", "window")))
	assert.Equal(t, int64(2), store.Workspace("demo.hello").GetInt("activations", 0))
}

func TestLuaCommandsFromManyGoroutines(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", `
		local ext = require("ext")
		local count = 0
		function activate(context)
			context.subscribe(ext.commands.register("demo.count", function()
				count = count + 1
				return count
			end))
		end
	`)
	rt, _ := newLuaRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.Activate(ctx, "demo.count", dir, scriptManifest("count", "commands")))

	const n = 20
	errs := make(chan error, n)
	for range n {
		go func() {
			_, err := rt.ExecuteCommand(ctx, "demo.count")
			errs <- err
		}()
	}
	for range n {
		require.NoError(t, <-errs)
	}
	got, err := rt.ExecuteCommand(ctx, "demo.count")
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), got)
}

func TestLuaActivationErrorReleasesResources(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", `
		local ext = require("ext")
		function activate(context)
			ext.window.createOutputChannel("Leaky")
			ext.commands.register("demo.leaky", function() end)
			error("configuration missing")
		end
	`)
	rt, _ := newLuaRuntime(t)

	err := rt.Activate(context.Background(), "demo.leaky", dir, scriptManifest("leaky", "commands", "window"))
	require.ErrorIs(t, err, extension.ErrActivationFailed)
	assert.Contains(t, err.Error(), "configuration missing")
	assert.False(t, rt.Host().CommandBus().Has("demo.leaky"))
	assert.Empty(t, rt.Host().Registry().Owners())
}

func TestLuaCapabilityDenied(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", `
		local ext = require("ext")
		function activate(context)
			ext.commands.register("demo.sneaky", function() end)
		end
	`)
	rt, _ := newLuaRuntime(t)

	err := rt.Activate(context.Background(), "demo.sneaky", dir, scriptManifest("sneaky", "window"))
	require.ErrorIs(t, err, extension.ErrActivationFailed)
	assert.Contains(t, err.Error(), `capability "commands" required`)
}

func TestLuaDeniedModule(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", `local cp = require("child_process")`)
	rt, _ := newLuaRuntime(t)

	err := rt.Activate(context.Background(), "demo.spawn", dir, scriptManifest("spawn"))
	require.ErrorIs(t, err, extension.ErrActivationFailed)
	assert.Contains(t, err.Error(), ErrModuleDenied.Error())
}

func TestLuaActivationTimeout(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", `function activate() while true do end end`)
	rt, _ := newLuaRuntime(t, extension.WithActivationTimeout(100*time.Millisecond))

	err := rt.Activate(context.Background(), "demo.spin", dir, scriptManifest("spin"))
	require.ErrorIs(t, err, extension.ErrActivationFailed)
	info, _ := rt.Get("demo.spin")
	assert.Equal(t, extension.ReasonActivationTimeout, info.Reason)
}

func TestLuaMissingScript(t *testing.T) {
	rt, _ := newLuaRuntime(t)
	err := rt.Activate(context.Background(), "demo.none", t.TempDir(), scriptManifest("none"))
	require.ErrorIs(t, err, extension.ErrEntryPointMissing)
}

func TestLuaScriptWithoutActivate(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", `x = 1`)
	rt, _ := newLuaRuntime(t)

	require.NoError(t, rt.Activate(context.Background(), "demo.plain", dir, scriptManifest("plain")))
	require.NoError(t, rt.Deactivate(context.Background(), "demo.plain"))
}

func TestLuaBindingAgainstRecorder(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "init.lua", `
		local ext = require("ext")
		function activate(context)
			local choice = ext.window.showWarningMessage("Proceed?", "Yes", "No")
			local picked = ext.window.showQuickPick({"a", "b"}, {placeHolder = "pick"})
			local typed = ext.window.showInputBox({prompt = "Name", value = "anon"})
			local nothing = ext.window.showInformationMessage("fyi")
			ext.env.writeClipboard(choice .. picked .. typed .. tostring(nothing))
			ext.env.openExternal("https://example.com/docs")
			ext.workspace.findFiles("*.go", 5)
			local cfg = ext.workspace.getConfiguration("editor")
			context.workspaceState.update("fontSize", cfg.get("fontSize", 12))
			context.workspaceState.update("app", ext.env.appName)
			context.workspaceState.update("path", context.asAbsolutePath("media/x.png"))
			context.subscribe(ext.window.setStatusBarMessage("busy", 1000))
		end
	`)

	rec := apitest.New()
	ec := extension.NewContext(extension.ContextConfig{ExtensionID: "demo.rec", ExtensionPath: dir})
	mod, err := NewLoader().Load(context.Background(), extension.LoadRequest{
		ID:          "demo.rec",
		InstallPath: dir,
		Manifest:    scriptManifest("rec"),
		Policy:      security.DefaultPolicy(),
	})
	require.NoError(t, err)

	ctx := api.WithOwner(context.Background(), ec.Owner())
	require.NoError(t, mod.Activate(ctx, ec, rec))

	clip, err := rec.Env().ReadClipboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Yesaanonnil", clip)

	assert.Equal(t, 2, rec.CallCount("ShowMessage"))
	assert.Equal(t, 1, rec.CallCount("OpenExternal"))
	assert.Equal(t, 1, rec.CallCount("FindFiles"))
	assert.Equal(t, int64(12), ec.WorkspaceState().GetInt("fontSize", 0))
	assert.Equal(t, "apitest", ec.WorkspaceState().GetString("app", ""))
	assert.Equal(t, filepath.Join(dir, "media", "x.png"), ec.WorkspaceState().GetString("path", ""))
	assert.Equal(t, 1, rec.Live())

	d, ok := mod.(extension.Deactivator)
	require.True(t, ok)
	require.NoError(t, d.Deactivate(ctx))
	assert.Zero(t, rec.Live(), "subscriptions are disposed on deactivate")
	require.NoError(t, ec.Dispose())
}

func TestLoaderRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "init.lua"), 0o755))
	_, err := NewLoader().Load(context.Background(), extension.LoadRequest{
		ID:          "demo.dir",
		InstallPath: dir,
		Manifest:    scriptManifest("dir"),
	})
	assert.ErrorIs(t, err, extension.ErrEntryPointMissing)
}
