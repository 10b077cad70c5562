package lua

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/api"
	"github.com/dshills/exthost/internal/extension/state"
)

// ModuleName is the name scripts require the host module under. It is
// also installed as a global.
const ModuleName = "ext"

// binding exposes the capability surface to one script. Every surface
// call is made under the extension's owner.
type binding struct {
	state   *State
	ec      *extension.Context
	surface api.Surface
	logger  *log.Logger

	mu      sync.Mutex
	handles map[*lua.LTable]disposable.Disposable

	// subscriptions is context.subscriptions; set when the context table
	// is built.
	subscriptions *lua.LTable
}

func newBinding(s *State, ec *extension.Context, surface api.Surface, logger *log.Logger) *binding {
	return &binding{
		state:   s,
		ec:      ec,
		surface: surface,
		logger:  logger,
		handles: make(map[*lua.LTable]disposable.Disposable),
	}
}

// ctx returns the context of the running Lua call, attributed to the
// extension's owner.
func (b *binding) ctx(L *lua.LState) context.Context {
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return api.WithOwner(ctx, b.ec.Owner())
}

// open is the preload loader for the ext module.
func (b *binding) open(L *lua.LState) int {
	L.Push(L.GetGlobal(ModuleName))
	return 1
}

// install builds the ext module and sets it as a global.
func (b *binding) install(L *lua.LState) {
	mod := L.NewTable()
	L.SetField(mod, "commands", b.commandsTable(L))
	L.SetField(mod, "window", b.windowTable(L))
	L.SetField(mod, "workspace", b.workspaceTable(L))
	L.SetField(mod, "env", b.envTable(L))
	L.SetGlobal(ModuleName, mod)
}

// handle wraps d in a table with a dispose method and extra methods.
func (b *binding) handle(L *lua.LState, d disposable.Disposable, methods map[string]lua.LGFunction) *lua.LTable {
	t := L.NewTable()
	for name, fn := range methods {
		L.SetField(t, name, L.NewFunction(fn))
	}
	L.SetField(t, "dispose", L.NewFunction(func(L *lua.LState) int {
		b.mu.Lock()
		delete(b.handles, t)
		b.mu.Unlock()
		if err := d.Dispose(); err != nil {
			L.RaiseError("dispose: %v", err)
		}
		return 0
	}))

	b.mu.Lock()
	b.handles[t] = d
	b.mu.Unlock()
	return t
}

func (b *binding) handleFor(t *lua.LTable) (disposable.Disposable, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.handles[t]
	return d, ok
}

// raise converts a Go error into a Lua error.
func raise(L *lua.LState, op string, err error) int {
	L.RaiseError("%s: %v", op, err)
	return 0
}

func (b *binding) commandsTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"register":    b.registerCommand,
		"execute":     b.executeCommand,
		"getCommands": b.getCommands,
	})
	return t
}

// register(id, fn) -> handle
func (b *binding) registerCommand(L *lua.LState) int {
	id := L.CheckString(1)
	fn := L.CheckFunction(2)

	handler := func(ctx context.Context, args ...any) (any, error) {
		var result any
		err := b.state.Do(ctx, func(_ context.Context, L *lua.LState) error {
			br := NewBridge(L)
			largs := make([]lua.LValue, len(args))
			for i, a := range args {
				largs[i] = br.ToLuaValue(a)
			}
			res, err := pcall(L, fn, largs...)
			if err != nil {
				return err
			}
			if len(res) > 0 {
				result = br.ToGoValue(res[0])
			}
			return nil
		})
		return result, err
	}

	d, err := b.surface.Commands().RegisterCommand(b.ctx(L), id, handler)
	if err != nil {
		return raise(L, "commands.register", err)
	}
	L.Push(b.handle(L, d, nil))
	return 1
}

// execute(id, ...) -> result
func (b *binding) executeCommand(L *lua.LState) int {
	id := L.CheckString(1)
	br := NewBridge(L)
	args := make([]any, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, br.ToGoValue(L.Get(i)))
	}

	result, err := b.surface.Commands().ExecuteCommand(b.ctx(L), id, args...)
	if err != nil {
		return raise(L, "commands.execute", err)
	}
	L.Push(br.ToLuaValue(result))
	return 1
}

// getCommands([filterInternal]) -> {id...}
func (b *binding) getCommands(L *lua.LState) int {
	filter := L.OptBool(1, false)
	L.Push(NewBridge(L).ToLuaValue(b.surface.Commands().GetCommands(filter)))
	return 1
}

func (b *binding) windowTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"showInformationMessage": b.showMessage(api.SeverityInfo),
		"showWarningMessage":     b.showMessage(api.SeverityWarning),
		"showErrorMessage":       b.showMessage(api.SeverityError),
		"showQuickPick":          b.showQuickPick,
		"showInputBox":           b.showInputBox,
		"createOutputChannel":    b.createOutputChannel,
		"setStatusBarMessage":    b.setStatusBarMessage,
	})
	return t
}

// show*Message(message, ...items) -> item or nil
func (b *binding) showMessage(severity api.Severity) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		items := make([]string, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			items = append(items, L.CheckString(i))
		}
		choice, err := b.surface.Window().ShowMessage(b.ctx(L), severity, msg, items...)
		if err != nil {
			return raise(L, "window.showMessage", err)
		}
		pushOptionalString(L, choice)
		return 1
	}
}

// showQuickPick(items, [opts]) -> item or nil
func (b *binding) showQuickPick(L *lua.LState) int {
	br := NewBridge(L)
	items := br.ToStrings(L.CheckTable(1))
	opts := L.OptTable(2, nil)
	choice, err := b.surface.Window().ShowQuickPick(b.ctx(L), items, api.QuickPickOptions{
		Title:       br.StringField(opts, "title", ""),
		Placeholder: br.StringField(opts, "placeHolder", ""),
		CanPickMany: br.BoolField(opts, "canPickMany", false),
	})
	if err != nil {
		return raise(L, "window.showQuickPick", err)
	}
	pushOptionalString(L, choice)
	return 1
}

// showInputBox([opts]) -> text or nil
func (b *binding) showInputBox(L *lua.LState) int {
	br := NewBridge(L)
	opts := L.OptTable(1, nil)
	text, err := b.surface.Window().ShowInputBox(b.ctx(L), api.InputBoxOptions{
		Prompt:      br.StringField(opts, "prompt", ""),
		Placeholder: br.StringField(opts, "placeHolder", ""),
		Value:       br.StringField(opts, "value", ""),
		Password:    br.BoolField(opts, "password", false),
	})
	if err != nil {
		return raise(L, "window.showInputBox", err)
	}
	pushOptionalString(L, text)
	return 1
}

// createOutputChannel(name) -> channel
func (b *binding) createOutputChannel(L *lua.LState) int {
	name := L.CheckString(1)
	ch, err := b.surface.Window().CreateOutputChannel(b.ctx(L), name)
	if err != nil {
		return raise(L, "window.createOutputChannel", err)
	}

	// Methods are called with ':' so the channel itself is argument 1.
	write := func(op string, fn func(string) error) lua.LGFunction {
		return func(L *lua.LState) int {
			if err := fn(L.CheckString(2)); err != nil {
				return raise(L, op, err)
			}
			return 0
		}
	}
	t := b.handle(L, ch, map[string]lua.LGFunction{
		"append":     write("output.append", ch.Append),
		"appendLine": write("output.appendLine", ch.AppendLine),
		"clear": func(L *lua.LState) int {
			if err := ch.Clear(); err != nil {
				return raise(L, "output.clear", err)
			}
			return 0
		},
		"show": func(L *lua.LState) int {
			if err := ch.Show(); err != nil {
				return raise(L, "output.show", err)
			}
			return 0
		},
	})
	L.SetField(t, "name", lua.LString(ch.Name()))
	L.Push(t)
	return 1
}

// setStatusBarMessage(message, [timeoutMs]) -> handle
func (b *binding) setStatusBarMessage(L *lua.LState) int {
	msg := L.CheckString(1)
	timeout := time.Duration(L.OptInt64(2, 0)) * time.Millisecond
	d, err := b.surface.Window().SetStatusBarMessage(b.ctx(L), msg, timeout)
	if err != nil {
		return raise(L, "window.setStatusBarMessage", err)
	}
	L.Push(b.handle(L, d, nil))
	return 1
}

func pushOptionalString(L *lua.LState, s string) {
	if s == "" {
		L.Push(lua.LNil)
		return
	}
	L.Push(lua.LString(s))
}

func (b *binding) workspaceTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"folders":                  b.folders,
		"getConfiguration":         b.getConfiguration,
		"findFiles":                b.findFiles,
		"onDidChangeConfiguration": b.onDidChangeConfiguration,
	})
	return t
}

// folders() -> {{uri=, name=, index=}...}
func (b *binding) folders(L *lua.LState) int {
	folders := b.surface.Workspace().Folders()
	t := L.CreateTable(len(folders), 0)
	for i, f := range folders {
		ft := L.CreateTable(0, 3)
		ft.RawSetString("uri", lua.LString(f.URI.String()))
		ft.RawSetString("path", lua.LString(f.URI.FSPath()))
		ft.RawSetString("name", lua.LString(f.Name))
		ft.RawSetString("index", lua.LNumber(f.Index))
		t.RawSetInt(i+1, ft)
	}
	L.Push(t)
	return 1
}

// getConfiguration([section]) -> {get=, has=, keys=}
func (b *binding) getConfiguration(L *lua.LState) int {
	cfg := b.surface.Workspace().Configuration(L.OptString(1, ""))
	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"get": func(L *lua.LState) int {
			br := NewBridge(L)
			key := L.CheckString(1)
			L.Push(br.ToLuaValue(cfg.Get(key, br.ToGoValue(L.Get(2)))))
			return 1
		},
		"has": func(L *lua.LState) int {
			L.Push(lua.LBool(cfg.Has(L.CheckString(1))))
			return 1
		},
		"keys": func(L *lua.LState) int {
			L.Push(NewBridge(L).ToLuaValue(cfg.Keys()))
			return 1
		},
	})
	L.Push(t)
	return 1
}

// findFiles(pattern, [max]) -> {uri...}
func (b *binding) findFiles(L *lua.LState) int {
	pattern := L.CheckString(1)
	limit := L.OptInt(2, 0)
	uris, err := b.surface.Workspace().FindFiles(b.ctx(L), pattern, limit)
	if err != nil {
		return raise(L, "workspace.findFiles", err)
	}
	t := L.CreateTable(len(uris), 0)
	for i, u := range uris {
		t.RawSetInt(i+1, lua.LString(u.String()))
	}
	L.Push(t)
	return 1
}

// onDidChangeConfiguration(fn) -> handle. fn receives the changed keys.
func (b *binding) onDidChangeConfiguration(L *lua.LState) int {
	fn := L.CheckFunction(1)
	d, err := b.surface.Workspace().OnDidChangeConfiguration(b.ctx(L), func(ev api.ConfigurationChangeEvent) {
		err := b.state.Do(context.Background(), func(_ context.Context, L *lua.LState) error {
			_, err := pcall(L, fn, NewBridge(L).ToLuaValue(ev.Keys))
			return err
		})
		if err != nil {
			b.logger.Warn("configuration listener failed", "error", err)
		}
	})
	if err != nil {
		return raise(L, "workspace.onDidChangeConfiguration", err)
	}
	L.Push(b.handle(L, d, nil))
	return 1
}

func (b *binding) envTable(L *lua.LState) *lua.LTable {
	env := b.surface.Env()
	t := L.NewTable()
	t.RawSetString("appName", lua.LString(env.AppName()))
	t.RawSetString("appRoot", lua.LString(env.AppRoot()))
	t.RawSetString("language", lua.LString(env.Language()))
	t.RawSetString("machineId", lua.LString(env.MachineID()))
	t.RawSetString("sessionId", lua.LString(env.SessionID()))
	L.SetFuncs(t, map[string]lua.LGFunction{
		"readClipboard": func(L *lua.LState) int {
			text, err := env.ReadClipboard(b.ctx(L))
			if err != nil {
				return raise(L, "env.readClipboard", err)
			}
			L.Push(lua.LString(text))
			return 1
		},
		"writeClipboard": func(L *lua.LState) int {
			if err := env.WriteClipboard(b.ctx(L), L.CheckString(1)); err != nil {
				return raise(L, "env.writeClipboard", err)
			}
			return 0
		},
		"openExternal": func(L *lua.LState) int {
			u, err := api.ParseURI(L.CheckString(1))
			if err != nil {
				L.ArgError(1, err.Error())
				return 0
			}
			ok, err := env.OpenExternal(b.ctx(L), u)
			if err != nil {
				return raise(L, "env.openExternal", err)
			}
			L.Push(lua.LBool(ok))
			return 1
		},
	})
	return t
}

// contextTable builds the table passed to activate.
func (b *binding) contextTable(L *lua.LState) *lua.LTable {
	ec := b.ec
	t := L.NewTable()
	t.RawSetString("id", lua.LString(ec.ExtensionID()))
	t.RawSetString("extensionPath", lua.LString(ec.ExtensionPath()))
	t.RawSetString("storagePath", lua.LString(ec.StoragePath()))
	t.RawSetString("globalStoragePath", lua.LString(ec.GlobalStoragePath()))
	t.RawSetString("logPath", lua.LString(ec.LogPath()))
	t.RawSetString("mode", lua.LString(ec.Mode().String()))
	t.RawSetString("workspaceState", b.mementoTable(L, ec.WorkspaceState()))
	t.RawSetString("globalState", b.mementoTable(L, ec.GlobalState()))

	b.subscriptions = L.NewTable()
	t.RawSetString("subscriptions", b.subscriptions)

	L.SetFuncs(t, map[string]lua.LGFunction{
		"asAbsolutePath": func(L *lua.LState) int {
			L.Push(lua.LString(ec.AsAbsolutePath(L.CheckString(1))))
			return 1
		},
		// subscribe(v) adds a handle, a table with dispose or a function
		// to context.subscriptions and returns it.
		"subscribe": func(L *lua.LState) int {
			v := L.CheckAny(1)
			switch v.Type() {
			case lua.LTTable, lua.LTFunction:
			default:
				L.ArgError(1, "handle, disposable table or function expected")
				return 0
			}
			b.subscriptions.Append(v)
			L.Push(v)
			return 1
		},
	})
	return t
}

func (b *binding) mementoTable(L *lua.LState, m *state.Memento) *lua.LTable {
	t := L.NewTable()
	L.SetFuncs(t, map[string]lua.LGFunction{
		"get": func(L *lua.LState) int {
			br := NewBridge(L)
			L.Push(br.ToLuaValue(m.Get(L.CheckString(1), br.ToGoValue(L.Get(2)))))
			return 1
		},
		"update": func(L *lua.LState) int {
			if err := m.Update(L.CheckString(1), NewBridge(L).ToGoValue(L.Get(2))); err != nil {
				return raise(L, "state.update", err)
			}
			return 0
		},
		"keys": func(L *lua.LState) int {
			L.Push(NewBridge(L).ToLuaValue(m.Keys()))
			return 1
		},
	})
	return t
}

// disposeSubscriptions releases everything in context.subscriptions in
// order. The caller must hold the state.
func (b *binding) disposeSubscriptions(L *lua.LState) {
	if b.subscriptions == nil {
		return
	}
	n := b.subscriptions.Len()
	for i := 1; i <= n; i++ {
		v := b.subscriptions.RawGetInt(i)
		if err := b.disposeValue(L, v); err != nil {
			b.logger.Warn("subscription failed to dispose", "index", i, "error", err)
		}
	}
	b.subscriptions = nil
}

func (b *binding) disposeValue(L *lua.LState, v lua.LValue) error {
	switch val := v.(type) {
	case *lua.LFunction:
		_, err := pcall(L, val)
		return err
	case *lua.LTable:
		if d, ok := b.handleFor(val); ok {
			b.mu.Lock()
			delete(b.handles, val)
			b.mu.Unlock()
			return d.Dispose()
		}
		if fn, ok := val.RawGetString("dispose").(*lua.LFunction); ok {
			_, err := pcall(L, fn, val)
			return err
		}
	}
	return nil
}
