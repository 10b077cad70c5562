package lua

import (
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// removedGlobals load code from disk or strings and would bypass require.
var removedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"module",
}

// builtinModules are the opened libraries require hands back as is.
var builtinModules = []string{"string", "table", "math", "coroutine"}

// installSandbox strips unsafe globals and installs the sandboxed print,
// os and require.
func (s *State) installSandbox() {
	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}
	for _, name := range builtinModules {
		s.loaded[name] = s.L.GetGlobal(name)
	}

	s.L.SetGlobal("print", s.L.NewFunction(s.luaPrint))
	s.L.SetGlobal("require", s.L.NewFunction(s.luaRequire))

	osMod := s.safeOS()
	s.loaded["os"] = osMod
	s.L.SetGlobal("os", osMod)
}

// luaPrint writes its arguments to the state's logger.
func (s *State) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	s.logger.Info(strings.Join(parts, "\t"), "source", "lua")
	return 0
}

// luaRequire resolves built-ins and preloaded modules only. It never
// touches the file system.
func (s *State) luaRequire(L *lua.LState) int {
	name := L.CheckString(1)

	if s.denied[name] {
		L.RaiseError("%s: %q is denied by the sandbox policy", ErrModuleDenied, name)
		return 0
	}
	if mod, ok := s.loaded[name]; ok {
		L.Push(mod)
		return 1
	}

	loader, ok := s.preload[name]
	if !ok {
		L.RaiseError("module %q is not available", name)
		return 0
	}
	top := L.GetTop()
	L.Push(L.NewFunction(loader))
	L.Push(lua.LString(name))
	L.Call(1, 1)
	mod := L.Get(-1)
	L.SetTop(top)

	if mod == lua.LNil {
		mod = lua.LTrue
	}
	s.loaded[name] = mod
	L.Push(mod)
	return 1
}

// safeOS is a read-only subset of the os library.
func (s *State) safeOS() *lua.LTable {
	start := time.Now()
	mod := s.L.NewTable()
	s.L.SetFuncs(mod, map[string]lua.LGFunction{
		"time": func(L *lua.LState) int {
			L.Push(lua.LNumber(time.Now().Unix()))
			return 1
		},
		"clock": func(L *lua.LState) int {
			L.Push(lua.LNumber(time.Since(start).Seconds()))
			return 1
		},
	})
	return mod
}
