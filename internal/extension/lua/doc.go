// Package lua runs extensions whose entry point is a Lua script.
//
// A script is loaded into a sandboxed gopher-lua state: only the base,
// table, string and math libraries are opened, the file loading functions
// are removed, and require resolves only the safe built-ins and the
// preloaded "ext" module. Modules named in the policy's denied list fail
// with a policy error instead of "not available".
//
// The script defines global functions:
//
//	function activate(context)
//	    ext.commands.register("hello.world", function()
//	        ext.window.showInformationMessage("Hello")
//	    end)
//	end
//
//	function deactivate()
//	end
//
// The "ext" module exposes the commands, window, workspace and env groups
// of the capability surface. Every call is attributed to the extension's
// owner id, so the same capability checks apply as for Go extensions.
//
// gopher-lua states are not goroutine-safe. State serializes access with a
// mutex; command handlers registered from Lua may be invoked from any
// goroutine and re-enter the state when the call originates from the same
// script.
package lua
