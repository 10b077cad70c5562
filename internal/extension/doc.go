// Package extension implements the extension registry and lifecycle
// controller.
//
// A Runtime drives each extension through
//
//	discovered -> activating -> active -> deactivating -> inactive
//
// with error reachable from activating and deactivating. Activation checks
// the manifest against the sandbox policy before any extension code is
// loaded, creates a fresh Context with its own owner id, and runs the
// module's activation hook on its own goroutine under a timeout.
// Everything the extension acquires through the capability surface is
// recorded under the Context's owner and released on deactivation, on
// failed activation, and on Shutdown.
//
// Entry points are resolved by file extension: WithEntryLoader routes
// ".lua" to the Lua loader, anything else is looked up among Go modules
// registered with WithStaticModule.
//
// Basic usage:
//
//	rt := extension.NewRuntime(
//	    extension.WithHost(host),
//	    extension.WithStaticModule("hello", func() extension.Module { return hello{} }),
//	)
//	if err := rt.Activate(ctx, "demo.hello", dir, manifest); err != nil {
//	    // errors.Is(err, extension.ErrPolicyDenied) ...
//	}
//	defer rt.Shutdown(ctx)
package extension
