// Package api defines the capability surface handed to every extension.
//
// The surface is split into small per-domain interfaces (Window, Workspace,
// Commands, Languages, Debug, Tasks, SourceControl, Env) aggregated by
// Surface. Host is the concrete implementation backed by the host's
// disposable registry, command bus and event bus.
//
// Calls are attributed to an extension through the context: the lifecycle
// controller stores the calling owner with WithOwner before running any
// extension code, and every acquiring call reads it back with OwnerFrom.
// Acquired resources are registered under that owner so that tearing the
// owner down releases all of them.
//
// Nothing returned by the surface aliases host state. Handles expose
// operations on themselves only, queries return copies, and anything the
// UI layer must render is published as an event.
package api
