// Package disposable provides release handles and per-owner bookkeeping for
// resources acquired by extensions.
//
// A Disposable has exactly one operation, Dispose. Handles produced by this
// package are idempotent: the first Dispose releases the resource, every
// later call is a no-op that returns nil.
//
// The Registry groups disposables by owner (one owner per extension
// context). ReleaseAll releases everything an owner holds, tolerating
// individual failures so that one misbehaving resource cannot keep the rest
// alive.
//
//	reg := disposable.NewRegistry()
//	h, _ := reg.Register(ownerID, disposable.Func(channel.Close))
//	...
//	if err := reg.ReleaseAll(ownerID); err != nil {
//	    // err wraps ErrDisposeFailed for every release that failed
//	}
package disposable
