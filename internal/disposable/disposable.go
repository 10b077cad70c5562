package disposable

import (
	"errors"
	"fmt"
	"sync"
)

// Disposable is a handle to an acquired resource or registration.
type Disposable interface {
	// Dispose releases the resource. Implementations returned by this
	// package make repeated calls no-ops.
	Dispose() error
}

// onceDisposable runs its release function at most once.
type onceDisposable struct {
	once    sync.Once
	release func() error
	err     error
}

// Func returns a Disposable that calls release on the first Dispose only.
// A nil release yields a handle that does nothing.
func Func(release func() error) Disposable {
	return &onceDisposable{release: release}
}

// FuncNoErr adapts a release function that cannot fail.
func FuncNoErr(release func()) Disposable {
	return Func(func() error {
		if release != nil {
			release()
		}
		return nil
	})
}

// Dispose implements Disposable.
// The first call returns the release error (if any); later calls return nil.
func (d *onceDisposable) Dispose() error {
	first := false
	d.once.Do(func() {
		first = true
		if d.release == nil {
			return
		}
		d.err = callRelease(d.release)
	})
	if !first {
		return nil
	}
	return d.err
}

// callRelease invokes release, converting a panic into an error.
func callRelease(release func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during dispose: %v", r)
		}
	}()
	return release()
}

// Nop is a Disposable with nothing to release.
var Nop Disposable = nopDisposable{}

type nopDisposable struct{}

func (nopDisposable) Dispose() error { return nil }

// All combines disposables into one that releases each of them in order,
// continuing past failures and joining the errors.
func All(ds ...Disposable) Disposable {
	items := make([]Disposable, 0, len(ds))
	for _, d := range ds {
		if d != nil {
			items = append(items, d)
		}
	}
	return Func(func() error {
		var errs []error
		for _, d := range items {
			if err := safeDispose(d); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// safeDispose calls d.Dispose with panic recovery.
func safeDispose(d Disposable) error {
	return callRelease(d.Dispose)
}
