// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package registry owns every native library the host has loaded.
//
// A Registry is created once at startup and torn down once at exit. Other
// components never hold a library directly: they keep the index Register or
// Load returned and reach the library through With while the registry lock
// is held. After Teardown every operation fails; nothing is recreated.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/oops"

	"github.com/bluefox-game/bluefox/internal/native"
)

// Error codes returned by the registry.
const (
	CodeTornDown     = "REGISTRY_TORN_DOWN"
	CodePoisoned     = "REGISTRY_POISONED"
	CodeUnloadFailed = "REGISTRY_UNLOAD_FAILED"
	CodeBadIndex     = "REGISTRY_INDEX_OUT_OF_RANGE"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrTornDown is returned by every operation after Teardown.
	ErrTornDown = errors.New("library registry has been torn down")
	// ErrPoisoned is returned after a callback panicked while holding the lock.
	ErrPoisoned = errors.New("library registry is poisoned")
	// ErrUnloadFailed is wrapped when a library could not be closed.
	ErrUnloadFailed = errors.New("library unload failed")
)

type state int

const (
	statePresent state = iota
	stateTornDown
	statePoisoned
)

// Registry is an ordered, mutex-guarded set of loaded libraries.
type Registry struct {
	loader native.Loader

	mu    sync.Mutex
	state state
	libs  []native.Library
}

// New creates a registry that opens libraries with loader.
// Panics if loader is nil.
func New(loader native.Loader) *Registry {
	if loader == nil {
		panic("registry: loader cannot be nil")
	}
	return &Registry{loader: loader}
}

// usable reports why the registry cannot be used. Callers hold r.mu.
func (r *Registry) usable() error {
	switch r.state {
	case stateTornDown:
		return oops.Code(CodeTornDown).Wrap(ErrTornDown)
	case statePoisoned:
		return oops.Code(CodePoisoned).Wrap(ErrPoisoned)
	default:
		return nil
	}
}

// guard marks the registry poisoned if the surrounding call is panicking.
// It must be deferred while r.mu is held.
func (r *Registry) guard() {
	if p := recover(); p != nil {
		r.state = statePoisoned
		panic(p)
	}
}

// Register appends lib and returns its index.
func (r *Registry) Register(lib native.Library) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.usable(); err != nil {
		return 0, err
	}
	r.libs = append(r.libs, lib)
	return len(r.libs) - 1, nil
}

// Len returns the number of registered libraries.
func (r *Registry) Len() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.usable(); err != nil {
		return 0, err
	}
	return len(r.libs), nil
}

// With runs fn with the library at index while holding the lock.
// lib must not be retained after fn returns.
func (r *Registry) With(index int, fn func(lib native.Library) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.guard()

	if err := r.usable(); err != nil {
		return err
	}
	if index < 0 || index >= len(r.libs) {
		return oops.Code(CodeBadIndex).With("index", index, "len", len(r.libs)).
			Errorf("no library at index %d", index)
	}
	return fn(r.libs[index])
}

// Load opens the library at path, registers it, and runs fn with it, all
// under one lock acquisition so a concurrent Teardown cannot unload the
// library while fn resolves symbols in it. If fn fails the library is closed
// and unregistered again, so only successful loads count toward Len. A close
// failure at that point is fatal, like one at Teardown.
func (r *Registry) Load(path string, fn func(index int, lib native.Library) error) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.guard()

	if err := r.usable(); err != nil {
		return 0, err
	}

	lib, err := r.loader.Open(path)
	if err != nil {
		return 0, err
	}
	r.libs = append(r.libs, lib)
	index := len(r.libs) - 1

	if fn == nil {
		return index, nil
	}
	fnErr := fn(index, lib)
	if fnErr == nil {
		return index, nil
	}

	r.libs = r.libs[:index]
	if err := lib.Close(); err != nil {
		return 0, oops.Code(CodeUnloadFailed).With("library", path).
			Wrapf(errors.Join(ErrUnloadFailed, fmt.Errorf("close: %v", err), fmt.Errorf("after: %v", fnErr)),
				"unload rejected library")
	}
	return 0, fnErr
}

// Teardown unloads every library, in registration order, and consumes the
// registry. Unload failures are returned together as a fatal error. Calling
// Teardown again does nothing and returns nil. Tearing down a poisoned
// registry still unloads what it holds, then reports the poisoning.
func (r *Registry) Teardown() error {
	r.mu.Lock()
	if r.state == stateTornDown {
		r.mu.Unlock()
		return nil
	}
	poisoned := r.state == statePoisoned
	libs := r.libs
	r.libs = nil
	r.state = stateTornDown
	r.mu.Unlock()

	// Close errors are flattened to text so the registry's code stays on top.
	errs := []error{ErrUnloadFailed}
	for i, lib := range libs {
		if err := lib.Close(); err != nil {
			errs = append(errs, fmt.Errorf("library %d (%s): %v", i, lib.Path(), err))
		}
	}

	if failed := len(errs) - 1; failed > 0 {
		return oops.Code(CodeUnloadFailed).
			With("failed", failed, "total", len(libs)).
			Wrapf(errors.Join(errs...), "unload libraries")
	}
	if poisoned {
		return oops.Code(CodePoisoned).Wrap(ErrPoisoned)
	}
	return nil
}

// IsFatal reports whether err means the process must not keep running.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPoisoned) || errors.Is(err, ErrTornDown) || errors.Is(err, ErrUnloadFailed)
}
