// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

//go:build darwin || freebsd || linux

package native

import (
	"github.com/ebitengine/purego"
	"github.com/samber/oops"
)

// DL opens libraries with dlopen through purego, without cgo.
type DL struct{}

// Compile-time interface check.
var _ Loader = DL{}

// Open implements Loader. Symbols are bound immediately and kept local to
// the library so two plugins exporting the same entry symbol do not clash.
func (DL) Open(path string) (Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, oops.Code(CodeOpenFailed).With("path", path).Wrapf(err, "dlopen")
	}
	return &dlLibrary{path: path, handle: h}, nil
}

type dlLibrary struct {
	path   string
	handle uintptr
}

func (l *dlLibrary) Path() string { return l.path }

func (l *dlLibrary) Lookup(symbol string) (uintptr, error) {
	if l.handle == 0 {
		return 0, oops.Code(CodeSymbolFailed).With("path", l.path, "symbol", symbol).Errorf("library is closed")
	}
	addr, err := purego.Dlsym(l.handle, symbol)
	if err != nil {
		return 0, oops.Code(CodeSymbolFailed).With("path", l.path, "symbol", symbol).Wrapf(err, "dlsym")
	}
	return addr, nil
}

func (l *dlLibrary) Close() error {
	if l.handle == 0 {
		return nil
	}
	if err := purego.Dlclose(l.handle); err != nil {
		return oops.Code(CodeCloseFailed).With("path", l.path).Wrapf(err, "dlclose")
	}
	l.handle = 0
	return nil
}
