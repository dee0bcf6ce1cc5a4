// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package native maps shared libraries into the process and looks up their
// exported symbols.
package native

import "errors"

// ErrUnsupported is returned on platforms without a dynamic loader binding.
var ErrUnsupported = errors.New("native libraries are not supported on this platform")

// Error codes returned by the loader.
const (
	CodeOpenFailed   = "LIBRARY_OPEN_FAILED"
	CodeSymbolFailed = "SYMBOL_NOT_FOUND"
	CodeCloseFailed  = "LIBRARY_CLOSE_FAILED"
)

// Library is a shared library mapped into the process.
type Library interface {
	// Path is the file the library was opened from.
	Path() string
	// Lookup returns the address of an exported symbol.
	Lookup(symbol string) (uintptr, error)
	// Close unmaps the library. Any address obtained from Lookup is invalid afterwards.
	Close() error
}

// Loader opens shared libraries.
type Loader interface {
	Open(path string) (Library, error)
}
