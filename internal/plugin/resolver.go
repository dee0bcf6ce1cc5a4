// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package plugin

import (
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/bluefox-game/bluefox/internal/native"
)

// EntrySymbol is the function every plugin library must export. It takes no
// arguments and returns, by value, a struct whose first field is a pointer
// to the NUL-terminated plugin name:
//
//	struct bluefox_plugin { const char *name; };
//	struct bluefox_plugin get_plugin(void);
const EntrySymbol = "get_plugin"

// MaxNameLength bounds the bytes read from a descriptor name.
const MaxNameLength = 4096

// CodeDescriptorInvalid is the error code for an unusable descriptor.
const CodeDescriptorInvalid = "DESCRIPTOR_INVALID"

// Descriptor describes a loaded plugin. It owns all of its data and stays
// valid after the library it came from is unloaded.
type Descriptor struct {
	Name string
	// Source is the IR file the plugin was compiled from.
	Source string
	// Library is the compiled artifact that was loaded.
	Library string
	// Index is the library's position in the registry.
	Index int
}

// EntryCaller invokes a resolved entry symbol and returns the descriptor's
// name pointer. The call is trusted: nothing verifies that the symbol has the
// expected signature.
type EntryCaller interface {
	CallEntry(fn uintptr) uintptr
}

// CallerFunc adapts a function to EntryCaller.
type CallerFunc func(fn uintptr) uintptr

// CallEntry implements EntryCaller.
func (f CallerFunc) CallEntry(fn uintptr) uintptr { return f(fn) }

// NativeCaller calls the entry symbol through the C calling convention.
var NativeCaller EntryCaller = CallerFunc(native.Call0)

// resolveName calls the entry symbol of lib and copies the descriptor name
// out of the library's memory. The returned string does not reference lib.
// It must run while lib is guaranteed to stay loaded.
func resolveName(lib native.Library, caller EntryCaller) (string, error) {
	fn, err := lib.Lookup(EntrySymbol)
	if err != nil {
		return "", err
	}

	ptr := caller.CallEntry(fn)
	errb := oops.Code(CodeDescriptorInvalid).With("library", lib.Path(), "symbol", EntrySymbol)
	if ptr == 0 {
		return "", errb.Errorf("descriptor name is NULL")
	}

	name, ok := native.CString(ptr, MaxNameLength)
	switch {
	case !ok:
		return "", errb.Errorf("descriptor name is not terminated within %d bytes", MaxNameLength)
	case name == "":
		return "", errb.Errorf("descriptor name is empty")
	case !utf8.ValidString(name):
		return "", errb.Errorf("descriptor name is not valid UTF-8")
	}
	return name, nil
}
