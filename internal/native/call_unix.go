// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

//go:build darwin || freebsd || linux

package native

import "github.com/ebitengine/purego"

// Call0 invokes the zero-argument C function at fn and returns the first
// integer return register. A C struct holding a single pointer is returned
// in that register on amd64 and arm64.
func Call0(fn uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn)
	return r1
}
