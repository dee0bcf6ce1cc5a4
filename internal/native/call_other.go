// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

//go:build !darwin && !freebsd && !linux

package native

// Call0 panics: no library can be opened on this platform, so there is no
// function to call.
func Call0(uintptr) uintptr {
	panic(ErrUnsupported)
}
