// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package native

import "unsafe"

// CString copies the NUL-terminated bytes at p into a Go string, reading at
// most limit bytes. ok is false if no terminator was found within limit.
// p must point into memory that stays mapped for the duration of the call.
func CString(p uintptr, limit int) (s string, ok bool) {
	if p == 0 {
		return "", false
	}
	// Round-trip through a pointer variable so the address is not treated
	// as a Go-managed uintptr conversion.
	base := *(**byte)(unsafe.Pointer(&p))
	for n := 0; n < limit; n++ {
		if *(*byte)(unsafe.Add(unsafe.Pointer(base), n)) == 0 {
			return string(unsafe.Slice(base, n)), true
		}
	}
	return "", false
}
