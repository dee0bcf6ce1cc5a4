// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

//go:build !darwin && !freebsd && !linux

package native

import "github.com/samber/oops"

// DL is unavailable on this platform; Open always fails.
type DL struct{}

// Open implements Loader.
func (DL) Open(path string) (Library, error) {
	return nil, oops.Code(CodeOpenFailed).With("path", path).Wrap(ErrUnsupported)
}
