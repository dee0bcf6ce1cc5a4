// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package toolchain

import (
	"os"
	"sync"

	"github.com/samber/oops"
)

// DefaultWorkspacePrefix names the temporary directory compiled artifacts go to.
const DefaultWorkspacePrefix = "bluefox_plugins"

// Workspace is a temporary directory that lives until Close.
// The directory is created on the first call to Path.
//
// Workspace is safe for concurrent use.
type Workspace struct {
	parent string
	prefix string

	mu     sync.Mutex
	dir    string
	closed bool
}

// NewWorkspace returns a workspace that will be created under parent
// (os.TempDir when empty) with the given name prefix.
func NewWorkspace(parent, prefix string) *Workspace {
	if prefix == "" {
		prefix = DefaultWorkspacePrefix
	}
	return &Workspace{parent: parent, prefix: prefix}
}

// Path returns the workspace directory, creating it if needed.
func (w *Workspace) Path() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", oops.Code("WORKSPACE_CLOSED").Errorf("workspace already removed")
	}
	if w.dir != "" {
		return w.dir, nil
	}

	dir, err := os.MkdirTemp(w.parent, w.prefix)
	if err != nil {
		return "", oops.Code("WORKSPACE_CREATE_FAILED").
			With("parent", w.parent).
			Wrapf(err, "create workspace")
	}
	w.dir = dir
	return dir, nil
}

// Close removes the workspace and everything in it.
// Calling Close more than once, or before Path, is a no-op.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return oops.Code("WORKSPACE_REMOVE_FAILED").With("dir", w.dir).Wrapf(err, "remove workspace")
	}
	return nil
}
