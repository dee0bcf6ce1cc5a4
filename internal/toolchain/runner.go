// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package toolchain

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// Runner locates and runs external tools.
type Runner interface {
	// LookPath resolves a tool name against the search path.
	LookPath(file string) (string, error)
	// Run blocks until the process exits and returns what it wrote to stderr.
	Run(ctx context.Context, path string, args ...string) (stderr []byte, err error)
}

// ExecRunner runs tools with os/exec.
type ExecRunner struct{}

// LookPath implements Runner.
func (ExecRunner) LookPath(file string) (string, error) {
	//nolint:wrapcheck // caller attaches the stage context
	return exec.LookPath(file)
}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...) // #nosec G204 -- tool path comes from host configuration
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	err := cmd.Run()
	//nolint:wrapcheck // caller attaches the stage context
	return stderr.Bytes(), err
}
