// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package toolchain turns plugin IR sources into native shared libraries.
//
// The default Compiler shells out to two tools in sequence: llc lowers the IR
// to assembly, then gcc links the assembly into a position-independent shared
// library against the bundled support library, without the C runtime.
package toolchain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Stage identifies one step of a compilation.
type Stage string

// Compilation stages, in the order they run.
const (
	StageAssembly Stage = "assembly"
	StageNative   Stage = "native"
)

// Error codes returned by Compile.
const (
	CodeCompilerNotFound = "COMPILER_NOT_FOUND"
	CodeCompileFailed    = "COMPILE_FAILED"
)

// Defaults for External.
const (
	DefaultLLC           = "llc"
	DefaultGCC           = "gcc"
	DefaultSupportLibDir = "assets/pluginlib"
	DefaultSupportLib    = "bluefox_lib"
	DefaultNativeExt     = ".bfpn"
)

// maxStderr bounds how much tool output is kept on an error.
const maxStderr = 4096

// Compiler translates a plugin source into a loadable artifact.
type Compiler interface {
	// Compile builds the source at path into a shared library named after name.
	// Either both the library exists afterwards or an error is returned.
	Compile(ctx context.Context, path, name string) (Artifact, error)
}

// Artifact is the output of a successful compilation.
type Artifact struct {
	Name     string
	Source   string
	Assembly string
	Library  string
}

// StageObserver is told how long each stage ran and how it ended.
type StageObserver interface {
	ObserveStage(stage Stage, elapsed time.Duration, err error)
}

type stageHookKey struct{}

// WithStageHook returns a context under which Compile calls fn as each stage
// starts, before its tool is looked up.
func WithStageHook(ctx context.Context, fn func(Stage)) context.Context {
	return context.WithValue(ctx, stageHookKey{}, fn)
}

// StageStarted calls the hook installed by WithStageHook, if any. Compiler
// implementations call it as each stage begins.
func StageStarted(ctx context.Context, stage Stage) {
	if fn, ok := ctx.Value(stageHookKey{}).(func(Stage)); ok && fn != nil {
		fn(stage)
	}
}

// External is a Compiler backed by llc and gcc.
type External struct {
	workspace     *Workspace
	runner        Runner
	observer      StageObserver
	llc           string
	gcc           string
	supportLibDir string
	supportLib    string
	nativeExt     string
}

// Compile-time interface check.
var _ Compiler = (*External)(nil)

// ExternalOption configures an External compiler.
type ExternalOption func(*External)

// WithRunner replaces the process runner (for testing).
func WithRunner(r Runner) ExternalOption {
	return func(e *External) { e.runner = r }
}

// WithTools overrides the tool names. Empty values keep the defaults.
func WithTools(llc, gcc string) ExternalOption {
	return func(e *External) {
		if llc != "" {
			e.llc = llc
		}
		if gcc != "" {
			e.gcc = gcc
		}
	}
}

// WithSupportLib sets the directory and name of the static support library.
// The directory must already be absolute; see ResolveSupportDir. An empty
// name links without any support library.
func WithSupportLib(dir, name string) ExternalOption {
	return func(e *External) {
		e.supportLibDir = dir
		e.supportLib = name
	}
}

// WithNativeExt sets the file extension of produced libraries.
func WithNativeExt(ext string) ExternalOption {
	return func(e *External) {
		if ext != "" {
			e.nativeExt = ext
		}
	}
}

// WithStageObserver reports stage timings to o.
func WithStageObserver(o StageObserver) ExternalOption {
	return func(e *External) { e.observer = o }
}

// NewExternal creates a compiler writing artifacts beneath ws.
// Panics if ws is nil.
func NewExternal(ws *Workspace, opts ...ExternalOption) *External {
	if ws == nil {
		panic("toolchain: workspace cannot be nil")
	}
	e := &External{
		workspace:  ws,
		runner:     ExecRunner{},
		llc:        DefaultLLC,
		gcc:        DefaultGCC,
		supportLib: DefaultSupportLib,
		nativeExt:  DefaultNativeExt,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveSupportDir makes a relative support library directory relative to
// the directory of the running executable.
func ResolveSupportDir(dir string) (string, error) {
	if dir == "" || filepath.IsAbs(dir) {
		return dir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", oops.Code("EXECUTABLE_UNKNOWN").Wrapf(err, "locate running executable")
	}
	return filepath.Join(filepath.Dir(exe), dir), nil
}

// Compile implements Compiler. Each call writes into its own directory under
// the workspace, so sources sharing a logical name never share a library path.
func (e *External) Compile(ctx context.Context, path, name string) (Artifact, error) {
	ws, err := e.workspace.Path()
	if err != nil {
		return Artifact{}, err
	}
	dir, err := os.MkdirTemp(ws, name+"-")
	if err != nil {
		return Artifact{}, oops.Code("WORKSPACE_CREATE_FAILED").With("plugin", name).
			Wrapf(err, "create build directory for %s", name)
	}

	art := Artifact{
		Name:     name,
		Source:   path,
		Assembly: filepath.Join(dir, name+".s"),
		Library:  filepath.Join(dir, name+e.nativeExt),
	}

	asmArgs := []string{"-filetype=asm", "-relocation-model=pic", "-o", art.Assembly, art.Source}
	if err := e.run(ctx, StageAssembly, e.llc, asmArgs); err != nil {
		removeQuietly(dir)
		return Artifact{}, err
	}

	linkArgs := []string{"-nostdlib", "-shared", "-fPIC", "-o", art.Library, art.Assembly}
	if e.supportLib != "" {
		if e.supportLibDir != "" {
			linkArgs = append(linkArgs, "-L"+e.supportLibDir)
		}
		linkArgs = append(linkArgs, "-l"+e.supportLib)
	}
	if err := e.run(ctx, StageNative, e.gcc, linkArgs); err != nil {
		removeQuietly(dir)
		return Artifact{}, err
	}

	return art, nil
}

// run executes one stage and classifies its failure.
func (e *External) run(ctx context.Context, stage Stage, tool string, args []string) (err error) {
	StageStarted(ctx, stage)
	start := time.Now()
	if e.observer != nil {
		defer func() { e.observer.ObserveStage(stage, time.Since(start), err) }()
	}

	errb := oops.With("stage", string(stage), "tool", tool)

	bin, err := e.runner.LookPath(tool)
	if err != nil {
		return errb.Code(CodeCompilerNotFound).Wrapf(err, "%s not found", tool)
	}

	stderr, err := e.runner.Run(ctx, bin, args...)
	if err == nil {
		return nil
	}

	if msg := trimOutput(stderr); msg != "" {
		errb = errb.With("stderr", msg)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		errb = errb.With("exit_code", exitErr.ExitCode())
	}
	return errb.Code(CodeCompileFailed).Wrapf(err, "%s stage failed: %s", stage, tool)
}

func trimOutput(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	return s
}

// removeQuietly drops the partial outputs of a failed compile.
func removeQuietly(dir string) {
	_ = os.RemoveAll(dir)
}
