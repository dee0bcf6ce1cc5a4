// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/bluefox-game/bluefox/internal/native"
	"github.com/bluefox-game/bluefox/internal/toolchain"
	"github.com/bluefox-game/bluefox/pkg/errutil"
)

// fakeCompiler "compiles" by returning <name>.bfpn in a fixed directory. It
// reports both stages to the stage hook; an error whose stage is native fails
// after the second stage starts.
type fakeCompiler struct {
	mu        sync.Mutex
	calls     []string
	errs      map[string]error
	onCompile func(name string)
}

func (f *fakeCompiler) Compile(ctx context.Context, path, name string) (toolchain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.onCompile != nil {
		f.onCompile(name)
	}
	toolchain.StageStarted(ctx, toolchain.StageAssembly)
	err := f.errs[name]
	if stage, _ := errutil.ContextValue(err, "stage"); err == nil || stage == string(toolchain.StageNative) {
		toolchain.StageStarted(ctx, toolchain.StageNative)
	}
	if err != nil {
		return toolchain.Artifact{}, err
	}
	return toolchain.Artifact{
		Name:     name,
		Source:   path,
		Assembly: "/ws/" + name + ".s",
		Library:  "/ws/" + name + ".bfpn",
	}, nil
}

func (f *fakeCompiler) compiled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeNative plays both the loader and the entry caller. Each library's entry
// symbol resolves to an address that the caller maps to a NUL-terminated
// buffer holding the configured descriptor name.
type fakeNative struct {
	mu       sync.Mutex
	names    map[string]string // library base name without ext -> descriptor name
	noSymbol map[string]bool
	nullName map[string]bool
	openErr  map[string]error
	buffers  map[uintptr][]byte
	opened   []string
	closed   []string
	next     uintptr
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		names:    map[string]string{},
		noSymbol: map[string]bool{},
		nullName: map[string]bool{},
		openErr:  map[string]error{},
		buffers:  map[uintptr][]byte{},
		next:     0x1000,
	}
}

func (f *fakeNative) Open(path string) (native.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimSuffix(filepath.Base(path), ".bfpn")
	if err := f.openErr[key]; err != nil {
		return nil, err
	}
	f.opened = append(f.opened, path)
	f.next += 0x10
	return &fakeLib{owner: f, path: path, key: key, entry: f.next}, nil
}

func (f *fakeNative) CallEntry(fn uintptr) uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.buffers[fn]
	if !ok {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

type fakeLib struct {
	owner *fakeNative
	path  string
	key   string
	entry uintptr
}

func (l *fakeLib) Path() string { return l.path }

func (l *fakeLib) Lookup(symbol string) (uintptr, error) {
	f := l.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	if symbol != EntrySymbol || f.noSymbol[l.key] {
		return 0, oops.Code(native.CodeSymbolFailed).With("symbol", symbol).Errorf("undefined symbol: %s", symbol)
	}
	if !f.nullName[l.key] {
		name, ok := f.names[l.key]
		if !ok {
			name = l.key
		}
		f.buffers[l.entry] = append([]byte(name), 0)
	}
	return l.entry, nil
}

func (l *fakeLib) Close() error {
	f := l.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, l.path)
	// Scribble over the name like an unmapped page would be reused.
	if buf, ok := f.buffers[l.entry]; ok {
		for i := range buf {
			buf[i] = 'X'
		}
	}
	return nil
}

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o750))
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0o600))
}

// pluginDir creates a directory containing the given files.
func pluginDir(t *testing.T, files ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "plugins")
	mkdirAll(t, dir)
	for _, f := range files {
		writeFile(t, filepath.Join(dir, f), []byte("; IR for "+f+"\n"))
	}
	return dir
}

var errBoom = errors.New("boom")
