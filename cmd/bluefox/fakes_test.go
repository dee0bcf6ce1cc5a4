// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/samber/oops"

	"github.com/bluefox-game/bluefox/internal/config"
	"github.com/bluefox-game/bluefox/internal/native"
	"github.com/bluefox-game/bluefox/internal/toolchain"
)

// stubToolchain writes an empty library into the workspace for each source
// and reports which sources it was asked to compile.
type stubToolchain struct {
	mu       sync.Mutex
	ws       *toolchain.Workspace
	tc       config.ToolchainConfig
	compiled []string
	fail     map[string]error
}

func (s *stubToolchain) factory(ws *toolchain.Workspace, tc config.ToolchainConfig, _ toolchain.StageObserver) (toolchain.Compiler, error) {
	s.ws = ws
	s.tc = tc
	return s, nil
}

func (s *stubToolchain) Compile(_ context.Context, path, name string) (toolchain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compiled = append(s.compiled, name)
	if err := s.fail[name]; err != nil {
		return toolchain.Artifact{}, err
	}
	dir, err := s.ws.Path()
	if err != nil {
		return toolchain.Artifact{}, err
	}
	lib := filepath.Join(dir, name+s.tc.NativeExt)
	if err := os.WriteFile(lib, nil, 0o600); err != nil {
		return toolchain.Artifact{}, err
	}
	return toolchain.Artifact{Name: name, Source: path, Library: lib}, nil
}

// stubNative loads "libraries" whose entry symbol yields the name stored in
// names under the library's base name.
type stubNative struct {
	mu       sync.Mutex
	names    map[string]string
	closeErr error
	buffers  map[uintptr][]byte
	next     uintptr
	closed   int
}

func newStubNative(names map[string]string) *stubNative {
	return &stubNative{names: names, buffers: map[uintptr][]byte{}, next: 0x100}
}

func (s *stubNative) Open(path string) (native.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	base := filepath.Base(path)
	key := strings.TrimSuffix(base, filepath.Ext(base))
	s.buffers[s.next] = append([]byte(s.names[key]), 0)
	return &stubLib{owner: s, path: path, entry: s.next}, nil
}

func (s *stubNative) CallEntry(fn uintptr) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[fn]
	return uintptr(unsafe.Pointer(&buf[0]))
}

type stubLib struct {
	owner *stubNative
	path  string
	entry uintptr
}

func (l *stubLib) Path() string { return l.path }

func (l *stubLib) Lookup(symbol string) (uintptr, error) {
	if symbol != "get_plugin" {
		return 0, oops.Code(native.CodeSymbolFailed).Errorf("undefined symbol: %s", symbol)
	}
	return l.entry, nil
}

func (l *stubLib) Close() error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	l.owner.closed++
	return l.owner.closeErr
}
