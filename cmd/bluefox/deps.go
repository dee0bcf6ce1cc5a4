// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package main

import (
	"github.com/bluefox-game/bluefox/internal/config"
	"github.com/bluefox-game/bluefox/internal/native"
	"github.com/bluefox-game/bluefox/internal/plugin"
	"github.com/bluefox-game/bluefox/internal/toolchain"
	"github.com/bluefox-game/bluefox/internal/xdg"
)

// LoadDeps contains injectable dependencies for the load and discover commands.
// All fields with nil values will use their default implementations.
type LoadDeps struct {
	// CompilerFactory creates the compiler for one run.
	// Default: newExternalCompiler
	CompilerFactory func(ws *toolchain.Workspace, tc config.ToolchainConfig, obs toolchain.StageObserver) (toolchain.Compiler, error)

	// Loader opens compiled libraries.
	// Default: native.DL
	Loader native.Loader

	// Caller invokes plugin entry symbols.
	// Default: plugin.NativeCaller
	Caller plugin.EntryCaller

	// PluginsDirGetter returns the plugin directory when none is configured.
	// Default: xdg.PluginsDir
	PluginsDirGetter func() (string, error)
}

func (d *LoadDeps) withDefaults() *LoadDeps {
	out := LoadDeps{}
	if d != nil {
		out = *d
	}
	if out.CompilerFactory == nil {
		out.CompilerFactory = newExternalCompiler
	}
	if out.Loader == nil {
		out.Loader = native.DL{}
	}
	if out.Caller == nil {
		out.Caller = plugin.NativeCaller
	}
	if out.PluginsDirGetter == nil {
		out.PluginsDirGetter = xdg.PluginsDir
	}
	return &out
}

// newExternalCompiler configures the llc/gcc toolchain from the config.
func newExternalCompiler(ws *toolchain.Workspace, tc config.ToolchainConfig, obs toolchain.StageObserver) (toolchain.Compiler, error) {
	dir, err := toolchain.ResolveSupportDir(tc.SupportLibDir)
	if err != nil {
		return nil, err
	}
	return toolchain.NewExternal(ws,
		toolchain.WithTools(tc.LLC, tc.GCC),
		toolchain.WithSupportLib(dir, tc.SupportLib),
		toolchain.WithNativeExt(tc.NativeExt),
		toolchain.WithStageObserver(obs),
	), nil
}
