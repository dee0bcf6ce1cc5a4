// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/bluefox-game/bluefox/internal/config"
	"github.com/bluefox-game/bluefox/internal/logging"
	"github.com/bluefox-game/bluefox/internal/plugin/capability"
	"github.com/bluefox-game/bluefox/internal/toolchain"
)

const serviceName = "bluefox"

// NewRootCmd creates the root command. Running it without a subcommand
// behaves like "load".
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *LoadDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bluefox",
		Short: "Bluefox game plugin host",
		Long: `Bluefox compiles the LLVM IR plugin sources found in the plugin
directory into shared libraries, loads them and prints the name each
plugin reports.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoadWithDeps(cmd.Context(), cmd, deps)
		},
	}

	addConfigFlags(cmd)

	cmd.AddCommand(newLoadCmd(deps))
	cmd.AddCommand(newDiscoverCmd(deps))

	return cmd
}

// addConfigFlags registers the flags bound to config keys. Their defaults
// only document the built-in values; unchanged flags never override the
// config file.
func addConfigFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.PersistentFlags()

	f.String("config", "", "config file path (default: XDG_CONFIG_HOME/bluefox_game/bluefox.yaml)")
	f.String("plugin-dir", "", "plugin source directory (default: XDG_DATA_HOME/bluefox_game/plugins)")
	f.String("workspace-dir", "", "parent of the temporary build workspace (default: system temp dir)")
	f.String("metrics-textfile", "", "write run metrics to this file")
	f.String("log-format", d.Log.Format, "log format ("+logging.FormatJSON+" or "+logging.FormatText+")")
	f.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	f.String("llc", toolchain.DefaultLLC, "IR to assembly compiler")
	f.String("gcc", toolchain.DefaultGCC, "assembler and linker driver")
	f.String("support-lib-dir", toolchain.DefaultSupportLibDir, "support library directory, relative to the executable unless absolute")
	f.String("support-lib", toolchain.DefaultSupportLib, "support library name (empty links nothing)")
	f.StringSlice("trust", []string{capability.AllowAllPattern}, "glob patterns of trusted plugin names")
}
