// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bluefox-game/bluefox/internal/config"
	"github.com/bluefox-game/bluefox/internal/logging"
	"github.com/bluefox-game/bluefox/internal/observability"
	"github.com/bluefox-game/bluefox/internal/plugin"
	"github.com/bluefox-game/bluefox/internal/plugin/capability"
	"github.com/bluefox-game/bluefox/internal/registry"
	"github.com/bluefox-game/bluefox/internal/toolchain"
	"github.com/bluefox-game/bluefox/internal/xdg"
	"github.com/bluefox-game/bluefox/pkg/errutil"
)

func newLoadCmd(deps *LoadDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Compile and load every plugin, printing their names",
		Long: `Compile each plugin source in the plugin directory, load the resulting
library and print the name it reports, one per line. Libraries are unloaded
and the build workspace removed before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoadWithDeps(cmd.Context(), cmd, deps)
		},
	}
}

// runEnv is everything one run needs, built from config and deps.
type runEnv struct {
	cfg       *config.Config
	logger    *slog.Logger
	pluginDir string
	policy    *capability.Policy
	gatherer  *prometheus.Registry
	workspace *toolchain.Workspace
	libs      *registry.Registry
	manager   *plugin.Manager
}

// setup loads config and wires the pipeline. Errors are reported on stderr
// because no logger exists yet.
func setup(cmd *cobra.Command, deps *LoadDeps) (*runEnv, error) {
	env, err := buildEnv(cmd, deps.withDefaults())
	if err != nil {
		cmd.PrintErrln("Error:", err)
		return nil, err
	}
	return env, nil
}

func buildEnv(cmd *cobra.Command, deps *LoadDeps) (*runEnv, error) {
	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	path, err := config.ResolveFile(explicit)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr())

	pluginDir := cfg.PluginDir
	if pluginDir == "" {
		if pluginDir, err = deps.PluginsDirGetter(); err != nil {
			return nil, err
		}
	}

	policy, err := cfg.Trust.Policy()
	if err != nil {
		return nil, err
	}

	gatherer := observability.NewRegistry()
	metrics := plugin.NewMetrics(gatherer)

	ws := toolchain.NewWorkspace(cfg.WorkspaceDir, toolchain.DefaultWorkspacePrefix)
	compiler, err := deps.CompilerFactory(ws, cfg.Toolchain, metrics)
	if err != nil {
		return nil, err
	}
	libs := registry.New(deps.Loader)

	manager := plugin.NewManager(pluginDir, compiler, libs,
		plugin.WithPolicy(policy),
		plugin.WithCaller(deps.Caller),
		plugin.WithMetrics(metrics),
		plugin.WithLogger(logger),
		plugin.WithSuffix(cfg.Suffix),
	)

	if path != "" {
		logger.Debug("loaded config", "path", path)
	}
	logger.Debug("trust policy", "allow", policy.Patterns(), "pins", len(cfg.Trust.Pins))

	return &runEnv{
		cfg:       cfg,
		logger:    logger,
		pluginDir: pluginDir,
		policy:    policy,
		gatherer:  gatherer,
		workspace: ws,
		libs:      libs,
		manager:   manager,
	}, nil
}

// finish unloads every library, removes the workspace and writes metrics. Only
// the teardown result is returned; the rest is logged.
func (e *runEnv) finish() error {
	tdErr := e.libs.Teardown()
	if tdErr != nil {
		errutil.LogError(e.logger, "library teardown failed", tdErr)
	}
	if err := e.workspace.Close(); err != nil {
		errutil.LogWarn(e.logger, "failed to remove build workspace", err)
	}
	if err := observability.WriteTextfile(e.cfg.MetricsTextfile, e.gatherer); err != nil {
		errutil.LogWarn(e.logger, "failed to write metrics", err)
	}
	return tdErr
}

// runLoadWithDeps runs discovery with injectable dependencies.
// If deps is nil, default implementations are used.
func runLoadWithDeps(ctx context.Context, cmd *cobra.Command, deps *LoadDeps) error {
	env, err := setup(cmd, deps)
	if err != nil {
		return err
	}

	if err := xdg.EnsureDir(env.pluginDir); err != nil {
		errutil.LogError(env.logger, "cannot create plugin directory", err)
		return errors.Join(err, env.finish())
	}

	report, loadErr := env.manager.LoadAll(ctx)
	if loadErr != nil {
		errutil.LogError(env.logger, "plugin discovery aborted", loadErr)
	}

	out := cmd.OutOrStdout()
	for _, d := range report.Descriptors() {
		if _, err := fmt.Fprintln(out, d.Name); err != nil {
			loadErr = errors.Join(loadErr, err)
			break
		}
	}

	return errors.Join(loadErr, env.finish())
}
