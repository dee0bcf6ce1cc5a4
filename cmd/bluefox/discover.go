// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bluefox-game/bluefox/pkg/errutil"
)

func newDiscoverCmd(deps *LoadDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List plugin sources without compiling them",
		Long: `List every entry of the plugin directory with the logical plugin name
it maps to, or the reason it would be skipped. Nothing is compiled or loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscoverWithDeps(cmd, deps)
		},
	}
}

func runDiscoverWithDeps(cmd *cobra.Command, deps *LoadDeps) error {
	env, err := setup(cmd, deps)
	if err != nil {
		return err
	}

	candidates, err := env.manager.Discover(cmd.Context())
	if err != nil {
		errutil.LogError(env.logger, "cannot read plugin directory", err)
		return errors.Join(err, env.finish())
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, c := range candidates {
		status := "ok"
		name := c.Source.Name
		switch {
		case c.Err != nil:
			status = "skipped (" + errutil.Code(c.Err) + ")"
			name = "-"
		case env.policy.Check(c.Source.Name, c.Source.Path) != nil:
			status = "untrusted"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Entry, name, status)
	}
	if err := w.Flush(); err != nil {
		return errors.Join(err, env.finish())
	}
	return env.finish()
}
