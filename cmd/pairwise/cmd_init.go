// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pairwise/pkg/ux"
	"github.com/AleutianAI/pairwise/services/similarity/config"
)

func newInitConfigCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default configuration file",
		Long: `Write a default configuration file.

The path defaults to --config, then $` + config.EnvConfigPath + `, then
~/.pairwise/pairwise.yaml. An existing file is left alone unless --force
is given.`,
		Args:        badArgs(cobra.MaximumNArgs(1)),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(_ *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}

			if force {
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("remove existing config: %w", err)
				}
			}
			if err := config.WriteDefault(path); err != nil {
				if errors.Is(err, fs.ErrExist) {
					return withExitCode(ExitBadArgs, fmt.Errorf("%w (use --force to overwrite)", err))
				}
				return err
			}
			ux.NewPrinter(a.stdout).Success("wrote " + path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        badArgs(cobra.NoArgs),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "pairwise %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
