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
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pairwise/pkg/logging"
	"github.com/AleutianAI/pairwise/pkg/ux"
	"github.com/AleutianAI/pairwise/services/similarity"
	"github.com/AleutianAI/pairwise/services/similarity/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitBadArgs      = 2
	ExitProvisioning = 3
)

// skipConfigAnnotation marks commands that must work without a readable
// configuration file.
const skipConfigAnnotation = "pairwise/skip-config"

// =============================================================================
// EXIT ERRORS
// =============================================================================

// exitError attaches a process exit code to a command error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, similarity.ErrProvisioning):
		return ExitProvisioning
	case errors.Is(err, similarity.ErrInvalidInput), errors.Is(err, similarity.ErrUnknownDetector):
		return ExitBadArgs
	default:
		return ExitFailure
	}
}

// badArgs wraps a cobra positional-args validator so that violations exit
// with ExitBadArgs.
func badArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withExitCode(ExitBadArgs, validate(cmd, args))
	}
}

// =============================================================================
// APPLICATION
// =============================================================================

// app holds state shared by every subcommand of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logJSON    bool
	logDir     string

	cfg    config.Config
	logger *logging.Logger
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, cfg: config.Default()}
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := a.rootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		ux.NewPrinter(stderr).Error(err.Error())
		return exitCode(err)
	}
	return ExitOK
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pairwise",
		Short: "Pairwise similarity evaluation over a submission corpus",
		Long: `pairwise compares every pair of submissions in a corpus with external
similarity detectors and reports one score per pair.

Detectors are configured in a YAML file (see 'pairwise init-config'). Each
comparison runs the detector in a private workspace holding copies of both
submissions; matrix detectors are reduced to one score by optimal
file-to-file assignment.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(ExitBadArgs, err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "",
		"Config file (default $"+config.EnvConfigPath+" or ~/.pairwise/pairwise.yaml)")
	pf.StringVar(&a.logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	pf.BoolVar(&a.logJSON, "log-json", false,
		"Write logs to stderr as JSON")
	pf.StringVar(&a.logDir, "log-dir", "",
		"Also write JSON logs to this directory")

	root.AddCommand(
		newEvaluateCmd(a),
		newCompareCmd(a),
		newDetectorsCmd(a),
		newInitConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads the configuration and builds the logger before any
// subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfigAnnotation] != "true" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return withExitCode(ExitBadArgs, fmt.Errorf("load config: %w", err))
		}
		a.cfg = cfg
	}

	levelName := a.cfg.Logging.Level
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return withExitCode(ExitBadArgs, err)
	}
	logDir := a.cfg.Logging.Dir
	if a.logDir != "" {
		logDir = a.logDir
	}

	logger, err := logging.New(logging.Config{
		Level:  level,
		LogDir: logDir,
		JSON:   a.logJSON || a.cfg.Logging.JSON,
		Output: a.stderr,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger
	logger.SetDefault()
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
