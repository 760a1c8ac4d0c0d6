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
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/pairwise/pkg/ux"
	"github.com/AleutianAI/pairwise/pkg/validation"
	"github.com/AleutianAI/pairwise/services/similarity"
	"github.com/AleutianAI/pairwise/services/similarity/config"
	"github.com/AleutianAI/pairwise/services/similarity/corpus"
	"github.com/AleutianAI/pairwise/services/similarity/detector"
	"github.com/AleutianAI/pairwise/services/similarity/evaluator"
	"github.com/AleutianAI/pairwise/services/similarity/telemetry"
)

type evaluateOptions struct {
	detectors   []string
	concurrency int
	timeout     time.Duration
	progress    time.Duration
	extensions  []string
	output      string
	metricsAddr string
	top         int
	strict      bool
}

// newEvaluateCmd builds "pairwise evaluate".
//
// # Description
//
// Loads every submission under the corpus directory, provisions the
// selected detectors, and scores every unordered pair with each of them.
// A failed comparison never aborts the batch: it is logged, listed in the
// report, and the pair is left without a score.
//
// # Exit Codes
//
//	0 - Batch finished (failed pairs are listed in the report)
//	1 - Interrupted, or --strict and at least one pair failed
//	2 - Invalid arguments or configuration
//	3 - A detector could not be provisioned
func newEvaluateCmd(a *app) *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate <corpus-dir>",
		Short: "Score every pair of submissions in a corpus",
		Long: `Score every pair of submissions in a corpus.

Each non-hidden directory under <corpus-dir> is one submission. Every
unordered pair is compared by each selected detector with at most
--concurrency comparisons running at once.

With --timeout, comparisons run asynchronously and a pair that exceeds the
timeout is interrupted and reported as failed.

Examples:
  pairwise evaluate ./submissions
  pairwise evaluate ./submissions --detector sim --concurrency 8
  pairwise evaluate ./submissions --timeout 2m --output json > report.json
  pairwise evaluate ./submissions --metrics-addr :9464`,
		Args: badArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEvaluate(cmd, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.detectors, "detector", "d", nil,
		"Detector IDs to run (default: every configured detector)")
	f.IntVarP(&opts.concurrency, "concurrency", "k", 0,
		"Maximum comparisons in flight (overrides config)")
	f.DurationVar(&opts.timeout, "timeout", 0,
		"Per-comparison timeout; enables async mode (overrides config)")
	f.DurationVar(&opts.progress, "progress", 0,
		"Progress log interval, 0 disables (overrides config)")
	f.StringSliceVar(&opts.extensions, "ext", nil,
		"Source file extensions, e.g. .java,.c (overrides config)")
	f.StringVarP(&opts.output, "output", "o", string(ux.FormatAuto),
		"Report format: auto, text, json")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run (overrides config)")
	f.IntVar(&opts.top, "top", 0,
		"Show only the N highest-scoring pairs per detector in text output")
	f.BoolVar(&opts.strict, "strict", false,
		"Exit 1 when any comparison failed")
	return cmd
}

// effectiveConfig applies flags the user set explicitly on top of the file.
func (o *evaluateOptions) effectiveConfig(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	f := cmd.Flags()
	if f.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if f.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if f.Changed("progress") {
		cfg.ProgressInterval = o.progress
	}
	if f.Changed("ext") {
		cfg.Extensions = o.extensions
	}
	if f.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = o.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (a *app) runEvaluate(cmd *cobra.Command, root string, opts *evaluateOptions) error {
	ctx := cmd.Context()
	log := a.logger.Slog()

	cfg, err := opts.effectiveConfig(cmd, a.cfg)
	if err != nil {
		return withExitCode(ExitBadArgs, err)
	}
	format, err := ux.ParseFormat(opts.output)
	if err != nil {
		return withExitCode(ExitBadArgs, err)
	}
	format = format.Resolve(a.stdout)

	reg := prometheus.NewRegistry()
	shutdown, err := telemetry.Init(ctx, a.telemetryConfig(cfg), reg)
	if err != nil {
		return withExitCode(ExitBadArgs, err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	detectors, err := a.selectDetectors(cfg, opts.detectors)
	if err != nil {
		return err
	}

	corp, err := corpus.Load(ctx, root, cfg.Extensions, corpus.DefaultListLimit)
	if err != nil {
		return withExitCode(ExitBadArgs, fmt.Errorf("load corpus: %w", err))
	}
	log.Info("Corpus loaded",
		slog.String("root", corp.Root),
		slog.Int("submissions", len(corp.Submissions)),
	)

	if err := detector.ProvisionAll(ctx, cfg.ProvisionDir, detectors, log); err != nil {
		return err
	}
	defer func() {
		if err := detector.ReleaseAll(detectors); err != nil {
			log.Warn("Detector release failed", slog.String("error", err.Error()))
		}
	}()

	metrics := evaluator.NewMetrics(reg)
	if cfg.Telemetry.MetricsAddr != "" {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv, err := startMetricsServer(cfg.Telemetry.MetricsAddr, reg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Warn("Metrics server shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	report := Report{
		Corpus:      filepath.Base(corp.Root),
		Submissions: len(corp.Submissions),
		Detectors:   make([]DetectorReport, 0, len(detectors)),
	}
	for _, d := range detectors {
		dr, err := evaluateWith(ctx, d, corp, cfg, metrics, log)
		if err != nil {
			return err
		}
		report.Detectors = append(report.Detectors, dr)
	}

	if err := renderReport(a.stdout, format, report, opts.top); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return withExitCode(ExitFailure, fmt.Errorf("evaluation interrupted: %w", err))
	}
	if opts.strict && report.Failed() > 0 {
		return withExitCode(ExitFailure, fmt.Errorf("%d comparisons failed", report.Failed()))
	}
	return nil
}

// evaluateWith runs one detector over the corpus.
func evaluateWith(ctx context.Context, d detector.Detector, corp similarity.Corpus, cfg config.Config,
	metrics *evaluator.Metrics, log *slog.Logger) (DetectorReport, error) {

	log = log.With(slog.String("detector", d.ID()))

	var comparer evaluator.Comparer = d
	if cfg.Timeout > 0 {
		comparer = detector.AsyncComparer{Detector: d, Timeout: cfg.Timeout, Logger: log}
	}

	failures := &failureCollector{}
	ev, err := evaluator.New(comparer,
		evaluator.WithName(d.ID()),
		evaluator.WithConcurrency(cfg.Concurrency),
		evaluator.WithLogger(log),
		evaluator.WithMetrics(metrics),
		evaluator.WithFailureHandler(func(err error, leftID, rightID string) {
			log.Warn("Comparison failed",
				slog.String("left", leftID),
				slog.String("right", rightID),
				slog.String("error", err.Error()),
			)
			failures.add(err, leftID, rightID)
		}),
		evaluator.WithProgress(cfg.ProgressInterval, func(p evaluator.Progress) {
			log.Info("Awaiting comparisons",
				slog.Int("outstanding", p.Outstanding),
				slog.Int("completed", p.Completed),
				slog.Int("total", p.Total),
				slog.Duration("elapsed", p.Elapsed),
			)
		}),
	)
	if err != nil {
		return DetectorReport{}, withExitCode(ExitBadArgs, err)
	}

	batch, err := ev.Evaluate(ctx, corp.Submissions)
	if err != nil {
		return DetectorReport{}, err
	}
	return newDetectorReport(d.ID(), batch, failures.list()), nil
}

// selectDetectors builds tool detectors from the configuration and picks
// the requested IDs.
func (a *app) selectDetectors(cfg config.Config, ids []string) ([]detector.Detector, error) {
	if len(cfg.Detectors) == 0 {
		return nil, withExitCode(ExitBadArgs,
			fmt.Errorf("no detectors configured; add one to the config file (see 'pairwise init-config')"))
	}
	registry, err := detector.FromConfigs(cfg.Detectors,
		detector.WithLogger(a.logger.Slog()),
		detector.WithWorkspaceRoot(cfg.WorkspaceDir),
		detector.WithExtensions(cfg.Extensions),
	)
	if err != nil {
		return nil, withExitCode(ExitBadArgs, err)
	}
	if err := validation.ValidateIdentifiers(ids); err != nil {
		return nil, withExitCode(ExitBadArgs, err)
	}
	detectors, err := registry.Select(ids...)
	if err != nil {
		return nil, withExitCode(ExitBadArgs, err)
	}
	return detectors, nil
}

func (a *app) telemetryConfig(cfg config.Config) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	if cfg.Telemetry.Traces != "" {
		tc.TraceExporter = cfg.Telemetry.Traces
	}
	if cfg.Telemetry.Metrics != "" {
		tc.MetricExporter = cfg.Telemetry.Metrics
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	tc.Writer = a.stderr
	return tc
}
