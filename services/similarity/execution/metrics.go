// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for executions.
var (
	tracer = otel.Tracer("pairwise.execution")
	meter  = otel.Meter("pairwise.execution")
)

var (
	spawnedTotal   metric.Int64Counter
	completedTotal metric.Int64Counter
	execLatency    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		spawnedTotal, err = meter.Int64Counter(
			"execution_spawned_total",
			metric.WithDescription("Total detector processes spawned"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		completedTotal, err = meter.Int64Counter(
			"execution_completed_total",
			metric.WithDescription("Total executions completed, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		execLatency, err = meter.Float64Histogram(
			"execution_duration_seconds",
			metric.WithDescription("Wall time from spawn to process exit"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startExecutionSpan creates the span covering a handle's lifetime.
func startExecutionSpan(ctx context.Context, id, command string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "execution.Handle",
		trace.WithAttributes(
			attribute.String("execution.id", id),
			attribute.String("execution.command", command),
		),
	)
}

func recordSpawn(ctx context.Context, command string) {
	if err := initMetrics(); err != nil {
		return
	}
	spawnedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

func recordExit(ctx context.Context, command string, duration time.Duration, exitCode int, interrupted bool) {
	if err := initMetrics(); err != nil {
		return
	}
	execLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("interrupted", interrupted),
		attribute.Bool("success", exitCode == 0),
	))
}

func recordComplete(ctx context.Context, command, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	completedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}
