// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/pairwise/services/similarity"
)

var tracer = otel.Tracer("pairwise.evaluator")

const (
	metricsNamespace = "pairwise"
	metricsSubsystem = "evaluator"
)

// Metrics holds the Prometheus metrics for batch evaluation.
//
// All methods are nil-safe, so an Evaluator without metrics can call them
// unconditionally.
//
// Thread Safety: Safe for concurrent use (Prometheus metrics are thread-safe).
type Metrics struct {
	// ComparisonsTotal counts finished comparisons by detector and outcome.
	ComparisonsTotal *prometheus.CounterVec

	// ComparisonDurationSeconds measures one comparison, success or not.
	ComparisonDurationSeconds *prometheus.HistogramVec

	// SkippedTotal counts pairs never dispatched because the run ended.
	SkippedTotal *prometheus.CounterVec

	// InFlight is the number of comparisons currently running.
	InFlight *prometheus.GaugeVec

	// Outstanding is the number of pairs of the current batch not yet done.
	Outstanding *prometheus.GaugeVec

	// BatchesTotal counts evaluation runs.
	BatchesTotal *prometheus.CounterVec

	// BatchDurationSeconds measures a whole evaluation run.
	BatchDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers the evaluator metrics on reg.
//
// Inputs:
//
//	reg - Registerer to use. Nil means prometheus.DefaultRegisterer.
//
// Outputs:
//
//	*Metrics - The created metrics. Never nil.
//
// Registering twice on the same registerer panics, as with promauto.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ComparisonsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "comparisons_total",
				Help:      "Finished comparisons by detector and outcome",
			},
			[]string{"detector", "outcome"},
		),

		ComparisonDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "comparison_duration_seconds",
				Help:      "Duration of one pairwise comparison",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"detector"},
		),

		SkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "skipped_total",
				Help:      "Pairs not dispatched because the run was cancelled",
			},
			[]string{"detector"},
		),

		InFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "in_flight",
				Help:      "Comparisons currently running",
			},
			[]string{"detector"},
		),

		Outstanding: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "outstanding",
				Help:      "Pairs of the current batch not yet finished",
			},
			[]string{"detector"},
		),

		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "batches_total",
				Help:      "Evaluation runs started",
			},
			[]string{"detector"},
		),

		BatchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "batch_duration_seconds",
				Help:      "Duration of a whole evaluation run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"detector"},
		),
	}
}

func (m *Metrics) batchStarted(detector string, pairs int) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(detector).Inc()
	m.Outstanding.WithLabelValues(detector).Set(float64(pairs))
}

func (m *Metrics) batchFinished(detector string, d time.Duration) {
	if m == nil {
		return
	}
	m.Outstanding.WithLabelValues(detector).Set(0)
	m.BatchDurationSeconds.WithLabelValues(detector).Observe(d.Seconds())
}

func (m *Metrics) comparisonStarted(detector string) {
	if m == nil {
		return
	}
	m.InFlight.WithLabelValues(detector).Inc()
}

func (m *Metrics) comparisonFinished(detector string, kind similarity.OutcomeKind, d time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.WithLabelValues(detector).Dec()
	m.Outstanding.WithLabelValues(detector).Dec()
	m.ComparisonsTotal.WithLabelValues(detector, kind.String()).Inc()
	m.ComparisonDurationSeconds.WithLabelValues(detector).Observe(d.Seconds())
}

func (m *Metrics) pairSkipped(detector string) {
	if m == nil {
		return
	}
	m.Outstanding.WithLabelValues(detector).Dec()
	m.SkippedTotal.WithLabelValues(detector).Inc()
}
