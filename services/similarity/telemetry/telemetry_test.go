// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

// keepGlobals restores the global providers after a test replaces them.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	mp := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	cfg := DefaultConfig()

	assert.Equal(t, "pairwise", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("OTEL_METRICS_EXPORTER", "prometheus")

	cfg := DefaultConfig()

	assert.Equal(t, ExporterStdout, cfg.TraceExporter)
	assert.Equal(t, ExporterPrometheus, cfg.MetricExporter)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_NoExporters(t *testing.T) {
	keepGlobals(t)
	cfg := Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone}

	shutdown, err := Init(context.Background(), cfg, prometheus.NewRegistry())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	keepGlobals(t)

	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"}, nil)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{MetricExporter: "statsd"}, prometheus.NewRegistry())
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_StdoutTraces(t *testing.T) {
	keepGlobals(t)
	var buf bytes.Buffer
	cfg := Config{ServiceName: "pairwise-test", TraceExporter: ExporterStdout, Writer: &buf}

	shutdown, err := Init(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("pairwise.test").Start(context.Background(), "compare")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"compare"`)
	assert.Contains(t, buf.String(), "pairwise-test")
}

func TestInit_PrometheusMetrics(t *testing.T) {
	keepGlobals(t)
	reg := prometheus.NewRegistry()

	shutdown, err := Init(context.Background(), Config{MetricExporter: ExporterPrometheus}, reg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	counter, err := otel.Meter("pairwise.test").Int64Counter("test_spawned_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.True(t, containsPrefix(names, "test_spawned"), "gathered: %v", names)
}

func containsPrefix(names []string, prefix string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}
