// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detector defines the Detector interface and its backends.
//
// A Detector scores how similar two submissions are. The evaluator only
// needs Compare; the rest of the interface covers setup (Provision,
// Release), file-level reports (CompareFiles) and the asynchronous
// lifecycle (SpawnAsync) used with a per-pair timeout.
//
// The only backend is Tool, which runs a configured external program in a
// private workspace and parses its output. New backends implement Detector
// and need no change to the evaluator, the execution lifecycle or the
// assignment aggregator.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/pairwise/services/similarity"
	"github.com/AleutianAI/pairwise/services/similarity/execution"
)

var tracer = otel.Tracer("pairwise.detector")

// Detector compares two submissions.
//
// Thread Safety: Implementations must allow concurrent Compare,
// CompareFiles and SpawnAsync calls after Provision returns.
type Detector interface {
	// ID is the unique, stable name of the detector.
	ID() string

	// Provision makes runtimes and payloads available under dir. It must
	// succeed before any comparison. Failures wrap similarity.ErrProvisioning.
	Provision(ctx context.Context, dir string) error

	// Release removes whatever Provision installed. Idempotent.
	Release() error

	// Compare runs the detector to completion on one pair.
	Compare(ctx context.Context, left, right similarity.Submission) similarity.Outcome

	// CompareFiles returns the per-file similarity matrix for one pair.
	CompareFiles(ctx context.Context, left, right similarity.Submission) (similarity.SimilarityMatrix, error)

	// SpawnAsync starts a comparison and returns its handle immediately.
	SpawnAsync(ctx context.Context, left, right similarity.Submission) (*execution.Handle, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds detectors by ID.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
}

// NewRegistry returns a registry holding the given detectors.
func NewRegistry(detectors ...Detector) (*Registry, error) {
	r := &Registry{detectors: make(map[string]Detector, len(detectors))}
	for _, d := range detectors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FromConfigs builds a Tool per config and registers each one.
func FromConfigs(configs []ToolConfig, opts ...ToolOption) (*Registry, error) {
	r := &Registry{detectors: make(map[string]Detector, len(configs))}
	for _, cfg := range configs {
		tool, err := NewTool(cfg, opts...)
		if err != nil {
			return nil, err
		}
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d. IDs must be non-empty and unique.
func (r *Registry) Register(d Detector) error {
	if d == nil {
		return fmt.Errorf("%w: detector must not be nil", similarity.ErrInvalidInput)
	}
	id := d.ID()
	if id == "" {
		return fmt.Errorf("%w: detector id must not be empty", similarity.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.detectors[id]; exists {
		return fmt.Errorf("%w: detector %q registered twice", similarity.ErrInvalidInput, id)
	}
	r.detectors[id] = d
	return nil
}

// Get returns the detector registered under id.
func (r *Registry) Get(id string) (Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", similarity.ErrUnknownDetector, id)
	}
	return d, nil
}

// IDs returns every registered ID, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.detectors))
	for id := range r.detectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Select returns the detectors named by ids, or all of them in ID order
// when ids is empty.
func (r *Registry) Select(ids ...string) ([]Detector, error) {
	if len(ids) == 0 {
		ids = r.IDs()
	}
	out := make([]Detector, 0, len(ids))
	for _, id := range ids {
		d, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ProvisionAll provisions every detector in order. On the first failure the
// detectors already provisioned are released and the failure is returned.
func ProvisionAll(ctx context.Context, dir string, detectors []Detector, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for i, d := range detectors {
		if err := d.Provision(ctx, dir); err != nil {
			if rerr := ReleaseAll(detectors[:i]); rerr != nil {
				logger.Warn("Release after failed provisioning", slog.String("error", rerr.Error()))
			}
			return err
		}
		logger.Debug("Detector provisioned", slog.String("detector", d.ID()))
	}
	return nil
}

// ReleaseAll releases every detector and joins the errors.
func ReleaseAll(detectors []Detector) error {
	var errs []error
	for _, d := range detectors {
		if err := d.Release(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.ID(), err))
		}
	}
	return errors.Join(errs...)
}
