// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluator runs every unordered pairwise comparison over a list of
// submissions with a bounded number of comparisons in flight.
//
// # Scheduling
//
// Pairs (l, r) with l < r are enumerated in index order. Before each pair
// is dispatched the enumerating goroutine blocks on one of K permits; the
// comparison then runs on its own goroutine and returns the permit when it
// ends. After the last dispatch the evaluator joins on the pool, reporting
// progress at a fixed interval if asked to.
//
// # Failures
//
// A failed or panicking comparison affects only its own pair: the failure
// callback fires once for it and it is left out of the results. Evaluate
// only returns an error for invalid input.
//
// # Usage
//
//	eval, err := evaluator.New(det,
//	    evaluator.WithConcurrency(4),
//	    evaluator.WithFailureHandler(func(err error, left, right string) {
//	        logger.Warn("comparison failed", "left", left, "right", right, "error", err)
//	    }),
//	)
//	result, err := eval.Evaluate(ctx, corpus.Submissions)
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Comparer compares two submissions. Every detector satisfies it.
type Comparer interface {
	Compare(ctx context.Context, left, right similarity.Submission) similarity.Outcome
}

// ComparerFunc adapts a function to Comparer.
type ComparerFunc func(ctx context.Context, left, right similarity.Submission) similarity.Outcome

// Compare calls f(ctx, left, right).
func (f ComparerFunc) Compare(ctx context.Context, left, right similarity.Submission) similarity.Outcome {
	return f(ctx, left, right)
}

// FailureFunc receives per-pair failures. Calls are serialized.
type FailureFunc func(err error, leftID, rightID string)

// Progress is a snapshot of a running batch.
type Progress struct {
	RunID       string
	Total       int
	Dispatched  int
	Completed   int
	Skipped     int
	InFlight    int
	Outstanding int
	Elapsed     time.Duration
}

// ProgressFunc receives periodic progress snapshots.
type ProgressFunc func(Progress)

// =============================================================================
// EVALUATOR
// =============================================================================

// Evaluator runs batches of pairwise comparisons.
//
// Description:
//
//	Holds configuration only. Every Evaluate call builds its own Pool and
//	result collection, so concurrent or repeated runs do not interact.
//
// Thread Safety: Safe for concurrent use.
type Evaluator struct {
	comparer         Comparer
	name             string
	concurrency      int
	onFailure        FailureFunc
	onProgress       ProgressFunc
	progressInterval time.Duration
	logger           *slog.Logger
	metrics          *Metrics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithConcurrency sets K, the maximum number of comparisons in flight.
func WithConcurrency(k int) Option {
	return func(e *Evaluator) {
		e.concurrency = k
	}
}

// WithName labels errors, logs and metrics, usually with the detector ID.
func WithName(name string) Option {
	return func(e *Evaluator) {
		e.name = name
	}
}

// WithFailureHandler registers the per-pair failure callback.
func WithFailureHandler(fn FailureFunc) Option {
	return func(e *Evaluator) {
		e.onFailure = fn
	}
}

// WithProgress reports progress every interval while a batch runs.
// A non-positive interval disables reporting.
func WithProgress(interval time.Duration, fn ProgressFunc) Option {
	return func(e *Evaluator) {
		e.progressInterval = interval
		e.onProgress = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithMetrics records Prometheus metrics for every batch.
func WithMetrics(m *Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// New creates an Evaluator.
//
// Inputs:
//
//	comparer - Runs one comparison. Required.
//	opts - Optional configuration. Concurrency defaults to 1.
//
// Outputs:
//
//	*Evaluator - The configured evaluator.
//	error - ErrInvalidInput for a nil comparer or concurrency < 1.
func New(comparer Comparer, opts ...Option) (*Evaluator, error) {
	if comparer == nil {
		return nil, fmt.Errorf("%w: comparer must not be nil", similarity.ErrInvalidInput)
	}
	e := &Evaluator{
		comparer:    comparer,
		name:        "default",
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency must be >= 1, got %d", similarity.ErrInvalidInput, e.concurrency)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Concurrency returns K.
func (e *Evaluator) Concurrency() int { return e.concurrency }

// Evaluate compares every unordered pair of submissions.
//
// Description:
//
//	Dispatches n(n-1)/2 comparisons with at most K in flight and blocks
//	until all of them have finished. Successful and not-applicable pairs
//	are collected; failures go to the failure callback.
//
//	If ctx ends during dispatch, the remaining pairs are not started.
//	Each of them is reported to the failure callback with an error wrapping
//	ErrSkipped and counted in Stats.Skipped. Comparisons already running
//	receive the cancelled ctx and are still joined before Evaluate returns.
//
// Inputs:
//
//	ctx - Context passed to every comparison.
//	submissions - Ordered submissions with unique, non-empty IDs.
//
// Outputs:
//
//	similarity.BatchResult - IDs from every enumerated pair and all
//	                         collected results. Empty for n < 2.
//	error - ErrInvalidInput for a nil context or bad IDs. Never a per-pair
//	        error.
//
// Thread Safety: Safe for concurrent use.
func (e *Evaluator) Evaluate(ctx context.Context, submissions []similarity.Submission) (similarity.BatchResult, error) {
	if ctx == nil {
		return similarity.BatchResult{}, fmt.Errorf("%w: ctx must not be nil", similarity.ErrInvalidInput)
	}
	if err := validateSubmissions(submissions); err != nil {
		return similarity.BatchResult{}, err
	}

	n := len(submissions)
	total := similarity.PairCount(n)
	result := similarity.BatchResult{
		RunID:   uuid.NewString(),
		IDs:     []string{},
		Results: []similarity.PairwiseResult{},
		Stats:   similarity.BatchStats{Total: total},
	}
	if n < 2 {
		return result, nil
	}

	ctx, span := tracer.Start(ctx, "evaluator.Evaluate",
		trace.WithAttributes(
			attribute.String("evaluator.run_id", result.RunID),
			attribute.String("evaluator.detector", e.name),
			attribute.Int("evaluator.submissions", n),
			attribute.Int("evaluator.pairs", total),
			attribute.Int("evaluator.concurrency", e.concurrency),
		),
	)
	defer span.End()

	logger := e.logger.With(slog.String("run_id", result.RunID), slog.String("detector", e.name))
	logger.Info("Evaluation started",
		slog.Int("submissions", n),
		slog.Int("pairs", total),
		slog.Int("concurrency", e.concurrency),
	)

	pool, err := NewPool(e.concurrency)
	if err != nil {
		return similarity.BatchResult{}, err
	}
	r := &run{
		evaluator: e,
		runID:     result.RunID,
		logger:    logger,
		pool:      pool,
		total:     total,
		start:     time.Now(),
		seen:      make(map[similarity.PairKey]struct{}, total),
		results:   make([]similarity.PairwiseResult, 0, total),
	}
	e.metrics.batchStarted(e.name, total)
	stopProgress := r.watchProgress()

	ids := newIDSet(n)
	for li := 0; li < n; li++ {
		for ri := li + 1; ri < n; ri++ {
			left, right := submissions[li], submissions[ri]
			ids.add(left.ID)
			ids.add(right.ID)

			if err := ctx.Err(); err != nil {
				r.skip(left.ID, right.ID, err)
				continue
			}
			err := pool.Go(ctx, func() {
				r.compare(ctx, left, right)
			})
			if err != nil {
				r.skip(left.ID, right.ID, err)
				continue
			}
			r.dispatched.Add(1)
		}
	}

	pool.Wait()
	stopProgress()

	elapsed := time.Since(r.start)
	e.metrics.batchFinished(e.name, elapsed)

	result.IDs = ids.list
	result.Results = r.results
	result.Stats = similarity.BatchStats{
		Total:         total,
		Dispatched:    int(r.dispatched.Load()),
		Succeeded:     r.succeeded,
		NotApplicable: r.notApplicable,
		Failed:        r.failed,
		Skipped:       int(r.skipped.Load()),
		Duration:      elapsed,
	}

	span.SetAttributes(
		attribute.Int("evaluator.succeeded", result.Stats.Succeeded),
		attribute.Int("evaluator.failed", result.Stats.Failed),
		attribute.Int("evaluator.skipped", result.Stats.Skipped),
	)
	if result.Stats.Failed+result.Stats.Skipped > 0 {
		span.SetStatus(codes.Error, "some comparisons failed")
	}

	logger.Info("Evaluation finished",
		slog.Int("succeeded", result.Stats.Succeeded),
		slog.Int("not_applicable", result.Stats.NotApplicable),
		slog.Int("failed", result.Stats.Failed),
		slog.Int("skipped", result.Stats.Skipped),
		slog.Duration("duration", elapsed),
	)
	return result, nil
}

// =============================================================================
// RUN STATE
// =============================================================================

// run holds the mutable state of one Evaluate call.
type run struct {
	evaluator *Evaluator
	runID     string
	logger    *slog.Logger
	pool      *Pool
	total     int
	start     time.Time

	dispatched atomic.Int64
	completed  atomic.Int64
	skipped    atomic.Int64

	mu            sync.Mutex
	seen          map[similarity.PairKey]struct{}
	results       []similarity.PairwiseResult
	succeeded     int
	notApplicable int
	failed        int

	failMu sync.Mutex
}

// compare runs one pair on a pool goroutine.
func (r *run) compare(ctx context.Context, left, right similarity.Submission) {
	e := r.evaluator
	ctx, span := tracer.Start(ctx, "evaluator.compare",
		trace.WithAttributes(
			attribute.String("pair.left", left.ID),
			attribute.String("pair.right", right.ID),
		),
	)
	defer span.End()

	e.metrics.comparisonStarted(e.name)
	start := time.Now()
	outcome := r.safeCompare(ctx, left, right)
	elapsed := time.Since(start)
	e.metrics.comparisonFinished(e.name, outcome.Kind, elapsed)
	r.completed.Add(1)

	span.SetAttributes(attribute.String("pair.outcome", outcome.Kind.String()))

	res, ok := outcome.Result(left.ID, right.ID)
	if !ok {
		err := outcome.AsError()
		span.RecordError(err)
		span.SetStatus(codes.Error, "comparison failed")

		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		r.fail(left.ID, right.ID, err)
		return
	}

	res.Duration = elapsed
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[res.Key()]; dup {
		r.logger.Warn("Duplicate result ignored",
			slog.String("left", left.ID),
			slog.String("right", right.ID),
		)
		return
	}
	r.seen[res.Key()] = struct{}{}
	r.results = append(r.results, res)
	if res.NotApplicable {
		r.notApplicable++
	} else {
		r.succeeded++
	}
}

// safeCompare converts a detector panic into an Error outcome.
func (r *run) safeCompare(ctx context.Context, left, right similarity.Submission) (outcome similarity.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = similarity.Failure(fmt.Errorf("%w: %v", similarity.ErrPanic, p))
		}
	}()
	return r.evaluator.comparer.Compare(ctx, left, right)
}

// skip accounts for a pair that was never dispatched.
func (r *run) skip(leftID, rightID string, cause error) {
	r.skipped.Add(1)
	r.evaluator.metrics.pairSkipped(r.evaluator.name)
	r.fail(leftID, rightID, fmt.Errorf("%w: %w", similarity.ErrSkipped, cause))
}

// fail wraps err and hands it to the failure callback.
func (r *run) fail(leftID, rightID string, err error) {
	e := r.evaluator
	wrapped := &similarity.ComparisonError{
		Detector: e.name,
		LeftID:   leftID,
		RightID:  rightID,
		Err:      err,
	}
	r.logger.Debug("Comparison failed",
		slog.String("left", leftID),
		slog.String("right", rightID),
		slog.String("error", err.Error()),
	)
	if e.onFailure == nil {
		return
	}
	r.failMu.Lock()
	defer r.failMu.Unlock()
	e.onFailure(wrapped, leftID, rightID)
}

// snapshot builds a Progress from the current counters.
func (r *run) snapshot() Progress {
	completed := int(r.completed.Load())
	skipped := int(r.skipped.Load())
	return Progress{
		RunID:       r.runID,
		Total:       r.total,
		Dispatched:  int(r.dispatched.Load()),
		Completed:   completed,
		Skipped:     skipped,
		InFlight:    int(r.pool.Outstanding()),
		Outstanding: r.total - completed - skipped,
		Elapsed:     time.Since(r.start),
	}
}

// watchProgress starts the progress ticker. The returned func stops it and
// waits for the ticker goroutine to exit.
func (r *run) watchProgress() func() {
	e := r.evaluator
	if e.onProgress == nil || e.progressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(e.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.onProgress(r.snapshot())
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func validateSubmissions(submissions []similarity.Submission) error {
	seen := make(map[string]struct{}, len(submissions))
	for i, s := range submissions {
		if s.ID == "" {
			return fmt.Errorf("%w: submission %d has an empty id", similarity.ErrInvalidInput, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate submission id %q", similarity.ErrInvalidInput, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// idSet records ids in first-seen order.
type idSet struct {
	seen map[string]struct{}
	list []string
}

func newIDSet(capacity int) *idSet {
	return &idSet{
		seen: make(map[string]struct{}, capacity),
		list: make([]string, 0, capacity),
	}
}

func (s *idSet) add(id string) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.list = append(s.list, id)
}
