// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/pairwise/services/similarity"
	"github.com/AleutianAI/pairwise/services/similarity/assignment"
	"github.com/AleutianAI/pairwise/services/similarity/corpus"
	"github.com/AleutianAI/pairwise/services/similarity/execution"
)

// Tool is a Detector backed by an external program.
//
// Description:
//
//	Each comparison copies both submissions into a fresh workspace, runs
//	the configured command with placeholders expanded and parses stdout
//	according to the configured OutputFormat. Matrix output is reduced to
//	a pair score by optimal assignment.
//
// Thread Safety: Safe for concurrent use once Provision has returned.
type Tool struct {
	cfg           ToolConfig
	extensions    []string
	workspaceRoot string
	logger        *slog.Logger

	mu          sync.RWMutex
	provisioned bool
	executable  string
	payloadDir  string
	removeDir   string
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ToolOption {
	return func(t *Tool) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithWorkspaceRoot sets where per-pair workspaces are created.
// Defaults to os.TempDir().
func WithWorkspaceRoot(dir string) ToolOption {
	return func(t *Tool) {
		t.workspaceRoot = dir
	}
}

// WithExtensions sets the source extensions used when the tool's own
// config lists none.
func WithExtensions(extensions []string) ToolOption {
	return func(t *Tool) {
		if len(t.cfg.Extensions) == 0 {
			t.extensions = corpus.NormalizeExtensions(extensions)
		}
	}
}

// NewTool validates cfg and returns an unprovisioned tool.
func NewTool(cfg ToolConfig, opts ...ToolOption) (*Tool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	t := &Tool{
		cfg:        cfg,
		extensions: corpus.NormalizeExtensions(cfg.Extensions),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("detector", cfg.ID))
	return t, nil
}

// ID implements Detector.
func (t *Tool) ID() string { return t.cfg.ID }

// Config returns the tool's effective configuration.
func (t *Tool) Config() ToolConfig { return t.cfg }

// =============================================================================
// PROVISIONING
// =============================================================================

// Provision resolves the runtime and copies payloads into dir/ID.
//
// Description:
//
//	An empty dir provisions into a new temporary directory that Release
//	removes. Provisioning an already provisioned tool is a no-op.
//
// Outputs:
//
//	error - A *similarity.ProvisionError (errors.Is ErrProvisioning) naming
//	        the runtime or payload that is missing.
func (t *Tool) Provision(ctx context.Context, dir string) error {
	if ctx == nil {
		return fmt.Errorf("%w: ctx must not be nil", similarity.ErrInvalidInput)
	}
	_, span := tracer.Start(ctx, "detector.Tool.Provision",
		trace.WithAttributes(attribute.String("detector.id", t.cfg.ID)))
	defer span.End()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.provisioned {
		return nil
	}

	payloadDir, removeDir, err := t.payloadLocation(dir)
	if err != nil {
		span.RecordError(err)
		return similarity.NewProvisionError(t.cfg.ID, "payload directory", err)
	}
	cleanup := func() { _ = os.RemoveAll(removeDir) }

	for _, p := range t.cfg.Payloads {
		if err := copyPayload(p, payloadDir); err != nil {
			cleanup()
			span.RecordError(err)
			span.SetStatus(codes.Error, "payload missing")
			return similarity.NewProvisionError(t.cfg.ID, p, err)
		}
	}

	command := newExpander("", "", "", payloadDir).expand(t.cfg.Command)
	executable, err := resolveExecutable(t.cfg.Runtime, command)
	if err != nil {
		cleanup()
		span.RecordError(err)
		span.SetStatus(codes.Error, "runtime missing")
		return similarity.NewProvisionError(t.cfg.ID, string(t.cfg.Runtime)+" runtime", err)
	}

	t.executable = executable
	t.payloadDir = payloadDir
	t.removeDir = removeDir
	t.provisioned = true
	t.logger.Info("Detector provisioned",
		slog.String("executable", executable),
		slog.String("payload_dir", payloadDir),
		slog.Int("payloads", len(t.cfg.Payloads)),
	)
	return nil
}

// payloadLocation returns the directory payloads go into and the directory
// Release must remove.
func (t *Tool) payloadLocation(dir string) (string, string, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "pairwise-detector-")
		if err != nil {
			return "", "", err
		}
		payloadDir := filepath.Join(tmp, t.cfg.ID)
		if err := os.MkdirAll(payloadDir, 0o750); err != nil {
			_ = os.RemoveAll(tmp)
			return "", "", err
		}
		return payloadDir, tmp, nil
	}
	payloadDir := filepath.Join(dir, t.cfg.ID)
	if err := os.MkdirAll(payloadDir, 0o750); err != nil {
		return "", "", err
	}
	return payloadDir, payloadDir, nil
}

// Release removes the payload directory. Idempotent.
func (t *Tool) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.provisioned {
		return nil
	}
	t.provisioned = false
	if err := os.RemoveAll(t.removeDir); err != nil {
		return fmt.Errorf("removing payloads of %s: %w", t.cfg.ID, err)
	}
	t.logger.Debug("Detector released")
	return nil
}

// =============================================================================
// COMPARISON
// =============================================================================

// invocation is everything needed to run the tool on one pair.
type invocation struct {
	leftFiles  []string
	rightFiles []string
	empty      bool
	spec       execution.Spec
}

// prepare lists both sides and, unless one is empty and skipEmpty is set,
// builds the workspace and process spec. The completer is built from the
// file lists.
func (t *Tool) prepare(left, right similarity.Submission, args []string, skipEmpty bool,
	completer func(leftFiles, rightFiles []string) execution.Completer) (invocation, error) {

	t.mu.RLock()
	provisioned, executable, payloadDir := t.provisioned, t.executable, t.payloadDir
	t.mu.RUnlock()
	if !provisioned {
		return invocation{}, fmt.Errorf("%w: %s", similarity.ErrNotProvisioned, t.cfg.ID)
	}

	leftFiles, err := t.sourceFiles(left)
	if err != nil {
		return invocation{}, err
	}
	rightFiles, err := t.sourceFiles(right)
	if err != nil {
		return invocation{}, err
	}
	inv := invocation{leftFiles: leftFiles, rightFiles: rightFiles}
	if len(leftFiles) == 0 || len(rightFiles) == 0 {
		inv.empty = true
		if skipEmpty {
			return inv, nil
		}
	}

	ws, err := execution.NewWorkspace(t.workspaceRoot, left.Path, right.Path)
	if err != nil {
		return invocation{}, err
	}
	x := newExpander(ws.Left(), ws.Right(), ws.Root(), payloadDir)
	inv.spec = execution.Spec{
		Command:   executable,
		Args:      x.expandAll(args),
		Env:       x.env(t.cfg.Env),
		Workspace: ws,
		Completer: completer(leftFiles, rightFiles),
		Logger:    t.logger,
	}
	return inv, nil
}

// sourceFiles returns the submission's files under the tool's extensions.
func (t *Tool) sourceFiles(s similarity.Submission) ([]string, error) {
	if s.Path == "" {
		return nil, fmt.Errorf("%w: submission %q has no path", similarity.ErrInvalidInput, s.ID)
	}
	if len(s.Files) > 0 && len(t.cfg.Extensions) == 0 {
		return s.Files, nil
	}
	return corpus.ListSourceFiles(s.Path, t.extensions)
}

// Compare implements Detector.
//
// Description:
//
//	Returns Success(0) without running anything when either side has no
//	source files. Otherwise runs the tool and waits for it; ctx ending
//	interrupts the process.
func (t *Tool) Compare(ctx context.Context, left, right similarity.Submission) similarity.Outcome {
	if ctx == nil {
		return similarity.Failure(fmt.Errorf("%w: ctx must not be nil", similarity.ErrInvalidInput))
	}
	ctx, span := tracer.Start(ctx, "detector.Tool.Compare",
		trace.WithAttributes(
			attribute.String("detector.id", t.cfg.ID),
			attribute.String("pair.left", left.ID),
			attribute.String("pair.right", right.ID),
		))
	defer span.End()

	inv, err := t.prepare(left, right, t.cfg.Args, true, t.completer)
	if err != nil {
		span.RecordError(err)
		return similarity.Failure(err)
	}
	if inv.empty {
		span.SetAttributes(attribute.Bool("pair.empty", true))
		return similarity.Success(similarity.MinScore)
	}

	outcome := execution.Run(ctx, inv.spec)
	span.SetAttributes(attribute.String("outcome", outcome.Kind.String()))
	if err := outcome.AsError(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "comparison failed")
	}
	return outcome
}

// CompareFiles implements Detector. Only matrix tools can report file pairs.
func (t *Tool) CompareFiles(ctx context.Context, left, right similarity.Submission) (similarity.SimilarityMatrix, error) {
	if ctx == nil {
		return similarity.SimilarityMatrix{}, fmt.Errorf("%w: ctx must not be nil", similarity.ErrInvalidInput)
	}
	if t.cfg.Output != OutputMatrix {
		return similarity.SimilarityMatrix{}, fmt.Errorf("%w: %s reports %s output, not file pairs",
			similarity.ErrInvalidInput, t.cfg.ID, t.cfg.Output)
	}
	ctx, span := tracer.Start(ctx, "detector.Tool.CompareFiles",
		trace.WithAttributes(attribute.String("detector.id", t.cfg.ID)))
	defer span.End()

	args := t.cfg.FileArgs
	if len(args) == 0 {
		args = t.cfg.Args
	}

	var matrix similarity.SimilarityMatrix
	inv, err := t.prepare(left, right, args, true, func(leftFiles, rightFiles []string) execution.Completer {
		return execution.CompleterFunc(func(raw execution.RawOutput) similarity.Outcome {
			if o, done := t.screen(raw); done {
				return o
			}
			m, err := ParseMatrix(raw.Stdout, t.cfg.Separator, t.cfg.Scale, raw.Workspace.Root(), leftFiles, rightFiles)
			if err != nil {
				return similarity.Failure(err)
			}
			matrix = m
			return similarity.Success(similarity.MinScore)
		})
	})
	if err != nil {
		return similarity.SimilarityMatrix{}, err
	}
	if inv.empty {
		return similarity.NewSimilarityMatrix(inv.leftFiles, inv.rightFiles), nil
	}

	outcome := execution.Run(ctx, inv.spec)
	switch outcome.Kind {
	case similarity.OutcomeSuccess:
		return matrix, nil
	case similarity.OutcomeNotApplicable:
		return similarity.SimilarityMatrix{}, fmt.Errorf("%w: %s", similarity.ErrNotApplicable, outcome.Reason)
	default:
		span.RecordError(outcome.AsError())
		return similarity.SimilarityMatrix{}, outcome.AsError()
	}
}

// SpawnAsync implements Detector. The tool runs even when a side has no
// source files; its own output decides the score.
func (t *Tool) SpawnAsync(ctx context.Context, left, right similarity.Submission) (*execution.Handle, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", similarity.ErrInvalidInput)
	}
	inv, err := t.prepare(left, right, t.cfg.Args, false, t.completer)
	if err != nil {
		return nil, err
	}
	return execution.Spawn(ctx, inv.spec)
}

// completer maps raw output to an Outcome for Compare and SpawnAsync.
func (t *Tool) completer(leftFiles, rightFiles []string) execution.Completer {
	return execution.CompleterFunc(func(raw execution.RawOutput) similarity.Outcome {
		if o, done := t.screen(raw); done {
			return o
		}
		switch t.cfg.Output {
		case OutputMatrix:
			m, err := ParseMatrix(raw.Stdout, t.cfg.Separator, t.cfg.Scale, raw.Workspace.Root(), leftFiles, rightFiles)
			if err != nil {
				return similarity.Failure(err)
			}
			return assignment.Outcome(m)
		default:
			score, err := ParseScore(raw.Stdout, t.cfg.Separator, t.cfg.Scale)
			if err != nil {
				return similarity.Failure(err)
			}
			return similarity.Success(score)
		}
	})
}

// screen handles not-applicable markers and failed exits. done is false
// when the output should be parsed.
func (t *Tool) screen(raw execution.RawOutput) (similarity.Outcome, bool) {
	if marker, ok := t.notApplicable(raw); ok {
		return similarity.NotApplicable(fmt.Sprintf("%s: output contains %q", t.cfg.ID, marker)), true
	}
	if raw.ExitCode != 0 {
		err := similarity.NewToolError(t.cfg.ID, raw.ExitCode, similarity.ErrToolFailed).
			WithOutput(strings.TrimSpace(string(raw.Stderr)))
		return similarity.Failure(err), true
	}
	return similarity.Outcome{}, false
}

func (t *Tool) notApplicable(raw execution.RawOutput) (string, bool) {
	for _, marker := range t.cfg.NotApplicable {
		if strings.Contains(string(raw.Stdout), marker) || strings.Contains(string(raw.Stderr), marker) {
			return marker, true
		}
	}
	return "", false
}
