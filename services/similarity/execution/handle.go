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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// ErrClosed indicates the handle was closed before Complete was called.
var ErrClosed = errors.New("execution handle closed")

// waitDelay bounds how long Wait keeps draining output pipes after the
// process has exited or been killed.
const waitDelay = 2 * time.Second

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle stage of a Handle.
//
//	Spawned -> Running -> Finished -> Completed -> Closed
//	Spawned/Running -> Cancelled (Interrupt)
//	any -> Closed
type State int

const (
	StateSpawned State = iota
	StateRunning
	StateFinished
	StateCompleted
	StateCancelled
	StateClosed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// =============================================================================
// SPEC AND OUTPUT
// =============================================================================

// RawOutput is what a finished process left behind.
type RawOutput struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Duration  time.Duration
	Workspace *Workspace
}

// Completer maps raw process output to an Outcome. Each detector supplies
// its own mapping, including any not-applicable detection.
type Completer interface {
	Complete(raw RawOutput) similarity.Outcome
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(raw RawOutput) similarity.Outcome

// Complete calls f(raw).
func (f CompleterFunc) Complete(raw RawOutput) similarity.Outcome {
	return f(raw)
}

// Spec describes one process to spawn.
type Spec struct {
	// Command is the executable, resolved through PATH when not absolute.
	Command string

	// Args are passed to Command unchanged.
	Args []string

	// Env entries ("KEY=value") are appended to the current environment.
	Env []string

	// Dir is the working directory. Defaults to the workspace root.
	Dir string

	// Workspace is owned by the handle once passed to Spawn, including
	// when Spawn fails. Optional.
	Workspace *Workspace

	// Completer maps the process output to an Outcome. Required.
	Completer Completer

	// Logger receives lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle owns one running detector process and its workspace.
//
// Description:
//
//	A Handle is returned by Spawn with the process already started. The
//	caller polls with IsFinished, blocks with WaitFor or Wait, kills with
//	Interrupt, reads the result with Complete and must always Close it.
//	The process is tied to the handle, not to the context given to Spawn:
//	only Interrupt and Close stop it.
//
// Thread Safety: All methods are safe for concurrent use.
type Handle struct {
	id        string
	command   string
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	workspace *Workspace
	completer Completer
	logger    *slog.Logger
	ctx       context.Context
	span      trace.Span

	stdout *bytes.Buffer
	stderr *bytes.Buffer

	started time.Time
	done    chan struct{}

	mu          sync.Mutex
	state       State
	exitCode    int
	duration    time.Duration
	interrupted bool
	completed   bool
	outcome     similarity.Outcome

	closeOnce sync.Once
	closeErr  error
}

// Spawn starts a process and returns without waiting for it.
//
// Description:
//
//	Starts spec.Command in spec.Dir (or the workspace root) with stdout and
//	stderr captured in memory. The returned handle is in StateRunning.
//
// Inputs:
//
//	ctx - Parent for tracing only. Cancelling it does not stop the process.
//	spec - What to run. spec.Workspace passes to the handle.
//
// Outputs:
//
//	*Handle - The running handle. Caller must Close it.
//	error - Non-nil if the spec is invalid or the process could not start.
//	        spec.Workspace has been removed in that case.
//
// Thread Safety: Safe for concurrent use.
func Spawn(ctx context.Context, spec Spec) (*Handle, error) {
	if ctx == nil {
		_ = spec.Workspace.Close()
		return nil, fmt.Errorf("%w: ctx must not be nil", similarity.ErrInvalidInput)
	}
	if spec.Command == "" {
		_ = spec.Workspace.Close()
		return nil, fmt.Errorf("%w: command must not be empty", similarity.ErrInvalidInput)
	}
	if spec.Completer == nil {
		_ = spec.Workspace.Close()
		return nil, fmt.Errorf("%w: completer must not be nil", similarity.ErrInvalidInput)
	}

	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	spanCtx, span := startExecutionSpan(ctx, id, spec.Command)

	procCtx, cancel := context.WithCancel(context.WithoutCancel(spanCtx))
	cmd := exec.CommandContext(procCtx, spec.Command, spec.Args...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	switch {
	case spec.Dir != "":
		cmd.Dir = spec.Dir
	case spec.Workspace != nil:
		cmd.Dir = spec.Workspace.Root()
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	h := &Handle{
		id:        id,
		command:   spec.Command,
		cmd:       cmd,
		cancel:    cancel,
		workspace: spec.Workspace,
		completer: spec.Completer,
		logger:    logger.With(slog.String("execution_id", id), slog.String("command", spec.Command)),
		ctx:       spanCtx,
		span:      span,
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
		done:      make(chan struct{}),
		state:     StateSpawned,
		exitCode:  -1,
	}
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	h.started = time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		_ = spec.Workspace.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		span.End()
		return nil, similarity.NewToolError(spec.Command, -1, fmt.Errorf("%w: %v", similarity.ErrToolFailed, err))
	}

	h.mu.Lock()
	h.state = StateRunning
	h.mu.Unlock()

	recordSpawn(spanCtx, spec.Command)
	h.logger.Debug("Execution spawned", slog.Int("pid", cmd.Process.Pid))

	go h.wait()
	return h, nil
}

// wait reaps the process and records its exit.
func (h *Handle) wait() {
	err := h.cmd.Wait()
	elapsed := time.Since(h.started)

	h.mu.Lock()
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.duration = elapsed
	if h.state == StateRunning {
		h.state = StateFinished
	}
	interrupted := h.interrupted
	exitCode := h.exitCode
	h.mu.Unlock()

	// Close ends the span once done is closed.
	h.span.SetAttributes(
		attribute.Int("execution.exit_code", exitCode),
		attribute.Bool("execution.interrupted", interrupted),
	)
	recordExit(h.ctx, h.command, elapsed, exitCode, interrupted)
	close(h.done)

	h.logger.Debug("Execution finished",
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", elapsed),
		slog.Bool("interrupted", interrupted),
		slog.Any("wait_error", err),
	)
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Workspace returns the handle's workspace, or nil.
func (h *Handle) Workspace() *Workspace { return h.workspace }

// State returns the current lifecycle stage.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsFinished reports whether the process has exited. Never blocks.
func (h *Handle) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// WaitFor blocks up to timeout for the process to exit.
//
// Outputs:
//
//	bool - True if the process exited within the window.
func (h *Handle) WaitFor(timeout time.Duration) bool {
	if timeout <= 0 {
		return h.IsFinished()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt kills the process and everything it forked. No-op once the
// process has exited.
//
// Thread Safety: Safe for concurrent use.
func (h *Handle) Interrupt() error {
	if h.IsFinished() {
		return nil
	}

	h.mu.Lock()
	if h.state == StateSpawned || h.state == StateRunning {
		h.state = StateCancelled
		h.interrupted = true
	}
	h.mu.Unlock()

	h.kill()
	h.logger.Warn("Execution interrupted")
	return nil
}

// kill stops the process group. The leader may already be reaped while a
// forked child still holds the output pipes, so the group is signalled
// directly until wait has returned.
func (h *Handle) kill() {
	h.cancel()
	if h.IsFinished() {
		return
	}
	if err := killProcessGroup(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Warn("Process group kill failed", slog.String("error", err.Error()))
	}
}

// Complete maps the finished process's output to an Outcome.
//
// Description:
//
//	The Completer runs once; later calls return the same Outcome. An
//	interrupted handle completes to an Error wrapping ErrInterrupted
//	without consulting the Completer.
//
// Outputs:
//
//	similarity.Outcome - The tagged result.
//	error - ErrNotFinished while the process runs. ErrClosed if the handle
//	        was closed before any Complete call.
//
// Thread Safety: Safe for concurrent use.
func (h *Handle) Complete() (similarity.Outcome, error) {
	if !h.IsFinished() {
		return similarity.Outcome{}, similarity.ErrNotFinished
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.completed {
		return h.outcome, nil
	}
	if h.state == StateClosed {
		return similarity.Outcome{}, ErrClosed
	}

	if h.interrupted {
		h.outcome = similarity.Failure(similarity.ErrInterrupted)
	} else {
		h.outcome = h.completer.Complete(RawOutput{
			ExitCode:  h.exitCode,
			Stdout:    h.stdout.Bytes(),
			Stderr:    h.stderr.Bytes(),
			Duration:  h.duration,
			Workspace: h.workspace,
		})
		h.state = StateCompleted
	}
	h.completed = true

	recordComplete(h.ctx, h.command, h.outcome.Kind.String())
	return h.outcome, nil
}

// Close kills the process if it is still running, waits for it to exit and
// removes the workspace and captured output.
//
// Description:
//
//	Valid in every state. Only the first call does any work; later calls
//	return the first call's error.
//
// Thread Safety: Safe for concurrent use.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.kill()
		<-h.done

		h.mu.Lock()
		h.state = StateClosed
		h.stdout = &bytes.Buffer{}
		h.stderr = &bytes.Buffer{}
		h.mu.Unlock()

		h.closeErr = h.workspace.Close()
		if h.closeErr != nil {
			h.span.RecordError(h.closeErr)
			h.logger.Warn("Workspace cleanup failed", slog.String("error", h.closeErr.Error()))
		}
		h.span.End()
	})
	return h.closeErr
}

// =============================================================================
// SYNCHRONOUS RUN
// =============================================================================

// Run spawns spec, waits for it, completes and closes the handle.
//
// Description:
//
//	There is no timeout beyond ctx. If ctx ends first the process is
//	interrupted and the outcome is an Error wrapping ctx.Err(). Spawn
//	failures are also returned as Error outcomes.
//
// Thread Safety: Safe for concurrent use.
func Run(ctx context.Context, spec Spec) similarity.Outcome {
	h, err := Spawn(ctx, spec)
	if err != nil {
		return similarity.Failure(err)
	}
	defer h.Close()

	if err := h.Wait(ctx); err != nil {
		_ = h.Interrupt()
		return similarity.Failure(err)
	}

	outcome, err := h.Complete()
	if err != nil {
		return similarity.Failure(err)
	}
	return outcome
}
