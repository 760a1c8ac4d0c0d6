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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// scoreCompleter parses stdout as a float and counts its invocations.
type scoreCompleter struct {
	calls atomic.Int32
}

func (c *scoreCompleter) Complete(raw RawOutput) similarity.Outcome {
	c.calls.Add(1)
	if raw.ExitCode != 0 {
		return similarity.Failure(similarity.NewToolError("sh", raw.ExitCode, similarity.ErrToolFailed).
			WithOutput(string(raw.Stderr)))
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(string(raw.Stdout)), 64)
	if err != nil {
		return similarity.Failure(similarity.ErrMalformedOutput)
	}
	return similarity.Success(score)
}

func shell(script string, completer Completer) Spec {
	return Spec{Command: "sh", Args: []string{"-c", script}, Completer: completer}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestHandle_CompleteBeforeFinishFails(t *testing.T) {
	completer := &scoreCompleter{}
	h, err := Spawn(context.Background(), shell("sleep 30", completer))
	require.NoError(t, err)

	assert.False(t, h.IsFinished())
	assert.Equal(t, StateRunning, h.State())

	_, err = h.Complete()
	assert.ErrorIs(t, err, similarity.ErrNotFinished)
	assert.Equal(t, int32(0), completer.calls.Load())

	start := time.Now()
	require.NoError(t, h.Close())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NoError(t, h.Close(), "second Close must be a no-op")
	assert.Equal(t, StateClosed, h.State())
	assert.True(t, h.IsFinished())
}

func TestHandle_SuccessfulCompletion(t *testing.T) {
	completer := &scoreCompleter{}
	h, err := Spawn(context.Background(), shell("echo 42.5", completer))
	require.NoError(t, err)
	defer h.Close()

	require.True(t, h.WaitFor(10*time.Second))
	assert.Equal(t, StateFinished, h.State())

	outcome, err := h.Complete()
	require.NoError(t, err)
	assert.True(t, outcome.IsSuccess())
	assert.Equal(t, 42.5, outcome.Score)
	assert.Equal(t, StateCompleted, h.State())

	again, err := h.Complete()
	require.NoError(t, err)
	assert.Equal(t, outcome, again)
	assert.Equal(t, int32(1), completer.calls.Load(), "output is inspected exactly once")
}

func TestHandle_NonZeroExitIsError(t *testing.T) {
	h, err := Spawn(context.Background(), shell("echo broken >&2; exit 3", &scoreCompleter{}))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Wait(context.Background()))
	outcome, err := h.Complete()
	require.NoError(t, err)

	assert.Equal(t, similarity.OutcomeError, outcome.Kind)
	var toolErr *similarity.ToolError
	require.ErrorAs(t, outcome.AsError(), &toolErr)
	assert.Equal(t, 3, toolErr.ExitCode)
	assert.Contains(t, toolErr.Output, "broken")
}

func TestHandle_Interrupt(t *testing.T) {
	completer := &scoreCompleter{}
	h, err := Spawn(context.Background(), shell("sleep 30", completer))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Interrupt())
	assert.Equal(t, StateCancelled, h.State())
	require.True(t, h.WaitFor(10*time.Second))

	outcome, err := h.Complete()
	require.NoError(t, err)
	assert.ErrorIs(t, outcome.AsError(), similarity.ErrInterrupted)
	assert.Equal(t, int32(0), completer.calls.Load())
	assert.Equal(t, StateCancelled, h.State())
}

func TestHandle_InterruptAfterFinishIsNoop(t *testing.T) {
	h, err := Spawn(context.Background(), shell("echo 7", &scoreCompleter{}))
	require.NoError(t, err)
	defer h.Close()

	require.True(t, h.WaitFor(10*time.Second))
	require.NoError(t, h.Interrupt())
	assert.Equal(t, StateFinished, h.State())

	outcome, err := h.Complete()
	require.NoError(t, err)
	assert.Equal(t, 7.0, outcome.Score)
}

func TestHandle_WaitForTimesOut(t *testing.T) {
	h, err := Spawn(context.Background(), shell("sleep 30", &scoreCompleter{}))
	require.NoError(t, err)
	defer h.Close()

	assert.False(t, h.WaitFor(50*time.Millisecond))
	assert.False(t, h.WaitFor(0))
}

func TestHandle_WaitHonorsContext(t *testing.T) {
	h, err := Spawn(context.Background(), shell("sleep 30", &scoreCompleter{}))
	require.NoError(t, err)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
	assert.False(t, h.IsFinished(), "cancelling the wait context must not stop the process")
}

func TestHandle_SpawnContextDoesNotOwnProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := Spawn(ctx, shell("sleep 30", &scoreCompleter{}))
	require.NoError(t, err)
	defer h.Close()

	cancel()
	assert.False(t, h.WaitFor(100*time.Millisecond))
}

func TestHandle_CompleteAfterCloseFails(t *testing.T) {
	h, err := Spawn(context.Background(), shell("echo 1", &scoreCompleter{}))
	require.NoError(t, err)

	require.NoError(t, h.Close())
	_, err = h.Complete()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHandle_ConcurrentClose(t *testing.T) {
	h, err := Spawn(context.Background(), shell("sleep 30", &scoreCompleter{}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Close())
		}()
	}
	wg.Wait()
	assert.Equal(t, StateClosed, h.State())
}

func TestHandle_SpanCarriesExitBeforeClose(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(sdktrace.NewTracerProvider()) })

	h, err := Spawn(context.Background(), shell("exit 3", &scoreCompleter{}))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	var attrs map[attribute.Key]attribute.Value
	for _, span := range recorder.Ended() {
		if span.Name() != "execution.Handle" {
			continue
		}
		attrs = make(map[attribute.Key]attribute.Value)
		for _, kv := range span.Attributes() {
			attrs[kv.Key] = kv.Value
		}
		if attrs["execution.id"].AsString() == h.ID() {
			break
		}
		attrs = nil
	}
	require.NotNil(t, attrs, "span for handle %s not recorded", h.ID())
	assert.Equal(t, int64(3), attrs["execution.exit_code"].AsInt64())
	assert.False(t, attrs["execution.interrupted"].AsBool())
}

func TestHandle_EnvIsPassed(t *testing.T) {
	spec := shell(`echo "$THRESHOLD"`, &scoreCompleter{})
	spec.Env = []string{"THRESHOLD=12"}

	outcome := Run(context.Background(), spec)

	require.True(t, outcome.IsSuccess(), outcome.String())
	assert.Equal(t, 12.0, outcome.Score)
}

func TestHandle_IDsAreUnique(t *testing.T) {
	a, err := Spawn(context.Background(), shell("true", &scoreCompleter{}))
	require.NoError(t, err)
	defer a.Close()
	b, err := Spawn(context.Background(), shell("true", &scoreCompleter{}))
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.ID(), b.ID())
}

// =============================================================================
// Workspace Ownership Tests
// =============================================================================

func TestHandle_CloseRemovesWorkspace(t *testing.T) {
	left, right := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(left, "a.txt"), []byte("64\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(right, "b.txt"), []byte("0\n"), 0o644))

	ws, err := NewWorkspace(t.TempDir(), left, right)
	require.NoError(t, err)

	spec := shell("cat lhs/a.txt", &scoreCompleter{})
	spec.Workspace = ws
	h, err := Spawn(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, ws, h.Workspace())

	require.True(t, h.WaitFor(10*time.Second))
	outcome, err := h.Complete()
	require.NoError(t, err)
	assert.Equal(t, 64.0, outcome.Score)

	require.NoError(t, h.Close())
	_, err = os.Stat(ws.Root())
	assert.True(t, os.IsNotExist(err))
}

func TestSpawn_StartFailureReleasesWorkspace(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), t.TempDir(), t.TempDir())
	require.NoError(t, err)

	_, err = Spawn(context.Background(), Spec{
		Command:   filepath.Join(t.TempDir(), "missing-binary"),
		Workspace: ws,
		Completer: &scoreCompleter{},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, similarity.ErrToolFailed)
	_, statErr := os.Stat(ws.Root())
	assert.True(t, os.IsNotExist(statErr))
}

func TestSpawn_InvalidSpec(t *testing.T) {
	_, err := Spawn(context.Background(), Spec{Completer: &scoreCompleter{}})
	assert.ErrorIs(t, err, similarity.ErrInvalidInput)

	_, err = Spawn(context.Background(), Spec{Command: "true"})
	assert.ErrorIs(t, err, similarity.ErrInvalidInput)

	//nolint:staticcheck // nil context is the case under test
	_, err = Spawn(nil, Spec{Command: "true", Completer: &scoreCompleter{}})
	assert.ErrorIs(t, err, similarity.ErrInvalidInput)
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_Success(t *testing.T) {
	outcome := Run(context.Background(), shell("echo 99", &scoreCompleter{}))
	assert.Equal(t, 99.0, outcome.Score)
}

func TestRun_ContextEndsFirst(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome := Run(ctx, shell("sleep 30", &scoreCompleter{}))

	assert.ErrorIs(t, outcome.AsError(), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_SpawnFailureIsOutcome(t *testing.T) {
	outcome := Run(context.Background(), Spec{Command: "", Completer: &scoreCompleter{}})
	assert.ErrorIs(t, outcome.AsError(), similarity.ErrInvalidInput)
}

func TestState_String(t *testing.T) {
	names := map[State]string{
		StateSpawned:   "spawned",
		StateRunning:   "running",
		StateFinished:  "finished",
		StateCompleted: "completed",
		StateCancelled: "cancelled",
		StateClosed:    "closed",
		State(42):      "unknown",
	}
	for state, want := range names {
		assert.Equal(t, want, state.String())
	}
}
