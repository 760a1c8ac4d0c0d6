// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package similarity

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the similarity packages.
var (
	// ErrInvalidInput indicates a nil context, empty path or similar misuse.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidMatrix indicates a ragged matrix or an out-of-range score.
	ErrInvalidMatrix = errors.New("invalid similarity matrix")

	// ErrNotFinished indicates Complete was called on a running execution.
	ErrNotFinished = errors.New("process is not finished")

	// ErrInterrupted indicates the execution was killed before it finished.
	ErrInterrupted = errors.New("execution interrupted")

	// ErrTimeout indicates the execution did not finish in the allowed time.
	ErrTimeout = errors.New("execution timeout")

	// ErrToolFailed indicates the detector process exited with an error.
	ErrToolFailed = errors.New("detector execution failed")

	// ErrMalformedOutput indicates the detector output could not be parsed.
	ErrMalformedOutput = errors.New("malformed detector output")

	// ErrNotApplicable indicates a detector declined to judge its input,
	// for calls that return a value instead of an Outcome.
	ErrNotApplicable = errors.New("comparison not applicable")

	// ErrProvisioning indicates a missing runtime or detector payload.
	// Fatal for a run: raised before any comparison starts.
	ErrProvisioning = errors.New("detector provisioning failed")

	// ErrNotProvisioned indicates a detector was used before Provision.
	ErrNotProvisioned = errors.New("detector not provisioned")

	// ErrUnknownDetector indicates no detector is registered under an ID.
	ErrUnknownDetector = errors.New("unknown detector")

	// ErrSkipped indicates a pair was never dispatched because the run's
	// context ended first.
	ErrSkipped = errors.New("comparison skipped")

	// ErrPanic indicates a detector panicked during a comparison.
	ErrPanic = errors.New("detector panicked")
)

// =============================================================================
// COMPARISON ERROR
// =============================================================================

// ComparisonError ties a per-pair failure to the pair and detector.
//
// Thread Safety: Immutable after creation.
type ComparisonError struct {
	// Detector is the ID of the detector that ran the comparison.
	Detector string

	// LeftID and RightID identify the pair.
	LeftID  string
	RightID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ComparisonError) Error() string {
	if e.Detector != "" {
		return fmt.Sprintf("%s: compare %s with %s: %v", e.Detector, e.LeftID, e.RightID, e.Err)
	}
	return fmt.Sprintf("compare %s with %s: %v", e.LeftID, e.RightID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ComparisonError) Unwrap() error {
	return e.Err
}

// =============================================================================
// TOOL ERROR
// =============================================================================

// ToolError describes a detector process that exited unsuccessfully.
//
// Thread Safety: Immutable after creation.
type ToolError struct {
	// Tool is the detector ID or command name.
	Tool string

	// ExitCode is the process exit status, or -1 when unknown.
	ExitCode int

	// Err is the underlying error, usually ErrToolFailed.
	Err error

	// Output contains captured stderr, truncated.
	Output string
}

// maxToolOutput bounds the stderr carried by a ToolError.
const maxToolOutput = 2048

// NewToolError creates a ToolError for a process exit.
func NewToolError(tool string, exitCode int, err error) *ToolError {
	return &ToolError{Tool: tool, ExitCode: exitCode, Err: err}
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v (exit code %d)", e.Tool, e.Err, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// WithOutput returns a copy of the error carrying captured stderr.
func (e *ToolError) WithOutput(output string) *ToolError {
	if len(output) > maxToolOutput {
		output = output[:maxToolOutput] + "..."
	}
	return &ToolError{
		Tool:     e.Tool,
		ExitCode: e.ExitCode,
		Err:      e.Err,
		Output:   output,
	}
}

// =============================================================================
// PROVISION ERROR
// =============================================================================

// ProvisionError reports which resource a detector could not set up.
type ProvisionError struct {
	Detector string
	Resource string
	Err      error
}

// NewProvisionError wraps err so that errors.Is(err, ErrProvisioning) holds.
func NewProvisionError(detector, resource string, err error) *ProvisionError {
	return &ProvisionError{Detector: detector, Resource: resource, Err: err}
}

// Error implements the error interface.
func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s: %v: %s: %v", e.Detector, ErrProvisioning, e.Resource, e.Err)
}

// Unwrap exposes both ErrProvisioning and the cause.
func (e *ProvisionError) Unwrap() []error {
	return []error{ErrProvisioning, e.Err}
}
