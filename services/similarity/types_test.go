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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// PairCount Tests
// =============================================================================

func TestPairCount(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{-1, 0},
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 3},
		{5, 10},
		{40, 780},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PairCount(tt.n), "n=%d", tt.n)
	}
}

// =============================================================================
// SimilarityMatrix Tests
// =============================================================================

func TestNewSimilarityMatrix_Zeroed(t *testing.T) {
	m := NewSimilarityMatrix([]string{"a.java", "b.java"}, []string{"x.java", "y.java", "z.java"})

	assert.Equal(t, 2, m.Rows())
	assert.Equal(t, 3, m.Cols())
	assert.False(t, m.Empty())
	for _, row := range m.Scores {
		assert.Equal(t, []float64{0, 0, 0}, row)
	}
	require.NoError(t, m.Validate())
}

func TestSimilarityMatrix_EmptyDimensions(t *testing.T) {
	noLeft := NewSimilarityMatrix(nil, []string{"x.java"})
	assert.True(t, noLeft.Empty())
	assert.Equal(t, 1, noLeft.Cols())

	noRight := NewSimilarityMatrix([]string{"a.java"}, nil)
	assert.True(t, noRight.Empty())
	assert.Equal(t, 0, noRight.Cols())
}

func TestSimilarityMatrix_SetKeepsMaximum(t *testing.T) {
	m := NewSimilarityMatrix([]string{"a"}, []string{"b"})
	m.Set(0, 0, 40)
	m.Set(0, 0, 25)
	m.Set(0, 0, 70)

	assert.Equal(t, 70.0, m.Scores[0][0])
}

func TestSimilarityMatrix_Validate(t *testing.T) {
	tests := []struct {
		name   string
		matrix SimilarityMatrix
	}{
		{"ragged", SimilarityMatrix{Scores: [][]float64{{1, 2}, {3}}}},
		{"negative", SimilarityMatrix{Scores: [][]float64{{-0.5}}}},
		{"above max", SimilarityMatrix{Scores: [][]float64{{100.01}}}},
		{"nan", SimilarityMatrix{Scores: [][]float64{{math.NaN()}}}},
		{"left label mismatch", SimilarityMatrix{LeftFiles: []string{"a", "b"}, Scores: [][]float64{{1}}}},
		{"right label mismatch", SimilarityMatrix{RightFiles: []string{"x", "y"}, Scores: [][]float64{{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.matrix.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMatrix)
		})
	}
}

// =============================================================================
// Outcome Tests
// =============================================================================

func TestOutcome_Success(t *testing.T) {
	o := Success(42.5, Match{Row: 0, Col: 1, Score: 42.5})

	assert.True(t, o.IsSuccess())
	assert.NoError(t, o.AsError())
	assert.Equal(t, "success(42.50)", o.String())

	r, ok := o.Result("alice", "bob")
	require.True(t, ok)
	assert.Equal(t, "alice", r.LeftID)
	assert.Equal(t, "bob", r.RightID)
	assert.Equal(t, 42.5, r.Score)
	assert.False(t, r.NotApplicable)
	assert.Len(t, r.Matches, 1)
}

func TestOutcome_SuccessOutOfRangeIsFailure(t *testing.T) {
	o := Success(140)

	assert.Equal(t, OutcomeError, o.Kind)
	assert.ErrorIs(t, o.AsError(), ErrMalformedOutput)
}

func TestOutcome_NotApplicable(t *testing.T) {
	o := NotApplicable("not enough valid submissions")

	assert.True(t, o.IsNotApplicable())
	assert.NoError(t, o.AsError())

	r, ok := o.Result("a", "b")
	require.True(t, ok)
	assert.True(t, r.NotApplicable)
	assert.Equal(t, NotApplicableScore, r.Score)
	assert.Equal(t, "not enough valid submissions", r.Reason)
}

func TestOutcome_Failure(t *testing.T) {
	cause := errors.New("boom")
	o := Failure(cause)

	assert.Equal(t, OutcomeError, o.Kind)
	assert.ErrorIs(t, o.AsError(), cause)

	_, ok := o.Result("a", "b")
	assert.False(t, ok)
}

func TestOutcome_ZeroValueIsFailure(t *testing.T) {
	var o Outcome
	assert.ErrorIs(t, o.AsError(), ErrToolFailed)
	assert.ErrorIs(t, Failure(nil).AsError(), ErrToolFailed)
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "not_applicable", OutcomeNotApplicable.String())
	assert.Equal(t, "error", OutcomeError.String())
	assert.Equal(t, "unknown", OutcomeKind(9).String())
}

// =============================================================================
// Error Type Tests
// =============================================================================

func TestComparisonError_Unwrap(t *testing.T) {
	err := &ComparisonError{Detector: "token-tiling", LeftID: "a", RightID: "b", Err: ErrToolFailed}

	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Contains(t, err.Error(), "token-tiling")
	assert.Contains(t, err.Error(), "compare a with b")
}

func TestToolError_WithOutputTruncates(t *testing.T) {
	long := make([]byte, maxToolOutput+100)
	for i := range long {
		long[i] = 'x'
	}
	err := NewToolError("sim", 3, ErrToolFailed).WithOutput(string(long))

	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Equal(t, 3, err.ExitCode)
	assert.Len(t, err.Output, maxToolOutput+3)
}

func TestProvisionError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("no such file")
	err := NewProvisionError("jplag", "jplag.jar", cause)

	assert.ErrorIs(t, err, ErrProvisioning)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "jplag.jar")
}

func TestCorpus_IDs(t *testing.T) {
	c := Corpus{Submissions: []Submission{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	assert.Equal(t, []string{"a", "b", "c"}, c.IDs())
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden(".git"))
	assert.True(t, IsHidden(".DS_Store"))
	assert.False(t, IsHidden("Main.java"))
	assert.False(t, IsHidden("."))
	assert.False(t, IsHidden(".."))
}
