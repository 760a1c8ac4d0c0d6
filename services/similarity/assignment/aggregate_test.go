// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assignment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// =============================================================================
// Aggregate Tests
// =============================================================================

func TestAggregate_DiagonalIsPerfect(t *testing.T) {
	m := similarity.SimilarityMatrix{
		LeftFiles:  []string{"A.java", "B.java"},
		RightFiles: []string{"A.java", "B.java"},
		Scores:     [][]float64{{100, 0}, {0, 100}},
	}

	a, err := Aggregate(m)

	require.NoError(t, err)
	assert.Equal(t, 100.0, a.Score)
	assert.Equal(t, 2, a.Slots)
	require.Len(t, a.Matches, 2)
	assert.Equal(t, similarity.Match{Row: 0, Col: 0, LeftFile: "A.java", RightFile: "A.java", Score: 100}, a.Matches[0])
	assert.Equal(t, similarity.Match{Row: 1, Col: 1, LeftFile: "B.java", RightFile: "B.java", Score: 100}, a.Matches[1])
}

func TestAggregate_UnmatchedSlotsCountAsZero(t *testing.T) {
	m := similarity.SimilarityMatrix{Scores: [][]float64{{80, 20, 10}}}

	a, err := Aggregate(m)

	require.NoError(t, err)
	assert.InDelta(t, 26.6667, a.Score, 0.001)
	assert.Equal(t, 3, a.Slots)
	require.Len(t, a.Matches, 1)
	assert.Equal(t, 0, a.Matches[0].Row)
	assert.Equal(t, 0, a.Matches[0].Col)
	assert.Equal(t, 80.0, a.Matches[0].Score)
}

func TestAggregate_TallMatrix(t *testing.T) {
	m := similarity.SimilarityMatrix{Scores: [][]float64{{10}, {90}, {40}}}

	a, err := Aggregate(m)

	require.NoError(t, err)
	require.Len(t, a.Matches, 1)
	assert.Equal(t, 1, a.Matches[0].Row)
	assert.InDelta(t, 30.0, a.Score, 1e-9)
}

func TestAggregate_PrefersGlobalOptimumOverGreedy(t *testing.T) {
	// Greedy on the largest cell takes (0,0)=90 and is left with (1,1)=0.
	// The optimum pairs 80 with 80.
	m := similarity.SimilarityMatrix{Scores: [][]float64{
		{90, 80},
		{80, 0},
	}}

	a, err := Aggregate(m)

	require.NoError(t, err)
	assert.InDelta(t, 80.0, a.Score, 1e-9)
	require.Len(t, a.Matches, 2)
	assert.Equal(t, 1, a.Matches[0].Col)
	assert.Equal(t, 0, a.Matches[1].Col)
}

func TestAggregate_EmptyDimensions(t *testing.T) {
	tests := []struct {
		name      string
		matrix    similarity.SimilarityMatrix
		wantSlots int
	}{
		{"no rows no cols", similarity.SimilarityMatrix{}, 0},
		{"no left files", similarity.NewSimilarityMatrix(nil, []string{"a", "b"}), 2},
		{"no right files", similarity.NewSimilarityMatrix([]string{"a", "b", "c"}, nil), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Aggregate(tt.matrix)

			require.NoError(t, err)
			assert.Equal(t, 0.0, a.Score)
			assert.Empty(t, a.Matches)
			assert.Equal(t, tt.wantSlots, a.Slots)
		})
	}
}

func TestAggregate_InvalidMatrix(t *testing.T) {
	_, err := Aggregate(similarity.SimilarityMatrix{Scores: [][]float64{{50, 50}, {50}}})
	assert.ErrorIs(t, err, similarity.ErrInvalidMatrix)

	_, err = Aggregate(similarity.SimilarityMatrix{Scores: [][]float64{{101}}})
	assert.ErrorIs(t, err, similarity.ErrInvalidMatrix)
}

func TestAggregate_Deterministic(t *testing.T) {
	m := similarity.SimilarityMatrix{Scores: [][]float64{
		{50, 50, 50},
		{50, 50, 50},
	}}

	first, err := Aggregate(m)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Aggregate(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.InDelta(t, 100.0/3.0, first.Score, 1e-9)
}

func TestAggregate_MatchesAreInjective(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		rows, cols := 1+rng.Intn(6), 1+rng.Intn(6)
		scores := make([][]float64, rows)
		for i := range scores {
			scores[i] = make([]float64, cols)
			for j := range scores[i] {
				scores[i][j] = float64(rng.Intn(101))
			}
		}

		a, err := Aggregate(similarity.SimilarityMatrix{Scores: scores})
		require.NoError(t, err)

		assert.LessOrEqual(t, len(a.Matches), min(rows, cols))
		seenRows := map[int]bool{}
		seenCols := map[int]bool{}
		for _, match := range a.Matches {
			assert.False(t, seenRows[match.Row])
			assert.False(t, seenCols[match.Col])
			seenRows[match.Row] = true
			seenCols[match.Col] = true
		}
		assert.GreaterOrEqual(t, a.Score, 0.0)
		assert.LessOrEqual(t, a.Score, 100.0)
	}
}

func TestOutcome_WrapsAggregate(t *testing.T) {
	o := Outcome(similarity.SimilarityMatrix{Scores: [][]float64{{60}}})
	require.True(t, o.IsSuccess())
	assert.Equal(t, 60.0, o.Score)
	assert.Len(t, o.Matches, 1)

	bad := Outcome(similarity.SimilarityMatrix{Scores: [][]float64{{-1}}})
	assert.ErrorIs(t, bad.AsError(), similarity.ErrInvalidMatrix)
}

// =============================================================================
// Solve Tests
// =============================================================================

func TestSolve_Empty(t *testing.T) {
	got, err := Solve(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSolve_RejectsNonSquare(t *testing.T) {
	_, err := Solve([][]float64{{1, 2}})
	assert.ErrorIs(t, err, similarity.ErrInvalidMatrix)
}

func TestSolve_RejectsNonFinite(t *testing.T) {
	_, err := Solve([][]float64{{math.Inf(1)}})
	assert.ErrorIs(t, err, similarity.ErrInvalidMatrix)
}

func TestSolve_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 100; trial++ {
		n := 1 + rng.Intn(6)
		cost := make([][]float64, n)
		for i := range cost {
			cost[i] = make([]float64, n)
			for j := range cost[i] {
				cost[i][j] = float64(rng.Intn(100))
			}
		}

		rowToCol, err := Solve(cost)
		require.NoError(t, err)
		assert.Equal(t, bruteForceMin(cost), TotalCost(cost, rowToCol), "trial %d: %v", trial, cost)
	}
}

// bruteForceMin enumerates every permutation.
func bruteForceMin(cost [][]float64) float64 {
	n := len(cost)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	best := math.Inf(1)
	var permute func(k int)
	permute = func(k int) {
		if k == n {
			best = min(best, TotalCost(cost, perm))
			return
		}
		for i := k; i < n; i++ {
			perm[k], perm[i] = perm[i], perm[k]
			permute(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	permute(0)
	return best
}
