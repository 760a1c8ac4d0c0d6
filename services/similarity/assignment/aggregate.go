// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assignment reduces a file-by-file similarity matrix to one
// submission-level score by optimal bipartite matching.
//
// Each left file is paired with at most one right file so that the total
// matched similarity is maximal. The score is the mean of the matched
// similarities over max(L, R) slots: files with no counterpart count as
// zero, so a submission padded with extra files is penalized instead of
// ignored.
//
//	[[100,   0],
//	 [  0, 100]]   -> diagonal match, score 100
//
//	[[80, 20, 10]] -> one match at 80, two empty slots, score 26.67
package assignment

import "github.com/AleutianAI/pairwise/services/similarity"

// unmatchedCost is the cost of pairing with a padding row or column. It
// equals the cost of a real pair at zero similarity.
const unmatchedCost = similarity.MaxScore

// Assignment is the reduced form of a SimilarityMatrix.
type Assignment struct {
	// Matches are the real pairs, ordered by row. At most min(L, R).
	Matches []similarity.Match `json:"matches"`

	// Slots is max(L, R), the denominator of Score.
	Slots int `json:"slots"`

	// Score is sum(Matches.Score) / Slots, or 0 when Slots is 0.
	Score float64 `json:"score"`
}

// Aggregate computes the optimal assignment of a similarity matrix.
//
// Description:
//
//	Converts every score S to cost 100-S, pads the matrix to square with
//	cost 100, solves the assignment and drops matches that touch padding.
//	When either dimension is zero it returns a zero Assignment without
//	running the solver.
//
// Inputs:
//
//	m - L x R matrix with scores in [0, 100].
//
// Outputs:
//
//	Assignment - matches, slot count and aggregate score.
//	error - ErrInvalidMatrix when m fails Validate.
//
// Thread Safety: Pure function.
func Aggregate(m similarity.SimilarityMatrix) (Assignment, error) {
	if err := m.Validate(); err != nil {
		return Assignment{}, err
	}
	rows, cols := m.Rows(), m.Cols()
	if rows == 0 || cols == 0 {
		return Assignment{Slots: max(rows, cols)}, nil
	}

	n := max(rows, cols)
	cost := make([][]float64, n)
	for i := range cost {
		cost[i] = make([]float64, n)
		for j := range cost[i] {
			if i < rows && j < cols {
				cost[i][j] = similarity.MaxScore - m.Scores[i][j]
			} else {
				cost[i][j] = unmatchedCost
			}
		}
	}

	rowToCol, err := Solve(cost)
	if err != nil {
		return Assignment{}, err
	}

	matches := make([]similarity.Match, 0, min(rows, cols))
	total := 0.0
	for i, j := range rowToCol {
		if i >= rows || j >= cols {
			continue
		}
		match := similarity.Match{Row: i, Col: j, Score: m.Scores[i][j]}
		if i < len(m.LeftFiles) {
			match.LeftFile = m.LeftFiles[i]
		}
		if j < len(m.RightFiles) {
			match.RightFile = m.RightFiles[j]
		}
		matches = append(matches, match)
		total += match.Score
	}

	return Assignment{
		Matches: matches,
		Slots:   n,
		Score:   min(total/float64(n), similarity.MaxScore),
	}, nil
}

// Score is Aggregate without the matches.
func Score(m similarity.SimilarityMatrix) (float64, error) {
	a, err := Aggregate(m)
	if err != nil {
		return 0, err
	}
	return a.Score, nil
}

// Outcome aggregates m into a Success outcome carrying the matches, or an
// Error outcome when the matrix is invalid.
func Outcome(m similarity.SimilarityMatrix) similarity.Outcome {
	a, err := Aggregate(m)
	if err != nil {
		return similarity.Failure(err)
	}
	return similarity.Success(a.Score, a.Matches...)
}
