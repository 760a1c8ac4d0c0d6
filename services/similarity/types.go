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
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SCORE BOUNDS
// =============================================================================

const (
	// MinScore is the lowest similarity a detector may report.
	MinScore = 0.0

	// MaxScore is the highest similarity a detector may report.
	MaxScore = 100.0

	// NotApplicableScore is carried by results whose detector declined to
	// judge the pair.
	NotApplicableScore = -1.0
)

// ValidScore reports whether s lies in [MinScore, MaxScore].
func ValidScore(s float64) bool {
	return s >= MinScore && s <= MaxScore
}

// =============================================================================
// CORPUS
// =============================================================================

// IsHidden reports whether a file name is hidden by Unix convention.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Submission is one participant's directory of source files.
//
// Thread Safety: Immutable after creation; safe to share across goroutines.
type Submission struct {
	// ID is unique within a corpus. Typically the directory name.
	ID string `json:"id"`

	// Path is the submission's root directory.
	Path string `json:"path"`

	// Files lists source files relative to Path, sorted.
	// Empty when the loader was not asked to enumerate files.
	Files []string `json:"files,omitempty"`
}

// Corpus is an ordered set of submissions loaded from one root directory.
type Corpus struct {
	Root        string       `json:"root"`
	Submissions []Submission `json:"submissions"`
}

// IDs returns the submission identifiers in corpus order.
func (c Corpus) IDs() []string {
	ids := make([]string, len(c.Submissions))
	for i, s := range c.Submissions {
		ids[i] = s.ID
	}
	return ids
}

// =============================================================================
// FILE SIMILARITY
// =============================================================================

// FileSimilarity is one detector observation for a pair of files.
type FileSimilarity struct {
	LeftFile  string  `json:"left_file"`
	RightFile string  `json:"right_file"`
	Score     float64 `json:"score"`
}

// SimilarityMatrix is a dense L x R grid of file similarities.
//
// Description:
//
//	Row i corresponds to LeftFiles[i] and column j to RightFiles[j].
//	Either dimension may be zero. A matrix built with NewSimilarityMatrix
//	starts with every cell at 0.
//
// Thread Safety: Not safe for concurrent mutation. Treat as immutable once
// returned from a detector.
type SimilarityMatrix struct {
	LeftFiles  []string    `json:"left_files"`
	RightFiles []string    `json:"right_files"`
	Scores     [][]float64 `json:"scores"`
}

// NewSimilarityMatrix allocates a zeroed matrix for the given file lists.
func NewSimilarityMatrix(leftFiles, rightFiles []string) SimilarityMatrix {
	scores := make([][]float64, len(leftFiles))
	for i := range scores {
		scores[i] = make([]float64, len(rightFiles))
	}
	return SimilarityMatrix{
		LeftFiles:  leftFiles,
		RightFiles: rightFiles,
		Scores:     scores,
	}
}

// Rows returns L, the number of left files.
func (m SimilarityMatrix) Rows() int {
	return len(m.Scores)
}

// Cols returns R, the number of right files. A matrix with no rows has no
// columns even if RightFiles is populated.
func (m SimilarityMatrix) Cols() int {
	if len(m.Scores) == 0 {
		return len(m.RightFiles)
	}
	return len(m.Scores[0])
}

// Empty reports whether either dimension is zero.
func (m SimilarityMatrix) Empty() bool {
	return m.Rows() == 0 || m.Cols() == 0
}

// Validate checks the matrix is rectangular and every score is in range.
//
// Outputs:
//
//	error - ErrInvalidMatrix describing the first problem found, or nil.
func (m SimilarityMatrix) Validate() error {
	if len(m.LeftFiles) != 0 && len(m.LeftFiles) != len(m.Scores) {
		return fmt.Errorf("%w: %d left files for %d rows", ErrInvalidMatrix, len(m.LeftFiles), len(m.Scores))
	}
	cols := m.Cols()
	if len(m.Scores) > 0 && len(m.RightFiles) != 0 && len(m.RightFiles) != cols {
		return fmt.Errorf("%w: %d right files for %d columns", ErrInvalidMatrix, len(m.RightFiles), cols)
	}
	for i, row := range m.Scores {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidMatrix, i, len(row), cols)
		}
		for j, s := range row {
			if !ValidScore(s) {
				return fmt.Errorf("%w: score %v at (%d,%d) outside [0,100]", ErrInvalidMatrix, s, i, j)
			}
		}
	}
	return nil
}

// Set records a score for a (left, right) cell, keeping the larger value
// when the cell was already observed.
func (m SimilarityMatrix) Set(row, col int, score float64) {
	if score > m.Scores[row][col] {
		m.Scores[row][col] = score
	}
}

// Match is one real (non-padding) pair chosen by optimal assignment.
type Match struct {
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	LeftFile  string  `json:"left_file,omitempty"`
	RightFile string  `json:"right_file,omitempty"`
	Score     float64 `json:"score"`
}

// =============================================================================
// RESULTS
// =============================================================================

// PairwiseResult is the outcome of one successful or not-applicable pair.
//
// Thread Safety: Immutable once produced.
type PairwiseResult struct {
	LeftID  string  `json:"left_id"`
	RightID string  `json:"right_id"`
	Score   float64 `json:"score"`

	// NotApplicable is set when the detector declined to judge the pair.
	// Score is NotApplicableScore in that case and Reason explains why.
	NotApplicable bool   `json:"not_applicable,omitempty"`
	Reason        string `json:"reason,omitempty"`

	// Matches holds the file-level assignment when the detector produced a
	// matrix. Optional.
	Matches []Match `json:"matches,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// Key returns the pair's identity, used to reject duplicates.
func (r PairwiseResult) Key() PairKey {
	return PairKey{Left: r.LeftID, Right: r.RightID}
}

// PairKey identifies an ordered (left, right) submission pair.
type PairKey struct {
	Left  string
	Right string
}

// String renders the key as "left|right".
func (k PairKey) String() string {
	return k.Left + "|" + k.Right
}

// BatchStats counts what happened to every enumerated pair.
type BatchStats struct {
	Total         int           `json:"total"`
	Dispatched    int           `json:"dispatched"`
	Succeeded     int           `json:"succeeded"`
	NotApplicable int           `json:"not_applicable"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration_ns"`
}

// BatchResult is the output of one evaluation run.
//
// Description:
//
//	IDs holds every submission seen on either side of an enumerated pair,
//	including submissions whose every comparison failed. Results holds the
//	successful and not-applicable pairs in completion order. A pair absent
//	from Results was reported through the failure callback.
//
// Invariants:
//
//	len(Results) <= n(n-1)/2
//	no two Results share a (LeftID, RightID)
type BatchResult struct {
	RunID   string           `json:"run_id"`
	IDs     []string         `json:"ids"`
	Results []PairwiseResult `json:"results"`
	Stats   BatchStats       `json:"stats"`
}

// PairCount returns n(n-1)/2, the number of unordered pairs over n items.
func PairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}
