// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pairwise/pkg/ux"
	"github.com/AleutianAI/pairwise/services/similarity"
)

func TestNewDetectorReport_Sorting(t *testing.T) {
	batch := similarity.BatchResult{
		RunID: "run-1",
		IDs:   []string{"a", "b", "c"},
		Results: []similarity.PairwiseResult{
			{LeftID: "b", RightID: "c", Score: 10},
			{LeftID: "a", RightID: "c", Score: similarity.NotApplicableScore, NotApplicable: true},
			{LeftID: "a", RightID: "b", Score: 90},
			{LeftID: "a", RightID: "a2", Score: 10},
		},
	}
	failures := []FailureRecord{
		{LeftID: "b", RightID: "c"},
		{LeftID: "a", RightID: "c"},
	}

	r := newDetectorReport("sim", batch, failures)

	require.Len(t, r.Results, 4)
	assert.Equal(t, similarity.PairKey{Left: "a", Right: "b"}, r.Results[0].Key())
	assert.Equal(t, similarity.PairKey{Left: "a", Right: "a2"}, r.Results[1].Key())
	assert.Equal(t, similarity.PairKey{Left: "b", Right: "c"}, r.Results[2].Key())
	assert.True(t, r.Results[3].NotApplicable)
	assert.Equal(t, "a", r.Failures[0].LeftID)
	assert.Equal(t, "b", r.Results[0].RightID)

	// The batch itself is left untouched.
	assert.Equal(t, "b", batch.Results[0].LeftID)
}

func TestNewDetectorReport_EmptyIsNotNull(t *testing.T) {
	r := newDetectorReport("sim", similarity.BatchResult{}, nil)

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, r))
	assert.Contains(t, buf.String(), `"results": []`)
	assert.Contains(t, buf.String(), `"failures": []`)
}

func TestFailureCollector_Classifies(t *testing.T) {
	c := &failureCollector{}
	c.add(&similarity.ComparisonError{LeftID: "a", RightID: "b",
		Err: fmt.Errorf("%w: %w", similarity.ErrSkipped, context.Canceled)}, "a", "b")
	c.add(&similarity.ComparisonError{LeftID: "a", RightID: "c",
		Err: fmt.Errorf("%w after 1s", similarity.ErrTimeout)}, "a", "c")
	c.add(errors.New("exit 1"), "b", "c")

	got := c.list()

	require.Len(t, got, 3)
	assert.True(t, got[0].Skipped)
	assert.False(t, got[0].Timeout)
	assert.True(t, got[1].Timeout)
	assert.False(t, got[2].Skipped || got[2].Timeout)
	assert.Equal(t, "exit 1", got[2].Error)
}

func TestReport_Failed(t *testing.T) {
	r := Report{Detectors: []DetectorReport{
		{Failures: []FailureRecord{{}, {}}},
		{Failures: []FailureRecord{{}}},
	}}
	assert.Equal(t, 3, r.Failed())
}

func TestRenderReport_Text(t *testing.T) {
	r := Report{
		Corpus:      "subs",
		Submissions: 3,
		Detectors: []DetectorReport{{
			Detector: "jplag",
			RunID:    "run-1",
			Results: []similarity.PairwiseResult{
				{LeftID: "alice", RightID: "bob", Score: 91.5, Matches: []similarity.Match{{}, {}}},
				{LeftID: "alice", RightID: "carol", Score: similarity.NotApplicableScore,
					NotApplicable: true, Reason: "not enough tokens"},
			},
			Failures: []FailureRecord{{LeftID: "bob", RightID: "carol", Error: "exit 2"}},
			Stats:    similarity.BatchStats{Succeeded: 1, NotApplicable: 1, Failed: 1},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, ux.FormatText, r, 0))

	out := buf.String()
	for _, want := range []string{
		"Similarity report: subs",
		"3 submissions, 3 pairs",
		"Detector jplag",
		" 91.50",
		"2 file matches",
		"n/a",
		"not enough tokens",
		"1 comparisons produced no score",
		"bob ↔ carol: exit 2",
		"1 succeeded  1 not applicable  1 failed  0 skipped",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderReport_NoResults(t *testing.T) {
	r := Report{Corpus: "one", Submissions: 1, Detectors: []DetectorReport{{Detector: "sim"}}}

	var buf bytes.Buffer
	require.NoError(t, renderReport(&buf, ux.FormatText, r, 0))

	assert.Contains(t, buf.String(), "no results")
}
