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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/AleutianAI/pairwise/pkg/ux"
	"github.com/AleutianAI/pairwise/services/similarity"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// Report is the output of one evaluate invocation.
type Report struct {
	Corpus      string           `json:"corpus"`
	Submissions int              `json:"submissions"`
	Detectors   []DetectorReport `json:"detectors"`
}

// DetectorReport holds one detector's batch over the corpus.
//
// Results are sorted by descending score, then by pair. Failures are sorted
// by pair.
type DetectorReport struct {
	Detector string                      `json:"detector"`
	RunID    string                      `json:"run_id"`
	IDs      []string                    `json:"ids"`
	Results  []similarity.PairwiseResult `json:"results"`
	Failures []FailureRecord             `json:"failures"`
	Stats    similarity.BatchStats       `json:"stats"`
}

// FailureRecord is one pair that produced no result.
type FailureRecord struct {
	LeftID  string `json:"left_id"`
	RightID string `json:"right_id"`
	Error   string `json:"error"`
	Skipped bool   `json:"skipped,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
}

// Failed counts failed and skipped pairs over every detector.
func (r Report) Failed() int {
	n := 0
	for _, d := range r.Detectors {
		n += len(d.Failures)
	}
	return n
}

func newDetectorReport(detectorID string, batch similarity.BatchResult, failures []FailureRecord) DetectorReport {
	results := append([]similarity.PairwiseResult(nil), batch.Results...)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return pairLess(results[i].LeftID, results[i].RightID, results[j].LeftID, results[j].RightID)
	})
	if results == nil {
		results = []similarity.PairwiseResult{}
	}

	fs := append([]FailureRecord(nil), failures...)
	sort.SliceStable(fs, func(i, j int) bool {
		return pairLess(fs[i].LeftID, fs[i].RightID, fs[j].LeftID, fs[j].RightID)
	})
	if fs == nil {
		fs = []FailureRecord{}
	}

	return DetectorReport{
		Detector: detectorID,
		RunID:    batch.RunID,
		IDs:      batch.IDs,
		Results:  results,
		Failures: fs,
		Stats:    batch.Stats,
	}
}

func pairLess(l1, r1, l2, r2 string) bool {
	if l1 != l2 {
		return l1 < l2
	}
	return r1 < r2
}

// =============================================================================
// FAILURE COLLECTION
// =============================================================================

// failureCollector receives evaluator failure callbacks.
type failureCollector struct {
	mu      sync.Mutex
	records []FailureRecord
}

func (c *failureCollector) add(err error, leftID, rightID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, FailureRecord{
		LeftID:  leftID,
		RightID: rightID,
		Error:   err.Error(),
		Skipped: errors.Is(err, similarity.ErrSkipped),
		Timeout: errors.Is(err, similarity.ErrTimeout),
	})
}

func (c *failureCollector) list() []FailureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FailureRecord(nil), c.records...)
}

// =============================================================================
// RENDERING
// =============================================================================

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderReport writes the report as JSON or as styled text. top limits the
// rows printed per detector in text mode; 0 prints every row.
func renderReport(w io.Writer, format ux.Format, r Report, top int) error {
	if format == ux.FormatJSON {
		return writeJSON(w, r)
	}

	p := ux.NewPrinter(w)
	p.Title("Similarity report: " + r.Corpus)
	p.Muted(fmt.Sprintf("%d submissions, %d pairs", r.Submissions, similarity.PairCount(r.Submissions)))

	for _, d := range r.Detectors {
		p.Blank()
		p.Subtitle(fmt.Sprintf("Detector %s", d.Detector))
		p.Muted("run " + d.RunID)

		rows := make([][]string, 0, len(d.Results))
		for i, res := range d.Results {
			if top > 0 && i >= top {
				break
			}
			rows = append(rows, resultRow(p, res))
		}
		if len(rows) > 0 {
			p.Table([]string{"LEFT", "RIGHT", "SCORE", "NOTE"}, rows)
		} else {
			p.Muted("no results")
		}
		if hidden := len(d.Results) - len(rows); hidden > 0 {
			p.Muted(fmt.Sprintf("… %d more", hidden))
		}

		if len(d.Failures) > 0 {
			p.Warning(fmt.Sprintf("%d comparisons produced no score", len(d.Failures)))
			for _, f := range d.Failures {
				p.Muted(fmt.Sprintf("  %s %s ↔ %s: %s", ux.IconBullet, f.LeftID, f.RightID, f.Error))
			}
		}

		th := p.Theme()
		p.Summary(
			ux.Count{Label: "succeeded", Value: d.Stats.Succeeded, Style: th.Success},
			ux.Count{Label: "not applicable", Value: d.Stats.NotApplicable, Style: th.Muted},
			ux.Count{Label: "failed", Value: d.Stats.Failed, Style: th.Error},
			ux.Count{Label: "skipped", Value: d.Stats.Skipped, Style: th.Warning},
		)
	}
	return nil
}

func resultRow(p *ux.Printer, res similarity.PairwiseResult) []string {
	if res.NotApplicable {
		return []string{res.LeftID, res.RightID, p.Theme().Muted.Render("   n/a"), res.Reason}
	}
	note := ""
	if len(res.Matches) > 0 {
		note = fmt.Sprintf("%d file matches", len(res.Matches))
	}
	return []string{res.LeftID, res.RightID, p.Score(res.Score), note}
}
