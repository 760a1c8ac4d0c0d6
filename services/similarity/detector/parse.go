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
	"bufio"
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/pairwise/services/similarity"
	"github.com/AleutianAI/pairwise/services/similarity/execution"
)

// ParseScore reads a pair score from tool output.
//
// Description:
//
//	The score is the last non-empty line, or the part of it after the
//	last separator. Tools commonly print "lhs:rhs:42" or just "42". The
//	value is multiplied by scale and must land in [0,100].
//
// Outputs:
//
//	float64 - The scaled score.
//	error - ErrMalformedOutput when no valid score is present.
func ParseScore(out []byte, separator string, scale float64) (float64, error) {
	line := lastLine(out)
	if line == "" {
		return 0, fmt.Errorf("%w: empty output", similarity.ErrMalformedOutput)
	}
	field := line
	if separator != "" {
		if i := strings.LastIndex(line, separator); i >= 0 {
			field = line[i+len(separator):]
		}
	}
	return parseValue(field, scale)
}

// ParseMatrix builds a file similarity matrix from tool output.
//
// Description:
//
//	Each line is "left<sep>right<sep>score". Paths may be absolute, relative
//	to the workspace ("lhs/A.java") or relative to each input ("A.java").
//	A line naming the right file first is swapped. Lines naming files not in
//	leftFiles/rightFiles are ignored. A pair reported twice keeps the higher
//	score. Pairs never reported stay at 0.
//
// Inputs:
//
//	out - Tool stdout.
//	separator - Field separator.
//	scale - Multiplier applied to every score.
//	workspaceRoot - Root used to relativize absolute paths. May be empty.
//	leftFiles, rightFiles - Source files of each side, relative and sorted.
//
// Outputs:
//
//	similarity.SimilarityMatrix - len(leftFiles) x len(rightFiles).
//	error - ErrMalformedOutput if the output is non-empty and no line
//	        parses, or a score is out of range.
func ParseMatrix(out []byte, separator string, scale float64, workspaceRoot string, leftFiles, rightFiles []string) (similarity.SimilarityMatrix, error) {
	m := similarity.NewSimilarityMatrix(leftFiles, rightFiles)
	if separator == "" {
		separator = defaultSeparator
	}
	r := newPathResolver(workspaceRoot, leftFiles, rightFiles)

	var nonEmpty, parsed int
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		nonEmpty++

		cut := strings.LastIndex(line, separator)
		if cut < 0 {
			continue
		}
		lhs, rhs, ok := strings.Cut(line[:cut], separator)
		if !ok {
			continue
		}
		score, err := parseValue(line[cut+len(separator):], scale)
		if err != nil {
			return similarity.SimilarityMatrix{}, fmt.Errorf("line %q: %w", line, err)
		}
		parsed++

		row, col, ok := r.locate(strings.TrimSpace(lhs), strings.TrimSpace(rhs))
		if !ok {
			continue
		}
		m.Set(row, col, score)
	}
	if err := sc.Err(); err != nil {
		return similarity.SimilarityMatrix{}, fmt.Errorf("%w: %v", similarity.ErrMalformedOutput, err)
	}
	if nonEmpty > 0 && parsed == 0 {
		return similarity.SimilarityMatrix{}, fmt.Errorf("%w: no file pair lines in %d lines", similarity.ErrMalformedOutput, nonEmpty)
	}
	return m, nil
}

func parseValue(field string, scale float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(field), "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", similarity.ErrMalformedOutput, field)
	}
	v *= scale
	if math.IsNaN(v) || !similarity.ValidScore(v) {
		return 0, fmt.Errorf("%w: score %v outside [0,100]", similarity.ErrMalformedOutput, v)
	}
	return v, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// =============================================================================
// PATH RESOLUTION
// =============================================================================

type side int

const (
	sideUnknown side = iota
	sideLeft
	sideRight
)

// pathResolver maps reported paths onto matrix rows and columns.
type pathResolver struct {
	root  string
	left  map[string]int
	right map[string]int
}

func newPathResolver(root string, leftFiles, rightFiles []string) pathResolver {
	r := pathResolver{
		root:  root,
		left:  make(map[string]int, len(leftFiles)),
		right: make(map[string]int, len(rightFiles)),
	}
	for i, f := range leftFiles {
		r.left[filepath.ToSlash(f)] = i
	}
	for j, f := range rightFiles {
		r.right[filepath.ToSlash(f)] = j
	}
	return r
}

// locate returns the cell for a reported (a, b) pair, swapping when a is a
// right file and b a left file.
func (r pathResolver) locate(a, b string) (int, int, bool) {
	sa, pa := r.classify(a)
	sb, pb := r.classify(b)

	switch {
	case sa != sideUnknown && sa == sb:
		return 0, 0, false
	case sa == sideRight && sb == sideLeft:
		return r.cell(pb, pa)
	case sa == sideLeft || sb == sideRight:
		return r.cell(pa, pb)
	}

	// Neither path says which input it came from.
	if row, col, ok := r.cell(pa, pb); ok {
		return row, col, true
	}
	return r.cell(pb, pa)
}

func (r pathResolver) cell(leftPath, rightPath string) (int, int, bool) {
	row, okL := r.left[leftPath]
	col, okR := r.right[rightPath]
	return row, col, okL && okR
}

// classify strips the workspace prefix from p and reports its side.
func (r pathResolver) classify(p string) (side, string) {
	if filepath.IsAbs(p) && r.root != "" {
		if rel, err := filepath.Rel(r.root, p); err == nil {
			p = rel
		}
	}
	p = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(p)), "./")
	switch {
	case strings.HasPrefix(p, execution.LeftDir+"/"):
		return sideLeft, strings.TrimPrefix(p, execution.LeftDir+"/")
	case strings.HasPrefix(p, execution.RightDir+"/"):
		return sideRight, strings.TrimPrefix(p, execution.RightDir+"/")
	default:
		return sideUnknown, p
	}
}
