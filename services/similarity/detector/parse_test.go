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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pairwise/services/similarity"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		sep     string
		scale   float64
		want    float64
		wantErr bool
	}{
		{"plain", "42\n", ":", 1, 42, false},
		{"trailing blank lines", "noise\n17.5\n\n\n", ":", 1, 17.5, false},
		{"pair line", "a.java:b.java:88", ":", 1, 88, false},
		{"scaled fraction", "0.731", ":", 100, 73.1, false},
		{"zero", "0", ":", 1, 0, false},
		{"hundred", "100", ":", 1, 100, false},
		{"empty", "", ":", 1, 0, true},
		{"whitespace only", " \n\t\n", ":", 1, 0, true},
		{"word", "error", ":", 1, 0, true},
		{"negative", "-3", ":", 1, 0, true},
		{"too large after scale", "2", ":", 100, 0, true},
		{"nan", "NaN", ":", 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScore([]byte(tt.out), tt.sep, tt.scale)
			if tt.wantErr {
				assert.ErrorIs(t, err, similarity.ErrMalformedOutput)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseMatrix(t *testing.T) {
	left := []string{"A.java", "pkg/B.java"}
	right := []string{"A.java", "C.java"}
	root := "/work/pairwise-1"

	tests := []struct {
		name string
		out  string
		want [][]float64
	}{
		{
			name: "workspace relative",
			out:  "lhs/A.java:rhs/C.java:40\nlhs/pkg/B.java:rhs/A.java:70\n",
			want: [][]float64{{0, 40}, {70, 0}},
		},
		{
			name: "absolute paths",
			out:  "/work/pairwise-1/lhs/A.java:/work/pairwise-1/rhs/A.java:90\n",
			want: [][]float64{{90, 0}, {0, 0}},
		},
		{
			name: "reversed line is swapped",
			out:  "rhs/C.java:lhs/pkg/B.java:35\n",
			want: [][]float64{{0, 0}, {0, 35}},
		},
		{
			name: "input relative",
			out:  "pkg/B.java:C.java:15\n",
			want: [][]float64{{0, 0}, {0, 15}},
		},
		{
			name: "input relative reversed",
			out:  "C.java:pkg/B.java:15\n",
			want: [][]float64{{0, 0}, {0, 15}},
		},
		{
			name: "duplicates keep maximum",
			out:  "lhs/A.java:rhs/A.java:20\nrhs/A.java:lhs/A.java:60\nlhs/A.java:rhs/A.java:30\n",
			want: [][]float64{{60, 0}, {0, 0}},
		},
		{
			name: "unknown files ignored",
			out:  "lhs/Z.java:rhs/A.java:99\nlhs/A.java:lhs/pkg/B.java:99\nlhs/A.java:rhs/C.java:10\n",
			want: [][]float64{{0, 10}, {0, 0}},
		},
		{
			name: "empty output",
			out:  "",
			want: [][]float64{{0, 0}, {0, 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMatrix([]byte(tt.out), ":", 1, root, left, right)

			require.NoError(t, err)
			assert.Equal(t, left, m.LeftFiles)
			assert.Equal(t, right, m.RightFiles)
			assert.Equal(t, tt.want, m.Scores)
			assert.NoError(t, m.Validate())
		})
	}
}

func TestParseMatrix_Malformed(t *testing.T) {
	left := []string{"A.java"}
	right := []string{"A.java"}

	_, err := ParseMatrix([]byte("Exception in thread main\n"), ":", 1, "", left, right)
	assert.ErrorIs(t, err, similarity.ErrMalformedOutput)

	_, err = ParseMatrix([]byte("lhs/A.java:rhs/A.java:high\n"), ":", 1, "", left, right)
	assert.ErrorIs(t, err, similarity.ErrMalformedOutput)

	_, err = ParseMatrix([]byte("lhs/A.java:rhs/A.java:101\n"), ":", 1, "", left, right)
	assert.ErrorIs(t, err, similarity.ErrMalformedOutput)
}

func TestParseMatrix_Scale(t *testing.T) {
	m, err := ParseMatrix([]byte("A.java|A.java|0.5\n"), "|", 100, "", []string{"A.java"}, []string{"A.java"})

	require.NoError(t, err)
	assert.Equal(t, [][]float64{{50}}, m.Scores)
}
