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
	"fmt"
	"math"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// Solve finds a minimum-cost perfect assignment on a square cost matrix.
//
// Description:
//
//	Kuhn-Munkres with row and column potentials, O(n^3). Rows are inserted
//	one at a time in index order and columns are scanned in index order, so
//	ties between equally cheap assignments always resolve the same way.
//
// Inputs:
//
//	cost - n x n matrix of finite costs. n may be zero.
//
// Outputs:
//
//	[]int - rowToCol, where rowToCol[i] is the column assigned to row i.
//	error - ErrInvalidMatrix if cost is not square or holds a non-finite value.
//
// Thread Safety: Pure function; does not retain or modify cost.
func Solve(cost [][]float64) ([]int, error) {
	n := len(cost)
	for i, row := range cost {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", similarity.ErrInvalidMatrix, i, len(row), n)
		}
		for j, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return nil, fmt.Errorf("%w: non-finite cost at (%d,%d)", similarity.ErrInvalidMatrix, i, j)
			}
		}
	}
	if n == 0 {
		return []int{}, nil
	}

	// 1-indexed potentials; index 0 is the virtual column used while
	// augmenting.
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)   // p[j] = row matched to column j
	way := make([]int, n+1) // predecessor column on the augmenting path
	minv := make([]float64, n+1)
	used := make([]bool, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	rowToCol := make([]int, n)
	for j := 1; j <= n; j++ {
		if p[j] != 0 {
			rowToCol[p[j]-1] = j - 1
		}
	}
	return rowToCol, nil
}

// TotalCost sums cost[i][rowToCol[i]] over every row.
func TotalCost(cost [][]float64, rowToCol []int) float64 {
	total := 0.0
	for i, j := range rowToCol {
		total += cost[i][j]
	}
	return total
}
