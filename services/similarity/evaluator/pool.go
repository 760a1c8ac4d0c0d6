// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// Pool runs tasks with at most Size of them in flight.
//
// Description:
//
//	Go blocks the caller until one of Size permits is free, then runs the
//	task on its own goroutine. The permit is returned in a deferred block
//	when the task ends, whether it returns or panics. Wait blocks until
//	every started task has returned its permit.
//
// Thread Safety: Go and Wait may be called from different goroutines, but
// Wait must not race with a Go call that has not yet returned.
type Pool struct {
	size int64
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	acquired atomic.Int64
	released atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// PoolStats is a snapshot of a Pool's permit accounting.
type PoolStats struct {
	Size     int
	Acquired int64
	Released int64
	InFlight int64
	Peak     int64
}

// NewPool creates a pool with size permits.
//
// Outputs:
//
//	*Pool - The pool.
//	error - ErrInvalidInput if size < 1.
func NewPool(size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: pool size must be >= 1, got %d", similarity.ErrInvalidInput, size)
	}
	return &Pool{
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}, nil
}

// Go waits for a permit and runs task on a new goroutine.
//
// Outputs:
//
//	error - ctx.Err() if ctx ended before a permit was free. The task did
//	        not run in that case.
func (p *Pool) Go(ctx context.Context, task func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.acquired.Add(1)
	p.wg.Add(1)
	p.notePeak(p.inFlight.Add(1))

	go func() {
		defer func() {
			p.inFlight.Add(-1)
			p.released.Add(1)
			p.sem.Release(1)
			p.wg.Done()
		}()
		task()
	}()
	return nil
}

// Wait blocks until every started task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Outstanding returns the number of permits currently held.
func (p *Pool) Outstanding() int64 {
	return p.acquired.Load() - p.released.Load()
}

// Stats returns a snapshot of the permit counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:     int(p.size),
		Acquired: p.acquired.Load(),
		Released: p.released.Load(),
		InFlight: p.inFlight.Load(),
		Peak:     p.peak.Load(),
	}
}

func (p *Pool) notePeak(current int64) {
	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
