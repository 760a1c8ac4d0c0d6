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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// AsyncComparer runs a Detector through its asynchronous lifecycle with an
// optional per-pair timeout.
//
// Description:
//
//	Compare spawns the comparison, waits at most Timeout for it, interrupts
//	it when the wait ends early, completes it and always closes the handle.
//	A zero Timeout waits until the process exits or ctx ends.
//
// Thread Safety: Safe for concurrent use if Detector is.
type AsyncComparer struct {
	Detector Detector
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Compare satisfies evaluator.Comparer.
func (a AsyncComparer) Compare(ctx context.Context, left, right similarity.Submission) similarity.Outcome {
	if a.Detector == nil {
		return similarity.Failure(fmt.Errorf("%w: detector must not be nil", similarity.ErrInvalidInput))
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h, err := a.Detector.SpawnAsync(ctx, left, right)
	if err != nil {
		return similarity.Failure(err)
	}
	defer h.Close()

	waitCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	if err := h.Wait(waitCtx); err != nil {
		_ = h.Interrupt()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn("Comparison timed out",
				slog.String("detector", a.Detector.ID()),
				slog.String("left", left.ID),
				slog.String("right", right.ID),
				slog.Duration("timeout", a.Timeout),
			)
			return similarity.Failure(fmt.Errorf("%w after %s", similarity.ErrTimeout, a.Timeout))
		}
		return similarity.Failure(err)
	}

	outcome, err := h.Complete()
	if err != nil {
		return similarity.Failure(err)
	}
	return outcome
}
