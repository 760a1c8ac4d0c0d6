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

import "fmt"

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	// OutcomeError means the comparison failed. Err is set.
	OutcomeError OutcomeKind = iota

	// OutcomeSuccess means the detector produced a score.
	OutcomeSuccess

	// OutcomeNotApplicable means the detector judged the input unsuitable.
	OutcomeNotApplicable
)

// String returns "error", "success" or "not_applicable".
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotApplicable:
		return "not_applicable"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one comparison.
//
// Description:
//
//	Exactly one of three variants, selected by Kind:
//
//	  Success(score)        Score in [0,100], optional Matches
//	  NotApplicable(reason) Reason set, Score is NotApplicableScore
//	  Error(err)            Err set
//
//	The zero value is an Error with a nil Err; construct outcomes with
//	Success, NotApplicable or Failure.
//
// Thread Safety: Immutable value type.
type Outcome struct {
	Kind    OutcomeKind
	Score   float64
	Reason  string
	Matches []Match
	Err     error
}

// Success builds a Success outcome. A score outside [0,100] yields an Error
// wrapping ErrMalformedOutput instead.
func Success(score float64, matches ...Match) Outcome {
	if !ValidScore(score) {
		return Failure(fmt.Errorf("%w: score %v outside [0,100]", ErrMalformedOutput, score))
	}
	return Outcome{Kind: OutcomeSuccess, Score: score, Matches: matches}
}

// NotApplicable builds a NotApplicable outcome.
func NotApplicable(reason string) Outcome {
	return Outcome{Kind: OutcomeNotApplicable, Score: NotApplicableScore, Reason: reason}
}

// Failure builds an Error outcome. A nil err is replaced by ErrToolFailed.
func Failure(err error) Outcome {
	if err == nil {
		err = ErrToolFailed
	}
	return Outcome{Kind: OutcomeError, Reason: err.Error(), Err: err}
}

// IsSuccess reports whether the outcome carries a score.
func (o Outcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }

// IsNotApplicable reports whether the detector declined the pair.
func (o Outcome) IsNotApplicable() bool { return o.Kind == OutcomeNotApplicable }

// AsError returns the failure, or nil for Success and NotApplicable.
func (o Outcome) AsError() error {
	if o.Kind != OutcomeError {
		return nil
	}
	if o.Err == nil {
		return ErrToolFailed
	}
	return o.Err
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return fmt.Sprintf("success(%.2f)", o.Score)
	case OutcomeNotApplicable:
		return fmt.Sprintf("not_applicable(%s)", o.Reason)
	default:
		return fmt.Sprintf("error(%v)", o.AsError())
	}
}

// Result converts the outcome into a PairwiseResult for the given pair.
// The second return is false for Error outcomes, which never become results.
func (o Outcome) Result(leftID, rightID string) (PairwiseResult, bool) {
	switch o.Kind {
	case OutcomeSuccess:
		return PairwiseResult{
			LeftID:  leftID,
			RightID: rightID,
			Score:   o.Score,
			Matches: o.Matches,
		}, true
	case OutcomeNotApplicable:
		return PairwiseResult{
			LeftID:        leftID,
			RightID:       rightID,
			Score:         NotApplicableScore,
			NotApplicable: true,
			Reason:        o.Reason,
		}, true
	default:
		return PairwiseResult{}, false
	}
}
