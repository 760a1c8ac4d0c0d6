// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package similarity holds the shared data model for pairwise similarity
// evaluation over a corpus of submissions.
//
// A corpus is a set of submission directories. Every unordered pair of
// submissions is compared by a detector, an external analysis tool that
// either reports one score for the pair or a file-by-file similarity
// matrix. Matrices are reduced to one score by optimal assignment.
//
// # Packages
//
//	| Package     | Role                                                 |
//	|-------------|------------------------------------------------------|
//	| similarity  | Submission, matrix, outcome and result types, errors |
//	| assignment  | Kuhn-Munkres solver and matrix aggregation           |
//	| execution   | Asynchronous subprocess handle and its workspace     |
//	| evaluator   | Bounded-concurrency pair scheduler                   |
//	| detector    | Detector interface, registry, configurable tools     |
//	| corpus      | Submission and source file discovery                 |
//	| config      | YAML configuration with validation                   |
//	| telemetry   | OpenTelemetry provider setup                         |
//
// # Data Flow
//
//	corpus.Load -> evaluator.Evaluate -> detector.Compare
//	                                       |-> score
//	                                       |-> matrix -> assignment.Aggregate -> score
//	            -> BatchResult
//
// # Scores
//
// Scores are percentages in [0, 100]. A pair a detector cannot judge
// (too few usable files, for example) is reported as NotApplicable and
// carries NotApplicableScore instead of a percentage. Failed pairs never
// appear in a BatchResult; they are reported through the evaluator's
// failure callback.
package similarity
