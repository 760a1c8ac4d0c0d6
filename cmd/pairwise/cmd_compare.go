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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pairwise/pkg/ux"
	"github.com/AleutianAI/pairwise/services/similarity"
	"github.com/AleutianAI/pairwise/services/similarity/assignment"
	"github.com/AleutianAI/pairwise/services/similarity/detector"
	"github.com/AleutianAI/pairwise/services/similarity/evaluator"
)

type compareOptions struct {
	detector string
	files    bool
	output   string
}

// CompareReport is the output of "pairwise compare".
type CompareReport struct {
	Detector string                       `json:"detector"`
	Result   similarity.PairwiseResult    `json:"result"`
	Matrix   *similarity.SimilarityMatrix `json:"matrix,omitempty"`
}

func newCompareCmd(a *app) *cobra.Command {
	opts := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare <left> <right>",
		Short: "Compare two submissions with one detector",
		Long: `Compare two submissions with one detector.

With --files the detector must produce a file matrix. The matrix is printed
together with the optimal one-to-one file assignment that yields the score.

Examples:
  pairwise compare ./subs/alice ./subs/bob
  pairwise compare ./subs/alice ./subs/bob --detector sherlock --files`,
		Args: badArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompare(cmd, args[0], args[1], opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.detector, "detector", "d", "",
		"Detector ID (required when more than one is configured)")
	f.BoolVar(&opts.files, "files", false,
		"Print the file-by-file matrix and the optimal matches")
	f.StringVarP(&opts.output, "output", "o", string(ux.FormatAuto),
		"Output format: auto, text, json")
	return cmd
}

func (a *app) runCompare(cmd *cobra.Command, leftPath, rightPath string, opts *compareOptions) error {
	ctx := cmd.Context()
	log := a.logger.Slog()

	format, err := ux.ParseFormat(opts.output)
	if err != nil {
		return withExitCode(ExitBadArgs, err)
	}
	format = format.Resolve(a.stdout)

	left, err := submissionAt(leftPath)
	if err != nil {
		return err
	}
	right, err := submissionAt(rightPath)
	if err != nil {
		return err
	}

	var ids []string
	if opts.detector != "" {
		ids = []string{opts.detector}
	}
	detectors, err := a.selectDetectors(a.cfg, ids)
	if err != nil {
		return err
	}
	if len(detectors) != 1 {
		return withExitCode(ExitBadArgs,
			fmt.Errorf("%d detectors configured; choose one with --detector", len(detectors)))
	}
	d := detectors[0]

	if err := d.Provision(ctx, a.cfg.ProvisionDir); err != nil {
		return err
	}
	defer func() {
		if err := d.Release(); err != nil {
			log.Warn("Detector release failed", slog.String("error", err.Error()))
		}
	}()

	report := CompareReport{Detector: d.ID()}
	if opts.files {
		m, err := d.CompareFiles(ctx, left, right)
		switch {
		case errors.Is(err, similarity.ErrNotApplicable):
			report.Result, _ = similarity.NotApplicable(err.Error()).Result(left.ID, right.ID)
		case err != nil:
			return err
		default:
			asg, err := assignment.Aggregate(m)
			if err != nil {
				return err
			}
			report.Matrix = &m
			report.Result, _ = similarity.Success(asg.Score, asg.Matches...).Result(left.ID, right.ID)
		}
	} else {
		var comparer evaluator.Comparer = d
		if a.cfg.Timeout > 0 {
			comparer = detector.AsyncComparer{Detector: d, Timeout: a.cfg.Timeout, Logger: log}
		}
		outcome := comparer.Compare(ctx, left, right)
		res, ok := outcome.Result(left.ID, right.ID)
		if !ok {
			return outcome.AsError()
		}
		report.Result = res
	}

	return renderCompare(a.stdout, format, report)
}

// submissionAt describes a directory given on the command line.
func submissionAt(path string) (similarity.Submission, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return similarity.Submission{}, withExitCode(ExitBadArgs, fmt.Errorf("resolve %s: %w", path, err))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return similarity.Submission{}, withExitCode(ExitBadArgs, err)
	}
	if !info.IsDir() {
		return similarity.Submission{}, withExitCode(ExitBadArgs, fmt.Errorf("%s is not a directory", path))
	}
	return similarity.Submission{ID: filepath.Base(abs), Path: abs}, nil
}

func renderCompare(w io.Writer, format ux.Format, r CompareReport) error {
	if format == ux.FormatJSON {
		return writeJSON(w, r)
	}

	p := ux.NewPrinter(w)
	res := r.Result
	p.Title(fmt.Sprintf("%s %s %s", res.LeftID, ux.IconArrow, res.RightID))
	p.Muted("detector " + r.Detector)
	if res.NotApplicable {
		p.Warning("not applicable: " + res.Reason)
		return nil
	}
	p.Info("score " + p.Score(res.Score))

	if r.Matrix == nil {
		return nil
	}
	if r.Matrix.Empty() {
		p.Muted("no source files on one side")
		return nil
	}

	p.Blank()
	headers := append([]string{""}, r.Matrix.RightFiles...)
	rows := make([][]string, 0, r.Matrix.Rows())
	for i, row := range r.Matrix.Scores {
		cells := []string{r.Matrix.LeftFiles[i]}
		for _, s := range row {
			cells = append(cells, p.Score(s))
		}
		rows = append(rows, cells)
	}
	p.Table(headers, rows)

	if len(res.Matches) > 0 {
		lines := make([]string, 0, len(res.Matches))
		for _, m := range res.Matches {
			lines = append(lines, fmt.Sprintf("%s %s %s  %.2f", m.LeftFile, ux.IconArrow, m.RightFile, m.Score))
		}
		p.Blank()
		p.Box("Matches", strings.Join(lines, "\n"))
	}
	return nil
}
