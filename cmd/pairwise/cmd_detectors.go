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
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pairwise/pkg/ux"
	"github.com/AleutianAI/pairwise/services/similarity/detector"
)

// DetectorStatus describes one configured detector.
type DetectorStatus struct {
	ID          string `json:"id"`
	Runtime     string `json:"runtime"`
	Output      string `json:"output"`
	Description string `json:"description,omitempty"`
	Command     string `json:"command,omitempty"`

	// Checked is set when --check provisioned the detector.
	Checked bool   `json:"checked,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newDetectorsCmd(a *app) *cobra.Command {
	var check bool
	var output string
	cmd := &cobra.Command{
		Use:   "detectors",
		Short: "List configured detectors",
		Long: `List configured detectors.

With --check every detector is provisioned into a temporary directory and
released again, which verifies its runtime and payloads exist.`,
		Args: badArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ux.ParseFormat(output)
			if err != nil {
				return withExitCode(ExitBadArgs, err)
			}
			statuses, err := a.detectorStatuses(cmd.Context(), check)
			if err != nil {
				return err
			}
			if err := renderDetectors(a.stdout, format.Resolve(a.stdout), statuses); err != nil {
				return err
			}
			for _, s := range statuses {
				if s.Error != "" {
					return withExitCode(ExitProvisioning, fmt.Errorf("detector %s failed its check", s.ID))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Provision each detector to verify it")
	cmd.Flags().StringVarP(&output, "output", "o", string(ux.FormatAuto), "Output format: auto, text, json")
	return cmd
}

func (a *app) detectorStatuses(ctx context.Context, check bool) ([]DetectorStatus, error) {
	statuses := []DetectorStatus{}
	if len(a.cfg.Detectors) == 0 {
		return statuses, nil
	}
	registry, err := detector.FromConfigs(a.cfg.Detectors,
		detector.WithLogger(a.logger.Slog()),
		detector.WithExtensions(a.cfg.Extensions),
	)
	if err != nil {
		return nil, withExitCode(ExitBadArgs, err)
	}

	for _, id := range registry.IDs() {
		d, err := registry.Get(id)
		if err != nil {
			return nil, err
		}
		s := DetectorStatus{ID: id}
		if tool, ok := d.(*detector.Tool); ok {
			cfg := tool.Config()
			s.Runtime = string(cfg.Runtime)
			s.Output = string(cfg.Output)
			s.Description = cfg.Description
			s.Command = strings.TrimSpace(cfg.Command + " " + strings.Join(cfg.Args, " "))
		}
		if check {
			s.Checked = true
			if err := d.Provision(ctx, ""); err != nil {
				s.Error = err.Error()
			} else if err := d.Release(); err != nil {
				s.Error = err.Error()
			}
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func renderDetectors(w io.Writer, format ux.Format, statuses []DetectorStatus) error {
	if format == ux.FormatJSON {
		return writeJSON(w, statuses)
	}
	p := ux.NewPrinter(w)
	if len(statuses) == 0 {
		p.Warning("no detectors configured")
		p.Muted("run 'pairwise init-config' and add a detector to the file")
		return nil
	}

	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		status := ""
		if s.Checked {
			status = p.Icon(ux.IconSuccess)
			if s.Error != "" {
				status = p.Icon(ux.IconError)
			}
		}
		rows = append(rows, []string{status, s.ID, s.Runtime, s.Output, s.Description})
	}
	p.Table([]string{"", "ID", "RUNTIME", "OUTPUT", "DESCRIPTION"}, rows)
	for _, s := range statuses {
		if s.Error != "" {
			p.Error(s.Error)
		}
	}
	return nil
}
