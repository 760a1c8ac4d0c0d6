// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the pairwise CLI.
//
// A Printer is bound to one writer. Its lipgloss renderer inspects that
// writer, so colors appear on a terminal and disappear when output is
// redirected to a file or buffer.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette: deep ocean teals with conventional semantic colors.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Score bands used by Printer.Score. Scores at or above SuspiciousScore are
// drawn as errors, at or above ElevatedScore as warnings.
const (
	ElevatedScore   = 50.0
	SuspiciousScore = 80.0
)

// Theme is the set of styles a Printer draws with.
type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Box      lipgloss.Style
}

// NewTheme builds the theme for a renderer.
func NewTheme(r *lipgloss.Renderer) Theme {
	return Theme{
		Title:    r.NewStyle().Bold(true).Foreground(ColorTealBright),
		Subtitle: r.NewStyle().Foreground(ColorTealPrimary),
		Bold:     r.NewStyle().Bold(true),
		Muted:    r.NewStyle().Foreground(ColorSlate),
		Success:  r.NewStyle().Foreground(ColorSuccess),
		Warning:  r.NewStyle().Foreground(ColorWarning),
		Error:    r.NewStyle().Foreground(ColorError),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
	}
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled lines to one writer.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	w     io.Writer
	theme Theme
}

// NewPrinter creates a Printer whose color profile follows w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, theme: NewTheme(lipgloss.NewRenderer(w))}
}

// Theme returns the printer's styles.
func (p *Printer) Theme() Theme { return p.theme }

// Icon renders an icon in its semantic color.
func (p *Printer) Icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.theme.Success.Render(string(i))
	case IconWarning:
		return p.theme.Warning.Render(string(i))
	case IconError:
		return p.theme.Error.Render(string(i))
	case IconPending:
		return p.theme.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.w, p.theme.Title.Render(text))
}

// Subtitle prints a secondary heading.
func (p *Printer) Subtitle(text string) {
	fmt.Fprintln(p.w, p.theme.Subtitle.Render(text))
}

// Success prints a line prefixed with a check mark.
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Icon(IconSuccess), p.theme.Success.Render(text))
}

// Warning prints a line prefixed with a warning sign.
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Icon(IconWarning), p.theme.Warning.Render(text))
}

// Error prints a line prefixed with a cross.
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Icon(IconError), p.theme.Error.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	fmt.Fprintf(p.w, "%s %s\n", p.theme.Muted.Render("│"), text)
}

// Muted prints secondary text.
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.w, p.theme.Muted.Render(text))
}

// Box prints a titled block of text in a rounded border.
func (p *Printer) Box(title, content string) {
	fmt.Fprintln(p.w, p.theme.Box.Render(p.theme.Title.Render(title)+"\n"+content))
}

// Blank prints an empty line.
func (p *Printer) Blank() {
	fmt.Fprintln(p.w)
}

// Count is one labelled number in a Summary line.
type Count struct {
	Label string
	Value int
	Style lipgloss.Style
}

// Summary prints counts on one line, e.g. "10 succeeded  2 failed".
func (p *Printer) Summary(counts ...Count) {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s %s", c.Style.Render(fmt.Sprintf("%d", c.Value)), p.theme.Muted.Render(c.Label)))
	}
	fmt.Fprintln(p.w, strings.Join(parts, "  "))
}

// Score renders a similarity percentage in its band color.
func (p *Printer) Score(score float64) string {
	text := fmt.Sprintf("%6.2f", score)
	switch {
	case score >= SuspiciousScore:
		return p.theme.Error.Bold(true).Render(text)
	case score >= ElevatedScore:
		return p.theme.Warning.Render(text)
	default:
		return p.theme.Success.Render(text)
	}
}

// Table prints rows under a bold header with columns padded to the widest
// cell. Cells may already be styled; widths ignore escape sequences.
func (p *Printer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = p.theme.Bold.Render(h)
	}
	p.row(styled, widths)
	for _, row := range rows {
		p.row(row, widths)
	}
}

func (p *Printer) row(cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		b.WriteString(cell)
		if i < len(widths)-1 && i < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
		}
	}
	fmt.Fprintln(p.w, b.String())
}
