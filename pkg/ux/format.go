// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Format selects how a command writes its report.
type Format string

const (
	// FormatAuto picks FormatText on a terminal and FormatJSON otherwise.
	FormatAuto Format = "auto"

	// FormatText is styled, human-readable output.
	FormatText Format = "text"

	// FormatJSON is machine-readable output suitable for piping.
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned by ParseFormat for an unsupported name.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat converts a case-insensitive format name. The empty string is
// FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "text", "human":
		return FormatText, nil
	case "json", "machine":
		return FormatJSON, nil
	default:
		return FormatAuto, fmt.Errorf("%w: %q (want auto, text or json)", ErrUnknownFormat, s)
	}
}

// Resolve turns FormatAuto into a concrete format for w. Explicit formats
// are returned unchanged.
func (f Format) Resolve(w io.Writer) Format {
	if f != FormatAuto {
		return f
	}
	if IsTerminal(w) {
		return FormatText
	}
	return FormatJSON
}

// IsTerminal reports whether w is a terminal, including Cygwin and MSYS
// terminals on Windows. Anything that is not an *os.File is not a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
