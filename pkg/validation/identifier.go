// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for values that end up in
// file paths, metric labels or subprocess environments.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLength bounds detector identifiers.
const MaxIdentifierLength = 64

// identifierPattern matches identifiers that are safe as a directory name,
// a Prometheus label value and a log attribute.
// Allows: letters, digits, dots, underscores, hyphens; no leading punctuation.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateIdentifier validates a detector identifier.
//
// Valid identifiers:
//   - 1-64 characters
//   - Letters, digits, '.', '_' and '-'
//   - Start with a letter or digit, so ".." and "-rf" are rejected
//
// Example:
//
//	if err := validation.ValidateIdentifier(id); err != nil {
//	    return fmt.Errorf("invalid detector: %w", err)
//	}
//	// Safe to use as {provision_dir}/{id}
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("identifier %q is longer than %d characters", id, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier %q (letters, digits, '.', '_' or '-', starting with a letter or digit)", id)
	}
	return nil
}

// ValidateIdentifiers validates several identifiers and lists every invalid
// one in the error.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, fmt.Sprintf("%q", id))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// NormalizeIdentifier trims surrounding whitespace and validates the result.
func NormalizeIdentifier(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if err := ValidateIdentifier(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
