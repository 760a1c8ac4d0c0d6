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
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/pairwise/pkg/validation"
	"github.com/AleutianAI/pairwise/services/similarity"
)

// Runtime selects how a tool's executable is found.
type Runtime string

const (
	// RuntimeNative runs Command directly, resolved through PATH.
	RuntimeNative Runtime = "native"

	// RuntimeJava runs the JVM from JAVA_HOME or PATH. Command is ignored
	// and Args usually start with "-jar {payload_dir}/tool.jar".
	RuntimeJava Runtime = "java"
)

// OutputFormat selects how a tool's stdout is parsed.
type OutputFormat string

const (
	// OutputScore expects a single pair score on the last non-empty line.
	OutputScore OutputFormat = "score"

	// OutputMatrix expects one "left<sep>right<sep>score" line per file pair.
	OutputMatrix OutputFormat = "matrix"
)

// Placeholders expanded in Command, Args, FileArgs and Env values.
const (
	PlaceholderLeft       = "{left}"
	PlaceholderRight      = "{right}"
	PlaceholderWorkspace  = "{workspace}"
	PlaceholderPayloadDir = "{payload_dir}"
)

const (
	defaultSeparator = ":"
	defaultScale     = 1.0
)

// ToolConfig describes one external similarity tool.
//
// Example:
//
//	id: jplag-java
//	runtime: java
//	args: ["-jar", "{payload_dir}/jplag.jar", "java", "{left}", "{right}"]
//	env: {THRESHOLD: "12"}
//	payloads: [/opt/detectors/jplag.jar]
//	output: score
//	not_applicable: ["not enough tokens"]
type ToolConfig struct {
	// ID names the detector. Used in logs, metrics and the payload directory.
	ID string `yaml:"id" json:"id" validate:"required,detectorid"`

	// Description is shown by "pairwise detectors".
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Runtime defaults to native.
	Runtime Runtime `yaml:"runtime,omitempty" json:"runtime,omitempty" validate:"omitempty,oneof=native java"`

	// Command is the executable for the native runtime.
	Command string `yaml:"command,omitempty" json:"command,omitempty" validate:"required_unless=Runtime java,omitempty,placeholders"`

	// Args are passed on every pairwise comparison.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" validate:"dive,placeholders"`

	// FileArgs replace Args for CompareFiles. Falls back to Args.
	FileArgs []string `yaml:"file_args,omitempty" json:"file_args,omitempty" validate:"dive,placeholders"`

	// Env is added to the tool's environment.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" validate:"dive,keys,required,endkeys,placeholders"`

	// Payloads are files or directories copied into the payload directory.
	Payloads []string `yaml:"payloads,omitempty" json:"payloads,omitempty" validate:"dive,required"`

	// Output defaults to score.
	Output OutputFormat `yaml:"output,omitempty" json:"output,omitempty" validate:"omitempty,oneof=score matrix"`

	// Scale multiplies every reported score. Use 100 for tools reporting
	// fractions in [0,1]. Defaults to 1.
	Scale float64 `yaml:"scale,omitempty" json:"scale,omitempty" validate:"gte=0"`

	// Separator splits output fields. Defaults to ":".
	Separator string `yaml:"separator,omitempty" json:"separator,omitempty"`

	// Extensions restrict which files count as source. Overrides the
	// corpus-wide list when set.
	Extensions []string `yaml:"extensions,omitempty" json:"extensions,omitempty"`

	// NotApplicable lists output substrings meaning the tool declined to
	// judge the pair.
	NotApplicable []string `yaml:"not_applicable,omitempty" json:"not_applicable,omitempty" validate:"dive,required"`
}

var (
	toolValidate *validator.Validate

	placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)
	knownPlaceholders  = map[string]bool{
		PlaceholderLeft:       true,
		PlaceholderRight:      true,
		PlaceholderWorkspace:  true,
		PlaceholderPayloadDir: true,
	}
)

func init() {
	toolValidate = validator.New()
	_ = toolValidate.RegisterValidation("detectorid", validateDetectorID)
	_ = toolValidate.RegisterValidation("placeholders", validatePlaceholders)
}

// validateDetectorID keeps IDs usable as a directory name and metric label.
func validateDetectorID(fl validator.FieldLevel) bool {
	return validation.ValidateIdentifier(fl.Field().String()) == nil
}

// validatePlaceholders rejects {name} tokens that would never be expanded.
func validatePlaceholders(fl validator.FieldLevel) bool {
	for _, token := range placeholderPattern.FindAllString(fl.Field().String(), -1) {
		if !knownPlaceholders[token] {
			return false
		}
	}
	return true
}

// Validate checks the struct tags and cross-field rules.
func (c ToolConfig) Validate() error {
	if err := toolValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: detector %q: %v", similarity.ErrInvalidInput, c.ID, err)
	}
	return nil
}

// withDefaults fills unset optional fields.
func (c ToolConfig) withDefaults() ToolConfig {
	if c.Runtime == "" {
		c.Runtime = RuntimeNative
	}
	if c.Output == "" {
		c.Output = OutputScore
	}
	if c.Scale == 0 {
		c.Scale = defaultScale
	}
	if c.Separator == "" {
		c.Separator = defaultSeparator
	}
	return c
}

// expander substitutes placeholders for one invocation.
type expander struct {
	replacer *strings.Replacer
}

func newExpander(left, right, workspace, payloadDir string) expander {
	return expander{replacer: strings.NewReplacer(
		PlaceholderLeft, left,
		PlaceholderRight, right,
		PlaceholderWorkspace, workspace,
		PlaceholderPayloadDir, payloadDir,
	)}
}

func (e expander) expand(s string) string {
	return e.replacer.Replace(s)
}

func (e expander) expandAll(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = e.expand(a)
	}
	return out
}

// env renders the map as sorted KEY=value entries.
func (e expander) env(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e.expand(vars[k]))
	}
	return out
}
