// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the pairwise YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/pairwise/services/similarity"
	"github.com/AleutianAI/pairwise/services/similarity/detector"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "PAIRWISE_CONFIG"

// Config is the full pairwise configuration.
//
// Example:
//
//	concurrency: 4
//	progress_interval: 5s
//	timeout: 2m
//	extensions: [.java]
//	logging: {level: info}
//	telemetry: {traces: none, metrics: prometheus, metrics_addr: ":9464"}
//	detectors:
//	  - id: sim
//	    command: sim_java
//	    args: ["-p", "-T", "{left}", "/", "{right}"]
type Config struct {
	// Concurrency is the number of comparisons in flight at once.
	Concurrency int `yaml:"concurrency" validate:"gte=1"`

	// ProgressInterval between "awaiting N comparisons" lines. 0 disables.
	ProgressInterval time.Duration `yaml:"progress_interval" validate:"gte=0"`

	// Timeout per comparison. A positive value switches to async mode.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// Extensions select source files in every submission.
	Extensions []string `yaml:"extensions"`

	// ProvisionDir receives detector payloads. Empty means a temp dir.
	ProvisionDir string `yaml:"provision_dir"`

	// WorkspaceDir receives per-pair workspaces. Empty means os.TempDir().
	WorkspaceDir string `yaml:"workspace_dir"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Detectors are validated by detector.ToolConfig.Validate.
	Detectors []detector.ToolConfig `yaml:"detectors" validate:"-"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"omitempty,oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" validate:"omitempty,oneof=none stdout prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`

	// MetricsAddr serves /metrics during evaluate when set.
	MetricsAddr string `yaml:"metrics_addr"`
}

var configValidate = validator.New()

// Default returns a configuration with no detectors.
func Default() Config {
	return Config{
		Concurrency:      4,
		ProgressInterval: 5 * time.Second,
		Extensions:       []string{},
		Logging:          LoggingConfig{Level: "info"},
		Telemetry:        TelemetryConfig{Traces: "none", Metrics: "none"},
		Detectors:        []detector.ToolConfig{},
	}
}

// DefaultPath returns $PAIRWISE_CONFIG or ~/.pairwise/pairwise.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".pairwise", "pairwise.yaml"), nil
}

// Load reads and validates the config at path.
//
// Description:
//
//	Unset fields keep their Default() values. An empty path means
//	DefaultPath(); a missing file at the default path yields Default()
//	while a missing explicit path is an error.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges, every detector config and detector ID
// uniqueness.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", similarity.ErrInvalidInput, err)
	}
	seen := make(map[string]bool, len(c.Detectors))
	for _, d := range c.Detectors {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: detector %q defined twice", similarity.ErrInvalidInput, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// WriteDefault writes Default() to path, creating parent directories.
// An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s already exists", fs.ErrExist, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
