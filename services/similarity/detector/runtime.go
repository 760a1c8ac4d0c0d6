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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// javaHomeEnv names the variable consulted before PATH for the java runtime.
const javaHomeEnv = "JAVA_HOME"

var errNotExecutable = errors.New("not an executable file")

// resolveExecutable returns the absolute path of the program a tool runs.
func resolveExecutable(runtime Runtime, command string) (string, error) {
	switch runtime {
	case RuntimeJava:
		return resolveJava()
	case RuntimeNative, "":
		return resolveCommand(command)
	default:
		return "", fmt.Errorf("unsupported runtime %q", runtime)
	}
}

// resolveJava prefers $JAVA_HOME/bin/java and falls back to PATH.
func resolveJava() (string, error) {
	if home := os.Getenv(javaHomeEnv); home != "" {
		candidate := filepath.Join(home, "bin", "java")
		if err := checkExecutable(candidate); err != nil {
			return "", fmt.Errorf("%s=%s: %w", javaHomeEnv, home, err)
		}
		return candidate, nil
	}
	path, err := exec.LookPath("java")
	if err != nil {
		return "", fmt.Errorf("java not found on PATH and %s unset: %w", javaHomeEnv, err)
	}
	return path, nil
}

func resolveCommand(command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("command must not be empty")
	}
	if strings.ContainsRune(command, filepath.Separator) {
		abs, err := filepath.Abs(command)
		if err != nil {
			return "", err
		}
		if err := checkExecutable(abs); err != nil {
			return "", fmt.Errorf("%s: %w", command, err)
		}
		return abs, nil
	}
	return exec.LookPath(command)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return errNotExecutable
	}
	return nil
}

// copyPayload copies a payload file or directory into dir under its base name.
func copyPayload(src, dir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if !info.IsDir() {
		return copyRegular(src, dst, info.Mode())
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyRegular(path, target, fi.Mode())
	})
}

func copyRegular(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
