// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package execution

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/pairwise/services/similarity"
)

const (
	// LeftDir is the workspace subdirectory holding the left input copy.
	LeftDir = "lhs"

	// RightDir is the workspace subdirectory holding the right input copy.
	RightDir = "rhs"

	workspacePrefix = "pairwise-"
)

// Workspace is a private temporary copy of one pair's inputs.
//
// Description:
//
//	Layout:
//
//	  {Root}/lhs/...   copy of the left submission
//	  {Root}/rhs/...   copy of the right submission
//
//	Root is named after a fresh UUID, so two workspaces never share a
//	directory. Hidden files and directories are not copied.
//
// Thread Safety: Close is safe to call concurrently and more than once.
type Workspace struct {
	root string

	closeOnce sync.Once
	closeErr  error
}

// NewWorkspace creates a workspace under parent and copies both inputs.
//
// Inputs:
//
//	parent - Directory to create the workspace in. Empty means os.TempDir().
//	left - Left submission directory or file.
//	right - Right submission directory or file.
//
// Outputs:
//
//	*Workspace - The populated workspace. Caller must Close it.
//	error - Non-nil if either input is missing or the copy fails. Nothing
//	        is left on disk in that case.
func NewWorkspace(parent, left, right string) (*Workspace, error) {
	if left == "" || right == "" {
		return nil, fmt.Errorf("%w: workspace inputs must not be empty", similarity.ErrInvalidInput)
	}
	if parent == "" {
		parent = os.TempDir()
	}
	root := filepath.Join(parent, workspacePrefix+uuid.NewString())
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	w := &Workspace{root: root}
	if err := copyInput(left, w.Left()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("copying left input: %w", err)
	}
	if err := copyInput(right, w.Right()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("copying right input: %w", err)
	}
	return w, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Left returns the directory holding the left input copy.
func (w *Workspace) Left() string { return filepath.Join(w.root, LeftDir) }

// Right returns the directory holding the right input copy.
func (w *Workspace) Right() string { return filepath.Join(w.root, RightDir) }

// Close removes the workspace from disk. Later calls return nil.
func (w *Workspace) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		w.closeErr = os.RemoveAll(w.root)
	})
	return w.closeErr
}

// copyInput copies src into dst. A directory is copied recursively without
// hidden entries; a single file is copied into dst under its own name.
func copyInput(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, filepath.Join(dst, filepath.Base(src)), info.Mode())
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		if similarity.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
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
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
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
