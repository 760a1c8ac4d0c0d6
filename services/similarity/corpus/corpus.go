// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus discovers submissions and their source files on disk.
//
// A corpus root holds one directory per submission. Hidden entries and
// plain files at the root are ignored. Submission IDs are the directory
// names and are returned in lexical order so that pair enumeration is
// stable from run to run.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/pairwise/services/similarity"
)

// DefaultListLimit bounds concurrent directory walks in Load.
const DefaultListLimit = 8

// ListSubmissions returns one submission per non-hidden directory in root.
//
// Outputs:
//
//	[]similarity.Submission - Sorted by ID, Files left empty.
//	error - Non-nil if root cannot be read.
func ListSubmissions(root string) ([]similarity.Submission, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: corpus root must not be empty", similarity.ErrInvalidInput)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus root: %w", err)
	}

	subs := make([]similarity.Submission, 0, len(entries))
	for _, entry := range entries {
		if similarity.IsHidden(entry.Name()) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			isDir = err == nil && info.IsDir()
		}
		if !isDir {
			continue
		}
		subs = append(subs, similarity.Submission{ID: entry.Name(), Path: path})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

// ListSourceFiles returns regular files under path with a recognized
// extension, relative to path and sorted.
//
// Description:
//
//	Hidden files and everything below hidden directories are skipped.
//	Extensions compare case-insensitively and may be given with or
//	without the leading dot. An empty extension list accepts every file.
//	A path naming a single file yields that file's base name if it
//	matches.
func ListSourceFiles(path string, extensions []string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("listing source files: %w", err)
	}
	match := extensionMatcher(extensions)
	if !info.IsDir() {
		if match(path) {
			return []string{filepath.Base(path)}, nil
		}
		return []string{}, nil
	}

	files := []string{}
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == path {
			return nil
		}
		if similarity.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !match(p) {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing source files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Load lists the submissions of root and the source files of each.
//
// Description:
//
//	Submission directories are walked concurrently, at most limit at a
//	time (DefaultListLimit when limit < 1). The first walk error cancels
//	the rest.
//
// Outputs:
//
//	similarity.Corpus - Submissions in ID order with Files populated.
//	error - Non-nil if root or any submission cannot be read.
func Load(ctx context.Context, root string, extensions []string, limit int) (similarity.Corpus, error) {
	if ctx == nil {
		return similarity.Corpus{}, fmt.Errorf("%w: ctx must not be nil", similarity.ErrInvalidInput)
	}
	subs, err := ListSubmissions(root)
	if err != nil {
		return similarity.Corpus{}, err
	}
	if limit < 1 {
		limit = DefaultListLimit
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range subs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files, err := ListSourceFiles(subs[i].Path, extensions)
			if err != nil {
				return fmt.Errorf("submission %s: %w", subs[i].ID, err)
			}
			subs[i].Files = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return similarity.Corpus{}, err
	}
	return similarity.Corpus{Root: root, Submissions: subs}, nil
}

// NormalizeExtensions lower-cases extensions and adds the leading dot.
func NormalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func extensionMatcher(extensions []string) func(string) bool {
	exts := NormalizeExtensions(extensions)
	if len(exts) == 0 {
		return func(string) bool { return true }
	}
	return func(p string) bool {
		ext := strings.ToLower(filepath.Ext(p))
		for _, want := range exts {
			if ext == want {
				return true
			}
		}
		return false
	}
}
