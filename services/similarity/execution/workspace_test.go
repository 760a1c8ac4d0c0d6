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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pairwise/services/similarity"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewWorkspace_CopiesBothSidesWithoutHiddenFiles(t *testing.T) {
	left := t.TempDir()
	writeFile(t, filepath.Join(left, "Main.java"), "class Main {}")
	writeFile(t, filepath.Join(left, "util", "Helper.java"), "class Helper {}")
	writeFile(t, filepath.Join(left, ".hidden"), "secret")
	writeFile(t, filepath.Join(left, ".git", "HEAD"), "ref")

	right := t.TempDir()
	writeFile(t, filepath.Join(right, "Other.java"), "class Other {}")

	ws, err := NewWorkspace(t.TempDir(), left, right)
	require.NoError(t, err)
	defer ws.Close()

	assert.True(t, strings.HasPrefix(filepath.Base(ws.Root()), workspacePrefix))
	assert.FileExists(t, filepath.Join(ws.Left(), "Main.java"))
	assert.FileExists(t, filepath.Join(ws.Left(), "util", "Helper.java"))
	assert.NoFileExists(t, filepath.Join(ws.Left(), ".hidden"))
	assert.NoDirExists(t, filepath.Join(ws.Left(), ".git"))
	assert.FileExists(t, filepath.Join(ws.Right(), "Other.java"))

	data, err := os.ReadFile(filepath.Join(ws.Left(), "util", "Helper.java"))
	require.NoError(t, err)
	assert.Equal(t, "class Helper {}", string(data))
}

func TestNewWorkspace_SingleFileInputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.c"), "int a;")
	writeFile(t, filepath.Join(dir, "b.c"), "int b;")

	ws, err := NewWorkspace("", filepath.Join(dir, "a.c"), filepath.Join(dir, "b.c"))
	require.NoError(t, err)
	defer ws.Close()

	assert.FileExists(t, filepath.Join(ws.Left(), "a.c"))
	assert.FileExists(t, filepath.Join(ws.Right(), "b.c"))
}

func TestNewWorkspace_MissingInputLeavesNothingBehind(t *testing.T) {
	parent := t.TempDir()

	_, err := NewWorkspace(parent, t.TempDir(), filepath.Join(parent, "does-not-exist"))
	require.Error(t, err)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewWorkspace_EmptyInput(t *testing.T) {
	_, err := NewWorkspace(t.TempDir(), "", t.TempDir())
	assert.ErrorIs(t, err, similarity.ErrInvalidInput)
}

func TestNewWorkspace_DistinctRoots(t *testing.T) {
	parent, left, right := t.TempDir(), t.TempDir(), t.TempDir()

	a, err := NewWorkspace(parent, left, right)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewWorkspace(parent, left, right)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.Root(), b.Root())
}

func TestWorkspace_CloseIsIdempotent(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), t.TempDir(), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())
	assert.NoDirExists(t, ws.Root())

	var nilWorkspace *Workspace
	assert.NoError(t, nilWorkspace.Close())
}
