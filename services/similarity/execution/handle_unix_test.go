// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package execution

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// =============================================================================
// Process Group Tests
// =============================================================================

// processAlive reports whether pid exists and is not a zombie waiting to be
// reaped by init.
func processAlive(pid int) bool {
	if err := unix.Kill(pid, 0); err != nil {
		return false
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return true
	}
	s := string(stat)
	fields := strings.Fields(s[strings.LastIndex(s, ")")+1:])
	return len(fields) == 0 || (fields[0] != "Z" && fields[0] != "X")
}

// readChildPID waits for the script to write the forked child's pid.
func readChildPID(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil || !strings.HasSuffix(string(data), "\n") {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

func TestHandle_CloseKillsForkedChildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	h, err := Spawn(context.Background(),
		shell(`sleep 60 & echo $! > "`+pidFile+`"; wait`, &scoreCompleter{}))
	require.NoError(t, err)

	child := readChildPID(t, pidFile)
	require.True(t, processAlive(child))

	pgid, err := unix.Getpgid(child)
	require.NoError(t, err)
	assert.Equal(t, h.cmd.Process.Pid, pgid, "child runs in the handle's process group")

	require.NoError(t, h.Interrupt())
	start := time.Now()
	require.NoError(t, h.Close())
	assert.Less(t, time.Since(start), waitDelay, "Close must not wait out the pipe drain delay")

	assert.Eventually(t, func() bool { return !processAlive(child) }, 5*time.Second, 10*time.Millisecond,
		"forked child %d still running after Close", child)
}

func TestHandle_CloseKillsChildrenOfExitedLeader(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	h, err := Spawn(context.Background(),
		shell(`sleep 60 & echo $! > "`+pidFile+`"`, &scoreCompleter{}))
	require.NoError(t, err)

	child := readChildPID(t, pidFile)

	start := time.Now()
	require.NoError(t, h.Close())
	assert.Less(t, time.Since(start), waitDelay)

	assert.Eventually(t, func() bool { return !processAlive(child) }, 5*time.Second, 10*time.Millisecond,
		"background child %d survived Close", child)
}
