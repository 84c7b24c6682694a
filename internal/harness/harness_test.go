// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aibor/hnxboot/internal/harness"
	"github.com/aibor/hnxboot/internal/qemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func shell(t *testing.T, script string) *qemu.Command {
	t.Helper()

	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	return &qemu.Command{Executable: path, Args: []string{"-c", script}}
}

type testHarness struct {
	*harness.Harness
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{}
	h.Harness = &harness.Harness{
		Launcher:       harness.ExecLauncher{},
		TimeoutGrace:   time.Second,
		InterruptGrace: time.Second,
		DrainGrace:     200 * time.Millisecond,
		LogDir:         t.TempDir(),
		Stdout:         &h.stdout,
		Stderr:         &h.stderr,
	}

	return h
}

func readLog(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestHarness_Exited(t *testing.T) {
	tests := []struct {
		name             string
		script           string
		expectedExitCode int
		expectedStdout   string
		expectedStderr   string
	}{
		{
			name:           "success",
			script:         "echo hello; echo world >&2",
			expectedStdout: "hello\n",
			expectedStderr: "world\n",
		},
		{
			name:             "exit code",
			script:           "echo failing; exit 7",
			expectedExitCode: 7,
			expectedStdout:   "failing\n",
		},
		{
			name:             "signal",
			script:           "kill -9 $$",
			expectedExitCode: -9,
		},
		{
			name:           "missing trailing newline",
			script:         "printf 'no newline'",
			expectedStdout: "no newline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.Timeout = time.Minute

			result, err := h.Run(t.Context(), shell(t, tt.script))
			require.NoError(t, err)

			assert.Equal(t, harness.StateExited, result.State)
			assert.Equal(t, tt.expectedExitCode, result.ExitCode)
			assert.False(t, result.KilledByTimeout)
			assert.Positive(t, result.Duration)

			assert.Equal(t, tt.expectedStdout, h.stdout.String())
			assert.Equal(t, tt.expectedStderr, h.stderr.String())
			assert.Equal(t, tt.expectedStdout, readLog(t, result.StdoutLog))
			assert.Equal(t, tt.expectedStderr, readLog(t, result.StderrLog))
		})
	}
}

func TestHarness_TimedOut(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{
			name:   "terminates on SIGTERM",
			script: "echo started; exec sleep 30",
		},
		{
			name:   "ignores SIGTERM",
			script: "trap '' TERM; echo started; exec sleep 30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.Timeout = 300 * time.Millisecond
			h.TimeoutGrace = 300 * time.Millisecond

			result, err := h.Run(t.Context(), shell(t, tt.script))
			require.NoError(t, err)

			assert.Equal(t, harness.StateTimedOut, result.State)
			assert.True(t, result.KilledByTimeout)
			assert.Equal(t, 0, result.ExitCode)
			assert.Less(t, result.Duration, 10*time.Second)
			assert.Equal(t, "started\n", readLog(t, result.StdoutLog))
		})
	}
}

func TestHarness_Interrupted(t *testing.T) {
	h := newHarness(t)
	h.Timeout = time.Minute

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()

	result, err := h.Run(ctx, shell(t, "echo started; exec sleep 30"))
	require.NoError(t, err)

	assert.Equal(t, harness.StateKilled, result.State)
	assert.Equal(t, harness.ExitCodeInterrupted, result.ExitCode)
	assert.False(t, result.KilledByTimeout)
	assert.Less(t, result.Duration, 10*time.Second)
}

// signalCounter counts the signals sent to the processes it launches.
type signalCounter struct {
	harness.ExecLauncher
	signals atomic.Int32
}

type countedProcess struct {
	harness.Process
	counter *signalCounter
}

func (p *countedProcess) Signal(sig os.Signal) error {
	p.counter.signals.Add(1)
	return p.Process.Signal(sig) //nolint:wrapcheck
}

func (c *signalCounter) Launch(executable string, args []string) (harness.Process, error) {
	process, err := c.ExecLauncher.Launch(executable, args)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &countedProcess{Process: process, counter: c}, nil
}

func TestHarness_InterruptedDuringTimeoutGrace(t *testing.T) {
	counter := &signalCounter{}

	h := newHarness(t)
	h.Launcher = counter
	h.Timeout = 100 * time.Millisecond
	h.TimeoutGrace = time.Second
	h.InterruptGrace = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(t.Context(), 400*time.Millisecond)
	defer cancel()

	start := time.Now()

	result, err := h.Run(ctx, shell(t, "trap '' TERM; echo started; exec sleep 30"))
	require.NoError(t, err)

	assert.Equal(t, harness.StateTimedOut, result.State)
	assert.True(t, result.KilledByTimeout)
	assert.Equal(t, 0, result.ExitCode)
	assert.EqualValues(t, 1, counter.signals.Load(), "SIGTERM sent once")
	// Killed after the timeout grace, not after the shorter interrupt grace.
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestHarness_NoTimeout(t *testing.T) {
	h := newHarness(t)

	result, err := h.Run(t.Context(), shell(t, "sleep 0.2; exit 3"))
	require.NoError(t, err)

	assert.Equal(t, harness.StateExited, result.State)
	assert.Equal(t, 3, result.ExitCode)
}

func TestHarness_SpawnFailure(t *testing.T) {
	h := newHarness(t)
	h.Timeout = time.Minute

	cmd := &qemu.Command{Executable: filepath.Join(t.TempDir(), "qemu-system-none")}

	result, err := h.Run(t.Context(), cmd)
	require.ErrorIs(t, err, harness.ErrSpawnFailed)
	require.ErrorIs(t, err, &harness.SpawnError{})
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "qemu-system-none")
}

func TestHarness_OrphanHoldsOutput(t *testing.T) {
	h := newHarness(t)

	start := time.Now()

	// The background process inherits stdout and keeps it open after the
	// shell exited.
	result, err := h.Run(t.Context(), shell(t, "sleep 5 & echo done"))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, harness.StateExited, result.State)
	assert.Equal(t, "done\n", readLog(t, result.StdoutLog))
}

func TestHarness_InterleavedStreams(t *testing.T) {
	const numLines = 10000

	h := newHarness(t)
	h.DrainGrace = 5 * time.Second

	script := fmt.Sprintf(
		`i=0; while [ $i -lt %d ]; do echo "out $i"; echo "err $i" >&2; i=$((i+1)); done`,
		numLines,
	)

	result, err := h.Run(t.Context(), shell(t, script))
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)

	var expectedOut, expectedErr strings.Builder

	for idx := range numLines {
		fmt.Fprintf(&expectedOut, "out %d\n", idx)
		fmt.Fprintf(&expectedErr, "err %d\n", idx)
	}

	assert.Equal(t, expectedOut.String(), h.stdout.String())
	assert.Equal(t, expectedErr.String(), h.stderr.String())
	assert.Equal(t, expectedOut.String(), readLog(t, result.StdoutLog))
	assert.Equal(t, expectedErr.String(), readLog(t, result.StderrLog))
}

func TestHarness_DefaultLogDir(t *testing.T) {
	h := newHarness(t)
	h.LogDir = ""

	result, err := h.Run(t.Context(), shell(t, "echo hi"))
	require.NoError(t, err)

	dir := filepath.Dir(result.StdoutLog)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	assert.True(t, strings.HasPrefix(filepath.Base(dir), "hnx_qemu_"), dir)
	assert.Equal(t, harness.StdoutLogName, filepath.Base(result.StdoutLog))
	assert.Equal(t, filepath.Join(dir, harness.StderrLogName), result.StderrLog)
	assert.Equal(t, "hi\n", readLog(t, result.StdoutLog))
}
