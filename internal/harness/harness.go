// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aibor/hnxboot/internal/pipe"
	"github.com/aibor/hnxboot/internal/qemu"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Default durations.
const (
	DefaultTimeoutGrace   = 5 * time.Second
	DefaultInterruptGrace = 3 * time.Second
	DefaultDrainGrace     = time.Second
)

// Log file names in the log directory.
const (
	StdoutLogName = "qemu_stdout.log"
	StderrLogName = "qemu_stderr.log"

	logDirPattern = "hnx_qemu_*"
	logFileMode   = 0o644
	logDirMode    = 0o755
)

// Harness runs a command under supervision.
type Harness struct {
	// Launcher starts the process. Defaults to [ExecLauncher] with
	// [os.Stdin].
	Launcher ProcessLauncher

	// Timeout after which the process is terminated. Zero disables it.
	Timeout time.Duration

	// TimeoutGrace is the time the process has to exit after SIGTERM once
	// the timeout is reached, before it is killed.
	TimeoutGrace time.Duration

	// InterruptGrace is the time the process has to exit after SIGTERM once
	// the context is cancelled, before it is killed.
	InterruptGrace time.Duration

	// DrainGrace bounds the wait for the output streams to be drained after
	// the process exited.
	DrainGrace time.Duration

	// LogDir receives the log files. A new temporary directory is created
	// if empty.
	LogDir string

	// Stdout and Stderr receive the output in addition to the log files.
	// Default to [os.Stdout] and [os.Stderr].
	Stdout io.Writer
	Stderr io.Writer
}

// shared is the state shared between the control path and the timer.
// Whoever sets terminating first owns the termination of the process.
type shared struct {
	process     Process
	terminating atomic.Bool
	timedOut    atomic.Bool
	exited      chan struct{}
}

// Run spawns the command and supervises it until it terminates.
//
// The context is the operator interrupt: cancelling it terminates the
// process and the result is reported in [StateKilled] with
// [ExitCodeInterrupted]. Reaching the timeout is not an error. The result is
// reported in [StateTimedOut] with exit code 0.
//
// A [*SpawnError] is returned if the process can not be started.
func (h *Harness) Run(ctx context.Context, cmd *qemu.Command) (*Result, error) {
	state := StateIdle
	logger := slog.With(slog.String("run", uuid.NewString()))

	transition := func(next State) {
		logger.Debug("State transition",
			slog.String("from", state.String()),
			slog.String("to", next.String()))

		state = next
	}

	transition(StateStarting)

	logs, err := h.openLogs()
	if err != nil {
		return nil, err
	}
	defer logs.close()

	result := &Result{
		StdoutLog: logs.stdout.Name(),
		StderrLog: logs.stderr.Name(),
	}

	logger.Info("Starting QEMU", slog.String("command", cmd.String()))

	start := time.Now()

	process, err := h.launcher().Launch(cmd.Executable, cmd.Args)
	if err != nil {
		return nil, &SpawnError{Executable: cmd.Executable, Err: err}
	}

	transition(StateRunning)

	run := &shared{
		process: process,
		exited:  make(chan struct{}),
	}

	var pipes pipe.Pipes

	pipes.Run(&pipe.Pipe{
		Name:        "stdout",
		InputReader: process.Stdout(),
		InputCloser: process.Stdout(),
		Output:      io.MultiWriter(h.stdout(), logs.stdout),
		CopyFunc:    pipe.CopyLines,
		MayBeSilent: true,
	})
	pipes.Run(&pipe.Pipe{
		Name:        "stderr",
		InputReader: process.Stderr(),
		InputCloser: process.Stderr(),
		Output:      io.MultiWriter(h.stderr(), logs.stderr),
		CopyFunc:    pipe.CopyLines,
		MayBeSilent: true,
	})

	var (
		exitCode int
		waitErr  error
	)

	go func() {
		exitCode, waitErr = process.Wait()
		close(run.exited)
	}()

	stopTimer := h.armTimeout(logger, run)

	interrupted := false

	select {
	case <-run.exited:
	case <-ctx.Done():
		if run.terminating.CompareAndSwap(false, true) {
			interrupted = true

			logger.Warn("Interrupted, terminating QEMU")
			terminate(logger, process, h.interruptGrace(), run.exited)
		} else {
			logger.Warn("Interrupted while terminating after timeout")
		}

		<-run.exited
	}

	stopTimer()

	result.Duration = time.Since(start)

	h.drain(logger, &pipes)

	if waitErr != nil {
		logger.Warn("Failed to wait for process", slog.Any("error", waitErr))
	}

	switch {
	case run.timedOut.Load():
		transition(StateTimedOut)

		result.KilledByTimeout = true
		result.ExitCode = 0
	case interrupted:
		transition(StateKilled)

		result.ExitCode = ExitCodeInterrupted
	default:
		transition(StateExited)

		result.ExitCode = exitCode
	}

	result.State = state

	logger.Info("QEMU finished",
		slog.String("state", result.State.String()),
		slog.Int("exit_code", result.ExitCode),
		slog.Int("process_exit_code", exitCode),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// armTimeout starts the timeout timer if a timeout is set. The returned
// function disarms the timer or, if it already fired, waits for it to
// finish.
func (h *Harness) armTimeout(logger *slog.Logger, run *shared) func() {
	if h.Timeout <= 0 {
		return func() {}
	}

	fired := make(chan struct{})

	timer := time.AfterFunc(h.Timeout, func() {
		defer close(fired)

		select {
		case <-run.exited:
			return
		default:
		}

		if !run.terminating.CompareAndSwap(false, true) {
			return
		}

		run.timedOut.Store(true)

		logger.Warn("Timeout reached, terminating QEMU",
			slog.Duration("timeout", h.Timeout))
		terminate(logger, run.process, h.timeoutGrace(), run.exited)
	})

	return func() {
		if !timer.Stop() {
			<-fired
		}
	}
}

// terminate sends SIGTERM to the process and kills it if it did not exit
// within grace.
func terminate(logger *slog.Logger, process Process, grace time.Duration, exited <-chan struct{}) {
	err := process.Signal(unix.SIGTERM)
	if err != nil {
		logger.Warn("Failed to send SIGTERM", slog.Any("error", err))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exited:
		return
	case <-timer.C:
	}

	logger.Warn("QEMU did not terminate gracefully, killing",
		slog.Duration("grace", grace))

	err = process.Kill()
	if err != nil {
		logger.Warn("Failed to kill process", slog.Any("error", err))
	}
}

// drain waits for the output to be copied completely. If this takes longer
// than the grace period, the read ends are closed and the copies are
// awaited once more.
func (h *Harness) drain(logger *slog.Logger, pipes *pipe.Pipes) {
	grace := h.drainGrace()

	err := pipes.Wait(grace)
	if errors.Is(err, pipe.ErrWaitTimeout) {
		logger.Warn("Output not drained in time, closing streams",
			slog.Duration("grace", grace))

		_ = pipes.Close()
		err = pipes.Wait(grace)
	}

	if err != nil {
		logger.Warn("Output draining failed", slog.Any("error", err))
	}

	_ = pipes.Close()
}

type logFiles struct {
	stdout *os.File
	stderr *os.File
}

func (l *logFiles) close() {
	_ = l.stdout.Close()
	_ = l.stderr.Close()
}

func (h *Harness) openLogs() (*logFiles, error) {
	dir := h.LogDir

	if dir == "" {
		tmp, err := os.MkdirTemp("", logDirPattern)
		if err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}

		dir = tmp
	} else if err := os.MkdirAll(dir, logDirMode); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	open := func(name string) (*os.File, error) {
		path := filepath.Join(dir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, logFileMode)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}

		return file, nil
	}

	stdout, err := open(StdoutLogName)
	if err != nil {
		return nil, err
	}

	stderr, err := open(StderrLogName)
	if err != nil {
		_ = stdout.Close()
		return nil, err
	}

	return &logFiles{stdout: stdout, stderr: stderr}, nil
}

func (h *Harness) launcher() ProcessLauncher {
	if h.Launcher != nil {
		return h.Launcher
	}

	return ExecLauncher{Stdin: os.Stdin}
}

func (h *Harness) stdout() io.Writer {
	if h.Stdout != nil {
		return h.Stdout
	}

	return os.Stdout
}

func (h *Harness) stderr() io.Writer {
	if h.Stderr != nil {
		return h.Stderr
	}

	return os.Stderr
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}

	return fallback
}

func (h *Harness) timeoutGrace() time.Duration {
	return orDefault(h.TimeoutGrace, DefaultTimeoutGrace)
}

func (h *Harness) interruptGrace() time.Duration {
	return orDefault(h.InterruptGrace, DefaultInterruptGrace)
}

func (h *Harness) drainGrace() time.Duration {
	return orDefault(h.DrainGrace, DefaultDrainGrace)
}
