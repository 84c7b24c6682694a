// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Process is a started process.
type Process interface {
	// Stdout and Stderr return the read ends of the output streams. They
	// are closed by the caller.
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser

	// Signal sends sig to the process. Signaling a process that already
	// exited is not an error.
	Signal(sig os.Signal) error

	// Kill kills the process. Killing a process that already exited is not
	// an error.
	Kill() error

	// Wait waits for the process to exit and returns its exit code. A
	// negative value -n means the process was terminated by signal n.
	Wait() (int, error)
}

// ProcessLauncher starts processes.
type ProcessLauncher interface {
	Launch(executable string, args []string) (Process, error)
}

// ExecLauncher is a [ProcessLauncher] that starts host processes. Output is
// passed through [os.Pipe]s, so the read ends can be closed while the child
// or any of its children still holds the write ends.
type ExecLauncher struct {
	// Stdin of the process. If nil, the null device is used.
	Stdin io.Reader
}

var _ ProcessLauncher = ExecLauncher{}

// Launch implements [ProcessLauncher].
func (l ExecLauncher) Launch(executable string, args []string) (Process, error) {
	stdoutReader, stdoutWriter, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderrReader, stderrWriter, err := os.Pipe()
	if err != nil {
		_ = stdoutReader.Close()
		_ = stdoutWriter.Close()

		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdin = l.Stdin
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	err = cmd.Start()

	// The child has its own copies of the write ends now. Only once all of
	// them are closed, the readers receive EOF.
	_ = stdoutWriter.Close()
	_ = stderrWriter.Close()

	if err != nil {
		_ = stdoutReader.Close()
		_ = stderrReader.Close()

		return nil, err //nolint:wrapcheck
	}

	return &execProcess{
		cmd:    cmd,
		stdout: stdoutReader,
		stderr: stderrReader,
	}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *execProcess) Stdout() io.ReadCloser {
	return p.stdout
}

func (p *execProcess) Stderr() io.ReadCloser {
	return p.stderr
}

func (p *execProcess) Signal(sig os.Signal) error {
	return ignoreProcessDone(p.cmd.Process.Signal(sig))
}

func (p *execProcess) Kill() error {
	return ignoreProcessDone(p.cmd.Process.Kill())
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()

	state := p.cmd.ProcessState
	if state == nil {
		return 0, fmt.Errorf("wait: %w", err)
	}

	return ExitCode(state), nil
}

func ignoreProcessDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}

	return err //nolint:wrapcheck
}

// ExitCode returns the exit code of the terminated process. If it was
// terminated by a signal, the negative signal number is returned.
func ExitCode(state *os.ProcessState) int {
	status, ok := state.Sys().(syscall.WaitStatus)
	if ok && status.Signaled() {
		return -int(status.Signal())
	}

	return state.ExitCode()
}
