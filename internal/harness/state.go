// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness

import (
	"fmt"
	"time"
)

// State is a stage in the lifecycle of a supervised process.
type State int

// States in lifecycle order. [StateExited], [StateTimedOut] and
// [StateKilled] are terminal.
const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateExited
	StateTimedOut
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateTimedOut:
		return "timed out"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports if no further transition is possible.
func (s State) Terminal() bool {
	return s >= StateExited && s <= StateKilled
}

// ExitCodeInterrupted is reported if the run was cancelled by the operator.
const ExitCodeInterrupted = 130

// Result is the outcome of a run.
type Result struct {
	// ExitCode is the exit code of the process. A negative value -n means
	// the process was terminated by signal n. It is 0 for [StateTimedOut]
	// and [ExitCodeInterrupted] for [StateKilled].
	ExitCode int

	// KilledByTimeout is set if the timeout was reached.
	KilledByTimeout bool

	// State is the terminal state.
	State State

	// Paths of the log files.
	StdoutLog string
	StderrLog string

	// Duration from spawn to exit of the process.
	Duration time.Duration
}
