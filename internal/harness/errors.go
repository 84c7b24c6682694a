// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package harness

import "errors"

// ErrSpawnFailed is returned if the process could not be started.
var ErrSpawnFailed = errors.New("spawn failed")

// SpawnError wraps any error that prevented the process from starting.
type SpawnError struct {
	Executable string
	Err        error
}

// Error implements the [error] interface.
func (e *SpawnError) Error() string {
	return ErrSpawnFailed.Error() + ": " + e.Executable + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*SpawnError) Is(other error) bool {
	if other == ErrSpawnFailed { //nolint:errorlint,err113
		return true
	}

	_, ok := other.(*SpawnError)

	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *SpawnError) Unwrap() error {
	return e.Err
}
