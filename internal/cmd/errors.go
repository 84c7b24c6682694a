// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"strconv"
)

// ErrImageNotFound is returned if the image to run does not exist.
var ErrImageNotFound = errors.New("image not found")

// ExitCodeError carries a non-zero exit code of the emulator, that is passed
// through as exit code of the command.
type ExitCodeError struct {
	Code int
}

// Error implements the [error] interface.
func (e *ExitCodeError) Error() string {
	return "exit code " + strconv.Itoa(e.Code)
}

// Is implements the [errors.Is] interface.
func (*ExitCodeError) Is(other error) bool {
	_, ok := other.(*ExitCodeError)
	return ok
}
