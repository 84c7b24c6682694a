// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd

import (
	"errors"
	"strings"
)

var (
	// ErrMissingEntrypoint is returned in [ModeSimple] if no entrypoint is
	// found in the space directory.
	ErrMissingEntrypoint = errors.New("no entrypoint found")

	// ErrInvalidMode is returned for an unknown [Mode].
	ErrInvalidMode = errors.New("invalid initrd mode")
)

// PackError wraps any error of an [ArchivePacker] along with the diagnostic
// output of the tools involved, if any.
type PackError struct {
	Output []byte
	Err    error
}

// Error implements the [error] interface.
func (e *PackError) Error() string {
	msg := "pack: " + e.Err.Error()

	if output := strings.TrimSpace(string(e.Output)); output != "" {
		msg += ": " + output
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*PackError) Is(other error) bool {
	_, ok := other.(*PackError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *PackError) Unwrap() error {
	return e.Err
}
