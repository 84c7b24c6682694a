// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bootimg

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidMagic is returned if an image does not start with [Magic].
	ErrInvalidMagic = errors.New("invalid boot header magic")

	// ErrTruncated is returned if an image is shorter than its header claims.
	ErrTruncated = errors.New("image truncated")

	// ErrPayloadTooLarge is returned if a size or offset does not fit into
	// the 32 bit header fields.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrOutputIsSource is returned if the image would overwrite one of its
	// sources.
	ErrOutputIsSource = errors.New("output is a source file")

	// ErrCmdlineTooLong is returned if the command line including its
	// terminating NUL does not fit into the header.
	ErrCmdlineTooLong = errors.New("command line too long")
)

// ConvertError wraps any error of an [ImageConverter]. Conversion failures
// are not fatal for a build, the raw image stays usable.
type ConvertError struct {
	Format string
	Output []byte
	Err    error
}

// Error implements the [error] interface.
func (e *ConvertError) Error() string {
	msg := "convert to " + e.Format + ": " + e.Err.Error()

	if output := strings.TrimSpace(string(e.Output)); output != "" {
		msg += ": " + output
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*ConvertError) Is(other error) bool {
	_, ok := other.(*ConvertError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ConvertError) Unwrap() error {
	return e.Err
}
