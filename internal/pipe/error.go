// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOutput is returned if a stream that must not be silent ended
	// without a single byte.
	ErrNoOutput = errors.New("stream ended without output")

	// ErrWaitTimeout is returned if the streams are not drained within the
	// allowed time.
	ErrWaitTimeout = errors.New("drain timed out")
)

// StreamError is returned if draining a named output stream fails.
type StreamError struct {
	// Stream is the name of the failed [Pipe], like "stdout".
	Stream string

	// Copied is the number of bytes written to the output before the
	// failure.
	Copied int64

	Err error
}

// Error implements the [error] interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream after %d bytes: %v", e.Stream, e.Copied, e.Err)
}

// Is implements the [errors.Is] interface.
func (*StreamError) Is(other error) bool {
	_, ok := other.(*StreamError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *StreamError) Unwrap() error {
	return e.Err
}
