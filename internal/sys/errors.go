// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import "errors"

var (
	// ErrEmptyPath is returned if an empty path is given.
	ErrEmptyPath = errors.New("path must not be empty")

	// ErrArchNotSupported is returned if the requested architecture is not
	// supported for the requested operation.
	ErrArchNotSupported = errors.New("architecture not supported")

	// ErrSourceNotFound is returned if a required input file or directory
	// does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrNotRegularFile is returned if a path is expected to be a regular
	// file but is not.
	ErrNotRegularFile = errors.New("not a regular file")
)
