// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import "errors"

var (
	// ErrInvalidMachine is returned if the machine field is neither a name
	// nor a mapping with a name.
	ErrInvalidMachine = errors.New("invalid machine")

	// ErrInvalidMemory is returned if the memory size can not be parsed.
	ErrInvalidMemory = errors.New("invalid memory size")

	// ErrNoConfig is returned if no configuration file is present in a
	// configuration directory.
	ErrNoConfig = errors.New("no configuration file found")

	// ErrBoardNotFound is returned if no descriptor exists for the requested
	// board.
	ErrBoardNotFound = errors.New("board descriptor not found")
)
