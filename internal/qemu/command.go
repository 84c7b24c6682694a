// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"strconv"
	"strings"
)

// Command is a compiled emulator invocation.
type Command struct {
	Executable string
	Args       []string
}

// String returns the command line with arguments quoted where necessary.
func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Executable)

	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'\\") {
			arg = strconv.Quote(arg)
		}

		parts = append(parts, arg)
	}

	return strings.Join(parts, " ")
}
