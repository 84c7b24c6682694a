// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"testing"

	"github.com/aibor/hnxboot/internal/qemu"
	"github.com/stretchr/testify/assert"
)

func TestCommand_String(t *testing.T) {
	cmd := qemu.Command{
		Executable: "qemu-system-aarch64",
		Args:       []string{"-m", "512M", "-append", "console=ttyAMA0 debug", "-no-reboot"},
	}

	assert.Equal(t,
		`qemu-system-aarch64 -m 512M -append "console=ttyAMA0 debug" -no-reboot`,
		cmd.String(),
	)
}
