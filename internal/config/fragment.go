// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"io"

	"github.com/aibor/hnxboot/internal/sys"
)

type variable struct {
	name  string
	value string
}

// Fragment holds the values exported to the build system.
type Fragment struct {
	Arch    sys.Arch
	Board   string
	Profile string
	QEMU    *Resolved
}

func (f *Fragment) common() []variable {
	vars := []variable{
		{"ARCH", f.Arch.String()},
		{"BOARD", f.Board},
		{"PROFILE", f.Profile},
		{"KERNEL_TARGET", f.Arch.KernelTarget()},
		{"SPACE_TARGET", f.Arch.SpaceTarget()},
		{"QEMU_MACHINE", f.QEMU.Machine.Name},
		{"QEMU_CPU", f.QEMU.CPU},
		{"QEMU_MEMORY", f.QEMU.Memory},
	}

	if f.QEMU.DTB != "" {
		vars = append(vars, variable{"QEMU_DTB", f.QEMU.DTB})
	}

	return vars
}

// WriteEnv writes the values as shell export statements.
func (f *Fragment) WriteEnv(w io.Writer) error {
	for _, v := range f.common() {
		_, err := fmt.Fprintf(w, "export %s=%s\n", v.name, v.value)
		if err != nil {
			return fmt.Errorf("write env: %w", err)
		}
	}

	return nil
}

// WriteMakefile writes the values as make variable assignments.
func (f *Fragment) WriteMakefile(w io.Writer) error {
	vars := f.common()

	if f.QEMU.KernelArgs != "" {
		vars = append(vars, variable{"QEMU_KERNEL_ARGS", f.QEMU.KernelArgs})
	}

	if f.QEMU.DTB != "" && f.QEMU.DTBFilename != "" {
		vars = append(vars, variable{"QEMU_DTB_FILENAME", f.QEMU.DTBFilename})
	}

	_, err := io.WriteString(w, "# Auto-generated Makefile variables\n")
	if err != nil {
		return fmt.Errorf("write makefile: %w", err)
	}

	for _, v := range vars {
		_, err := fmt.Fprintf(w, "%s := %s\n", v.name, v.value)
		if err != nil {
			return fmt.Errorf("write makefile: %w", err)
		}
	}

	return nil
}
