// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"fmt"
	"slices"
)

// Arch is a target architecture name as used by QEMU and the HNX toolchain.
type Arch string

// Supported target architectures.
const (
	AArch64 Arch = "aarch64"
	X86_64  Arch = "x86_64" //nolint:revive,stylecheck
	RISCV64 Arch = "riscv64"
)

// DefaultArch is used if no architecture is given.
const DefaultArch = AArch64

// Archs returns all supported architectures.
func Archs() []Arch {
	return []Arch{AArch64, X86_64, RISCV64}
}

// String implements [fmt.Stringer] and [pflag.Value].
func (a Arch) String() string {
	return string(a)
}

// Type implements [pflag.Value].
func (Arch) Type() string {
	return "arch"
}

// Set implements [pflag.Value].
func (a *Arch) Set(s string) error {
	if !slices.Contains(Archs(), Arch(s)) {
		return fmt.Errorf("%w: %s", ErrArchNotSupported, s)
	}

	*a = Arch(s)

	return nil
}

// QemuExecutable returns the name of the qemu-system binary for the
// architecture.
func (a Arch) QemuExecutable() string {
	return "qemu-system-" + string(a)
}

// KernelTarget returns the target triple the kernel is built for.
func (a Arch) KernelTarget() string {
	return string(a) + "-unknown-none"
}

// SpaceTarget returns the target triple user space programs are built for.
func (a Arch) SpaceTarget() string {
	return string(a) + "-unknown-hnx"
}
