// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu composes qemu-system command lines for booting HNX images.
//
// A [CommandSpec] is a pure description of the emulator invocation. Its
// [CommandSpec.Build] method only checks for the existence of optional
// files, like the device tree blob and the initrd archive, and never runs
// anything.
package qemu
