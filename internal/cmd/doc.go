// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cmd provides the CLI entry point for hnxboot. It wires flag
// parsing and logging and maps errors to exit codes.
//
// Sub-commands:
//
//	build      build the initrd and compose the raw boot image
//	run        run an image in QEMU under supervision
//	configure  merge board descriptors into configuration fragments
package cmd
