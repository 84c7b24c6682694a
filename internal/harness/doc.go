// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package harness supervises an emulator process.
//
// [Harness.Run] spawns the process through a [ProcessLauncher], drains its
// stdout and stderr concurrently into the console and per stream log files
// and terminates the process if the timeout is reached or the context is
// cancelled. The terminal [State] and exit code are reported in a [Result].
package harness
