// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipe drains process output streams concurrently.
//
// Each [Pipe] is copied by its own goroutine, so a full pipe buffer on one
// stream never blocks reading another one. [Pipes.Wait] bounds the time spent
// waiting for the copies to finish.
package pipe
