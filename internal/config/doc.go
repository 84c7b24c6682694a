// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config provides the resolved emulator configuration consumed by
// the command builder.
//
// The resolved record is read from the configuration directory written by the
// configure step. Board, architecture and profile descriptors are merged by
// [Generate], which also produces the shell and make fragments used by the
// build system.
package config
