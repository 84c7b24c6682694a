// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bootimg composes bootable raw images from a kernel binary and an
// initrd archive.
//
// An image consists of a fixed size [Header], the kernel, zero padding up to
// the next 4 KiB boundary and the initrd:
//
//	header (276 B) | kernel | padding | initrd
//
// All integer fields of the header are little endian. The command line
// embedded in the header is independent of any kernel arguments passed to
// the emulator.
package bootimg
