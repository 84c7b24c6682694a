// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package initrd assembles the initial RAM disk of the HNX system.
//
// A [Builder] stages a root file system tree in a unique temporary directory
// and hands it to an [ArchivePacker] that writes a newc cpio archive,
// optionally gzip compressed. The staging directory is removed in any case.
//
// In [ModeSimple] the tree consists of the entrypoint "/init" only. In
// [ModeFull] it additionally contains a directory skeleton, all executables
// found in the space directory, device nodes and a few static files.
package initrd
