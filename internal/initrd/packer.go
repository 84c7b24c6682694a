// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	archiveName           = "initrd.cpio"
	compressedArchiveName = archiveName + ".gz"
)

// ArchiveName returns the file name of the archive.
func ArchiveName(compress bool) string {
	if compress {
		return compressedArchiveName
	}

	return archiveName
}

// ArchiveNames returns all possible archive file names, uncompressed first.
func ArchiveNames() []string {
	return []string{archiveName, compressedArchiveName}
}

// ArchivePacker writes the tree at root in fsys as newc cpio archive to
// output.
//
// Implementations must not leave a partial archive behind on failure and
// should return a [*PackError].
type ArchivePacker interface {
	Pack(ctx context.Context, fsys afero.Fs, root, output string, compress bool) error
}

// CPIOPacker is an [ArchivePacker] that writes the archive in-process.
// Directories, regular files, symbolic links and character devices including
// their device numbers are archived.
type CPIOPacker struct{}

var _ ArchivePacker = CPIOPacker{}

// Pack implements [ArchivePacker].
func (CPIOPacker) Pack(
	ctx context.Context,
	fsys afero.Fs,
	root, output string,
	compress bool,
) error {
	err := writeArchiveFile(fsys, output, compress, func(w io.Writer) error {
		return writeTree(ctx, fsys, root, NewCPIOWriter(w))
	})
	if err != nil {
		_ = fsys.Remove(output)
		return &PackError{Err: err}
	}

	return nil
}

// ShellPacker is an [ArchivePacker] that uses the find and cpio tools. It only
// works with an [afero.OsFs].
type ShellPacker struct{}

var _ ArchivePacker = ShellPacker{}

// Pack implements [ArchivePacker].
func (ShellPacker) Pack(
	ctx context.Context,
	fsys afero.Fs,
	root, output string,
	compress bool,
) error {
	var stderr bytes.Buffer

	find := exec.CommandContext(ctx, "find", ".")
	find.Dir = root
	find.Stderr = &stderr

	list, err := find.Output()
	if err != nil {
		return &PackError{Output: stderr.Bytes(), Err: fmt.Errorf("find: %w", err)}
	}

	err = writeArchiveFile(fsys, output, compress, func(w io.Writer) error {
		cpioCmd := exec.CommandContext(ctx, "cpio", "--format=newc", "-o", "-R", "0:0", "--quiet")
		cpioCmd.Dir = root
		cpioCmd.Stdin = bytes.NewReader(list)
		cpioCmd.Stdout = w
		cpioCmd.Stderr = &stderr

		slog.Debug("Run packer", slog.String("command", cpioCmd.String()))

		return cpioCmd.Run() //nolint:wrapcheck
	})
	if err != nil {
		_ = fsys.Remove(output)
		return &PackError{Output: stderr.Bytes(), Err: fmt.Errorf("cpio: %w", err)}
	}

	return nil
}

func writeArchiveFile(
	fsys afero.Fs,
	output string,
	compress bool,
	write func(w io.Writer) error,
) error {
	file, err := fsys.Create(output)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer file.Close()

	var writer io.Writer = file

	var gzipWriter *gzip.Writer

	if compress {
		gzipWriter, err = gzip.NewWriterLevel(file, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}

		writer = gzipWriter
	}

	err = write(writer)
	if err != nil {
		return err
	}

	if gzipWriter != nil {
		err = gzipWriter.Close()
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}

func writeTree(ctx context.Context, fsys afero.Fs, root string, writer *CPIOWriter) error {
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err() //nolint:wrapcheck
		}

		name, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}

		if name == "." {
			return nil
		}

		return writeEntry(fsys, path, name, info, writer)
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	return writer.Close()
}

func writeEntry(
	fsys afero.Fs,
	path, name string,
	info fs.FileInfo,
	writer *CPIOWriter,
) error {
	mode := info.Mode()

	switch {
	case mode.IsDir():
		return writer.WriteDirectory(name, mode)
	case mode.IsRegular():
		source, err := fsys.Open(path)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer source.Close()

		return writer.WriteRegular(name, source, info)
	case mode&fs.ModeCharDevice != 0:
		major, minor := deviceNumbers(name, info)
		return writer.WriteCharDevice(name, mode, major, minor)
	case mode&fs.ModeSymlink != 0:
		linkReader, ok := fsys.(afero.LinkReader)
		if !ok {
			return fmt.Errorf("%w: read link %s", errors.ErrUnsupported, path)
		}

		target, err := linkReader.ReadlinkIfPossible(path)
		if err != nil {
			return fmt.Errorf("read link: %w", err)
		}

		return writer.WriteLink(name, target)
	default:
		slog.Warn("Skipping unsupported file type",
			slog.String("path", name),
			slog.String("mode", mode.String()))

		return nil
	}
}

// removeStaging removes the staging tree and logs failures.
func removeStaging(fsys afero.Fs, root string) {
	slog.Debug("Removing staging directory", slog.String("path", root))

	err := fsys.RemoveAll(root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("Failed to remove staging directory",
			slog.String("path", root),
			slog.Any("error", err))
	}
}
