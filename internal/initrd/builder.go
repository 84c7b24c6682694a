// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Mode selects the content of the tree.
type Mode int

const (
	// ModeFull creates a complete root file system.
	ModeFull Mode = iota
	// ModeSimple creates a tree with only the entrypoint.
	ModeSimple
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeSimple:
		return "simple"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const (
	entrypointName = "init"
	binDir         = "bin"
	execMode       = 0o755
	fileMode       = 0o644
	dirMode        = 0o755
)

// EntrypointAliases are the file names treated as entrypoint when found while
// scanning the space directory.
var EntrypointAliases = []string{"init", "hnx-init", "userboot"}

// Paths relative to the space directory searched for the entrypoint, in
// order.
var entrypointCandidates = []string{
	filepath.Join("release", entrypointName),
	filepath.Join("debug", entrypointName),
	entrypointName,
}

// Directories relative to the space directory scanned for executables.
var executableDirs = []string{".", "bin", "sbin", filepath.Join("usr", "bin")}

// Builder stages and packs the initrd.
type Builder struct {
	// Fs is the file system all paths refer to.
	Fs afero.Fs

	// Packer writes the archive. Defaults to [CPIOPacker].
	Packer ArchivePacker

	// DeviceNodes creates device nodes in [ModeFull]. Defaults to
	// [MknodFactory].
	DeviceNodes DeviceNodeFactory

	// TempDir is the parent of the staging directory. Defaults to
	// [os.TempDir].
	TempDir string

	// Compress enables gzip compression of the archive.
	Compress bool
}

// Build stages the tree for the given mode from spaceDir and packs it into
// outputDir. It returns the path of the archive.
func (b *Builder) Build(
	ctx context.Context,
	mode Mode,
	spaceDir, outputDir string,
) (string, error) {
	err := sys.RequireDir(b.Fs, spaceDir)
	if err != nil {
		return "", fmt.Errorf("space dir: %w", err)
	}

	root, err := b.createStaging()
	if err != nil {
		return "", err
	}
	defer removeStaging(b.Fs, root)

	entrypoint := b.findEntrypoint(spaceDir)

	switch mode {
	case ModeSimple:
		err = b.stageSimple(root, entrypoint)
	case ModeFull:
		err = b.stageFull(root, spaceDir, entrypoint)
	default:
		err = fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	if err != nil {
		return "", err
	}

	err = b.Fs.MkdirAll(outputDir, dirMode)
	if err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	output := filepath.Join(outputDir, ArchiveName(b.Compress))

	err = b.packer().Pack(ctx, b.Fs, root, output, b.Compress)
	if err != nil {
		return "", err
	}

	if info, err := b.Fs.Stat(output); err == nil {
		slog.Info("Created initrd",
			slog.String("path", output),
			slog.String("mode", mode.String()),
			slog.String("size", humanize.IBytes(uint64(info.Size())))) //nolint:gosec
	}

	return output, nil
}

func (b *Builder) packer() ArchivePacker {
	if b.Packer != nil {
		return b.Packer
	}

	return CPIOPacker{}
}

func (b *Builder) deviceNodes() DeviceNodeFactory {
	if b.DeviceNodes != nil {
		return b.DeviceNodes
	}

	return MknodFactory{}
}

func (b *Builder) createStaging() (string, error) {
	tempDir := b.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	root := filepath.Join(tempDir, "initrd-"+uuid.NewString())

	err := b.Fs.MkdirAll(root, dirMode)
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	slog.Debug("Created staging directory", slog.String("path", root))

	return root, nil
}

// findEntrypoint returns the path of the first existing entrypoint candidate
// or an empty string.
func (b *Builder) findEntrypoint(spaceDir string) string {
	for _, candidate := range entrypointCandidates {
		path := filepath.Join(spaceDir, candidate)
		if sys.RequireFile(b.Fs, path) == nil {
			slog.Debug("Found entrypoint", slog.String("path", path))
			return path
		}
	}

	return ""
}

func (b *Builder) stageSimple(root, entrypoint string) error {
	if entrypoint == "" {
		return ErrMissingEntrypoint
	}

	return b.copyExecutable(entrypoint, filepath.Join(root, entrypointName))
}

func (b *Builder) stageFull(root, spaceDir, entrypoint string) error {
	for _, dir := range skeletonDirs {
		err := b.Fs.MkdirAll(filepath.Join(root, dir), dirMode)
		if err != nil {
			return fmt.Errorf("create skeleton: %w", err)
		}
	}

	executables, links, err := b.scanExecutables(spaceDir)
	if err != nil {
		return err
	}

	for _, path := range executables {
		name := filepath.Base(path)

		if slices.Contains(EntrypointAliases, name) {
			if entrypoint == "" {
				entrypoint = path
			}

			continue
		}

		dest := filepath.Join(root, binDir, name)
		if sys.Exists(b.Fs, dest) {
			slog.Debug("Skipping duplicate executable", slog.String("path", path))
			continue
		}

		err := b.copyExecutable(path, dest)
		if err != nil {
			return err
		}
	}

	for _, link := range links {
		b.stageLink(link, filepath.Join(root, binDir, filepath.Base(link)))
	}

	if entrypoint != "" {
		err = b.copyExecutable(entrypoint, filepath.Join(root, entrypointName))
	} else {
		err = b.writeDefaultInit(filepath.Join(root, entrypointName))
	}

	if err != nil {
		return fmt.Errorf("write entrypoint: %w", err)
	}

	b.createDeviceNodes(root)
	b.writeStaticFiles(root)

	return nil
}

// scanExecutables returns all executable regular files in the executable
// dirs of spaceDir in scan order, along with the symbolic links found there.
// Links named like an entrypoint alias are returned as executables, so their
// target's content becomes the entrypoint.
func (b *Builder) scanExecutables(spaceDir string) ([]string, []string, error) {
	var executables, links []string

	for _, dir := range executableDirs {
		path := filepath.Join(spaceDir, dir)

		entries, err := afero.ReadDir(b.Fs, path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, nil, fmt.Errorf("read space dir: %w", err)
		}

		for _, entry := range entries {
			entryPath := filepath.Join(path, entry.Name())

			switch {
			case entry.Mode()&fs.ModeSymlink != 0:
				if slices.Contains(EntrypointAliases, entry.Name()) {
					executables = append(executables, entryPath)
				} else {
					links = append(links, entryPath)
				}
			case entry.Mode().IsRegular() && entry.Mode().Perm()&0o111 != 0:
				executables = append(executables, entryPath)
			}
		}
	}

	if len(executables) == 0 {
		slog.Warn("No executables found in space directory", slog.String("path", spaceDir))
	}

	return executables, links, nil
}

// stageLink recreates the symbolic link at src as dest with the same target.
// Failures are logged, as not all file systems support links.
func (b *Builder) stageLink(src, dest string) {
	reader, readOK := b.Fs.(afero.LinkReader)
	linker, linkOK := b.Fs.(afero.Linker)

	if !readOK || !linkOK {
		slog.Warn("File system does not support links, skipping", slog.String("path", src))
		return
	}

	if sys.Exists(b.Fs, dest) {
		slog.Debug("Skipping duplicate link", slog.String("path", src))
		return
	}

	target, err := reader.ReadlinkIfPossible(src)
	if err == nil {
		err = linker.SymlinkIfPossible(target, dest)
	}

	if err != nil {
		slog.Warn("Failed to stage link",
			slog.String("path", src),
			slog.Any("error", err))

		return
	}

	slog.Debug("Staged link",
		slog.String("source", src),
		slog.String("dest", dest),
		slog.String("target", target))
}

func (b *Builder) writeDefaultInit(dest string) error {
	slog.Info("No entrypoint found, using default init script")

	err := afero.WriteFile(b.Fs, dest, []byte(defaultInit), execMode)
	if err != nil {
		return err //nolint:wrapcheck
	}

	// Mode passed to WriteFile is subject to umask.
	return b.Fs.Chmod(dest, execMode) //nolint:wrapcheck
}

func (b *Builder) copyExecutable(src, dest string) error {
	source, err := b.Fs.Open(src)
	if err != nil {
		return fmt.Errorf("open executable: %w", err)
	}
	defer source.Close()

	target, err := b.Fs.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, execMode)
	if err != nil {
		return fmt.Errorf("create executable: %w", err)
	}
	defer target.Close()

	written, err := io.Copy(target, source)
	if err != nil {
		return fmt.Errorf("copy executable: %w", err)
	}

	// Mode passed to OpenFile is subject to umask.
	err = b.Fs.Chmod(dest, execMode)
	if err != nil {
		return fmt.Errorf("chmod executable: %w", err)
	}

	slog.Debug("Copied executable",
		slog.String("source", src),
		slog.String("dest", dest),
		slog.String("size", humanize.IBytes(uint64(written)))) //nolint:gosec

	return target.Close() //nolint:wrapcheck
}

func (b *Builder) createDeviceNodes(root string) {
	factory := b.deviceNodes()

	for _, node := range DefaultDeviceNodes() {
		path := filepath.Join(root, "dev", node.Name)

		err := factory.Create(path, node)
		if err != nil {
			slog.Warn("Failed to create device node",
				slog.String("name", node.Name),
				slog.Any("error", err))
		}
	}
}

func (b *Builder) writeStaticFiles(root string) {
	for _, file := range staticFiles {
		err := afero.WriteFile(b.Fs, filepath.Join(root, file.path), []byte(file.content), fileMode)
		if err != nil {
			slog.Warn("Failed to write file",
				slog.String("path", file.path),
				slog.Any("error", err))
		}
	}
}
