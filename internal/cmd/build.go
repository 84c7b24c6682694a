// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aibor/hnxboot/internal/bootimg"
	"github.com/aibor/hnxboot/internal/config"
	"github.com/aibor/hnxboot/internal/initrd"
	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const workDirPrefix = "hnx_image_"

type buildOptions struct {
	kernel   FilePath
	spaceDir FilePath
	output   FilePath
	buildDir string
	arch     sys.Arch
	board    string

	simple      bool
	noCompress  bool
	qcow2       bool
	iso         bool
	shellPacker bool
}

func (o *buildOptions) mode() initrd.Mode {
	if o.simple {
		return initrd.ModeSimple
	}

	return initrd.ModeFull
}

func (o *buildOptions) packer() initrd.ArchivePacker {
	if o.shellPacker {
		return initrd.ShellPacker{}
	}

	return initrd.CPIOPacker{}
}

func (o *buildOptions) converters(fsys afero.Fs) []bootimg.ImageConverter {
	var converters []bootimg.ImageConverter

	if o.qcow2 {
		converters = append(converters, bootimg.QemuImgConverter{})
	}

	if o.iso {
		converters = append(converters, bootimg.ISOConverter{Fs: fsys})
	}

	return converters
}

func newBuildCommand(cfg IO) *cobra.Command {
	opts := &buildOptions{
		arch:     sys.DefaultArch,
		board:    config.DefaultBoard,
		buildDir: config.BuildDir(),
	}

	cmd := &cobra.Command{
		Use:   "build --kernel FILE --space-dir DIR --output FILE",
		Short: "Build the initrd and compose the raw boot image",
		Example: `  hnxboot build --kernel build/kernel/hnx-kernel.bin --space-dir build/space --output hnx.img
  hnxboot build --kernel kernel.bin --space-dir programs --simple-initrd --no-compress --qcow2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), afero.NewOsFs(), opts, cfg.Stdout)
		},
	}

	flags := cmd.Flags()
	flags.Var(&opts.kernel, "kernel", "path to the kernel binary")
	flags.Var(&opts.spaceDir, "space-dir", "directory containing user space programs")
	flags.Var(&opts.output, "output", "path of the raw image to write")
	flags.Var(&opts.arch, "arch", "target architecture (aarch64, x86_64, riscv64)")
	flags.StringVar(&opts.board, "board", opts.board, "board name")
	flags.StringVar(&opts.buildDir, "build-dir", opts.buildDir,
		"build directory the initrd is published to for the run command")
	flags.BoolVar(&opts.simple, "simple-initrd", false, "create an initrd with the entrypoint only")
	flags.BoolVar(&opts.noCompress, "no-compress", false, "do not gzip the initrd")
	flags.BoolVar(&opts.qcow2, "qcow2", false, "also create a qcow2 image using qemu-img")
	flags.BoolVar(&opts.iso, "iso", false, "also create an ISO 9660 image containing the raw image")
	flags.BoolVar(&opts.shellPacker, "shell-packer", false,
		"pack the initrd with the host's find and cpio tools")

	for _, name := range []string{"kernel", "space-dir", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runBuild(ctx context.Context, fsys afero.Fs, opts *buildOptions, out io.Writer) error {
	start := time.Now()

	slog.Info("Building HNX system image",
		slog.String("arch", opts.arch.String()),
		slog.String("board", opts.board),
		slog.String("kernel", opts.kernel.String()),
		slog.String("space_dir", opts.spaceDir.String()),
		slog.String("output", opts.output.String()))

	// Fail before anything is written.
	err := sys.RequireFile(fsys, string(opts.kernel))
	if err != nil {
		return fmt.Errorf("kernel: %w", err)
	}

	err = sys.RequireDir(fsys, string(opts.spaceDir))
	if err != nil {
		return fmt.Errorf("space dir: %w", err)
	}

	workDir, err := afero.TempDir(fsys, "", workDirPrefix)
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	defer func() {
		err := fsys.RemoveAll(workDir)
		if err != nil {
			slog.Warn("Failed to remove work dir",
				slog.String("path", workDir),
				slog.Any("error", err))
		}
	}()

	builder := &initrd.Builder{
		Fs:       fsys,
		Packer:   opts.packer(),
		TempDir:  workDir,
		Compress: !opts.noCompress,
	}

	archive, err := builder.Build(ctx, opts.mode(), string(opts.spaceDir), workDir)
	if err != nil {
		return fmt.Errorf("initrd: %w", err)
	}

	err = fsys.MkdirAll(filepath.Dir(string(opts.output)), 0o755)
	if err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	composer := &bootimg.Composer{Fs: fsys}

	layout, err := composer.Compose(string(opts.kernel), archive, string(opts.output))
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	// Only a successfully composed image gets its initrd published.
	if opts.buildDir != "" {
		err = publishInitrd(fsys, archive, opts.buildDir)
		if err != nil {
			return err
		}
	}

	layout.Render(out)

	for _, converter := range opts.converters(fsys) {
		path, err := converter.Convert(ctx, layout.Path)
		if err != nil {
			slog.Warn("Image conversion failed, raw image is unaffected",
				slog.String("format", converter.Format()),
				slog.Any("error", err))

			continue
		}

		fmt.Fprintf(out, "%s image: %s\n", converter.Format(), path)
	}

	fmt.Fprintf(out, "Image: %s (%s)\n", layout.Path, time.Since(start).Round(time.Millisecond))

	return nil
}

// publishInitrd copies the archive into dir, where the run command looks for
// it. Archives of the other compression variant are removed, so they do not
// shadow the new one.
func publishInitrd(fsys afero.Fs, archive, dir string) error {
	err := fsys.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create build dir: %w", err)
	}

	name := filepath.Base(archive)

	for _, stale := range initrd.ArchiveNames() {
		if stale == name {
			continue
		}

		err := fsys.Remove(filepath.Join(dir, stale))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale initrd: %w", err)
		}
	}

	dest := filepath.Join(dir, name)

	source, err := fsys.Open(archive)
	if err != nil {
		return fmt.Errorf("open initrd: %w", err)
	}
	defer source.Close()

	target, err := fsys.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create published initrd: %w", err)
	}
	defer target.Close()

	_, err = io.Copy(target, source)
	if err != nil {
		return fmt.Errorf("copy initrd: %w", err)
	}

	slog.Info("Published initrd for QEMU", slog.String("path", dest))

	return target.Close() //nolint:wrapcheck
}
