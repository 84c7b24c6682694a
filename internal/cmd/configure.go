// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aibor/hnxboot/internal/config"
	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var errUnknownProfile = errors.New("unknown profile")

type configureOptions struct {
	arch          sys.Arch
	board         string
	profile       string
	descriptorDir string
	outputDir     string
}

func newConfigureCommand(cfg IO) *cobra.Command {
	opts := &configureOptions{
		arch:          sys.DefaultArch,
		board:         config.DefaultBoard,
		profile:       config.Profiles[0],
		descriptorDir: config.DefaultDescriptorDir,
		outputDir:     filepath.Join(config.BuildDir(), "config"),
	}

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Merge arch, board and profile descriptors into the build configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigure(afero.NewOsFs(), opts, cfg.Stdout)
		},
	}

	flags := cmd.Flags()
	flags.Var(&opts.arch, "arch", "target architecture (aarch64, x86_64, riscv64)")
	flags.StringVar(&opts.board, "board", opts.board, "board name")
	flags.StringVar(&opts.profile, "profile", opts.profile,
		"build profile ("+strings.Join(config.Profiles, ", ")+")")
	flags.StringVar(&opts.descriptorDir, "config-dir", opts.descriptorDir,
		"directory containing the arch, board and profile descriptors")
	flags.StringVar(&opts.outputDir, "output-dir", opts.outputDir,
		"directory the generated files are written to")

	return cmd
}

func runConfigure(fsys afero.Fs, opts *configureOptions, out io.Writer) error {
	if !slices.Contains(config.Profiles, opts.profile) {
		return fmt.Errorf("%w %q, use one of %s",
			errUnknownProfile, opts.profile, strings.Join(config.Profiles, ", "))
	}

	generator := &config.Generator{
		Fs:  fsys,
		Dir: opts.descriptorDir,
	}

	document, err := generator.Generate(opts.arch, opts.board, opts.profile)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	written, err := document.Write(fsys, opts.outputDir)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	slog.Info("Generated configuration",
		slog.String("arch", opts.arch.String()),
		slog.String("board", opts.board),
		slog.String("profile", opts.profile),
		slog.String("dir", opts.outputDir))

	for _, path := range written {
		fmt.Fprintln(out, path)
	}

	return nil
}
