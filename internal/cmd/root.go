// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/aibor/hnxboot/internal/harness"
	"github.com/spf13/cobra"
)

// Exit codes of [Run] that are not passed through from the emulator.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = harness.ExitCodeInterrupted
)

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes the command line given by args and returns the exit code.
//
// Arguments from the local config file ".hnxboot-args" and the environment
// variable "HNXBOOT_ARGS" are inserted behind the sub-command name.
func Run(ctx context.Context, args []string, cfg IO) int {
	level := &slog.LevelVar{}
	level.Set(slog.LevelWarn)
	setupLogging(cfg.Stderr, level)

	args, err := MergedArgs(args, os.DirFS("."), localConfigFile)
	if err != nil {
		slog.Error("Failed to read local config", slog.Any("error", err))
		return exitFailure
	}

	root := newRootCommand(cfg, level)
	root.SetArgs(args)

	err = root.ExecuteContext(ctx)

	return exitCode(err)
}

func exitCode(err error) int {
	var exitErr *ExitCodeError

	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case isInterrupt(err):
		slog.Warn("Interrupted")
		return exitInterrupted
	default:
		slog.Error(err.Error())
		return exitFailure
	}
}

func newRootCommand(cfg IO, level *slog.LevelVar) *cobra.Command {
	var verbose, debugLog bool

	root := &cobra.Command{
		Use:   "hnxboot",
		Short: "Build boot images for the HNX microkernel and run them in QEMU",
		Long: `hnxboot builds an initrd from user space programs, composes it with the
kernel into a single boot image, and runs images in QEMU under supervision.`,
		Version:       version(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level.Set(logLevel(verbose, debugLog))
		},
	}

	root.SetIn(cfg.Stdin)
	root.SetOut(cfg.Stdout)
	root.SetErr(cfg.Stderr)

	flags := root.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "log informational messages")
	flags.BoolVar(&debugLog, "debug", false, "log debug messages")

	root.AddCommand(
		newBuildCommand(cfg),
		newRunCommand(cfg),
		newConfigureCommand(cfg),
	)

	return root
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}

	return info.Main.Version
}
