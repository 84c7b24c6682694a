// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aibor/hnxboot/internal/config"
	"github.com/aibor/hnxboot/internal/harness"
	"github.com/aibor/hnxboot/internal/qemu"
	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const defaultTimeout = 60 * time.Second

type runOptions struct {
	image     string
	arch      sys.Arch
	board     string
	buildDir  string
	configDir string
	logDir    string
	timeout   time.Duration

	headless bool
	graphics bool
	gdb      bool
	monitor  bool
}

func newRunCommand(cfg IO) *cobra.Command {
	opts := &runOptions{
		arch:     sys.DefaultArch,
		board:    config.DefaultBoard,
		buildDir: config.BuildDir(),
	}

	var timeoutSeconds uint

	cmd := &cobra.Command{
		Use:   "run [flags] IMAGE",
		Short: "Boot an image in QEMU",
		Example: `  hnxboot run --headless --timeout 30 hnx.img
  hnxboot run --arch x86_64 --gdb --monitor hnx.img`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := AbsoluteFilePath(args[0])
			if err != nil {
				return err
			}

			opts.image = image
			opts.timeout = time.Duration(timeoutSeconds) * time.Second

			// Graphics are the default. Headless mode must be requested
			// explicitly and is overridden by an explicit graphics request.
			if opts.graphics {
				opts.headless = false
			}

			return runImage(cmd.Context(), afero.NewOsFs(), opts, cfg)
		},
	}

	flags := cmd.Flags()
	flags.Var(&opts.arch, "arch", "target architecture (aarch64, x86_64, riscv64)")
	flags.StringVar(&opts.board, "board", opts.board, "board name")
	flags.StringVar(&opts.buildDir, "build-dir", opts.buildDir,
		"build directory searched for configuration and initrd")
	flags.StringVar(&opts.configDir, "config-dir", "",
		"directory containing config.json or config.yaml, overrides discovery")
	flags.StringVar(&opts.logDir, "log-dir", "",
		"directory for the QEMU log files (default: new temporary directory)")
	flags.UintVar(&timeoutSeconds, "timeout", uint(defaultTimeout/time.Second),
		"seconds after which QEMU is terminated, 0 disables the timeout")
	flags.BoolVar(&opts.headless, "headless", false, "run without graphics, console on stdio")
	flags.BoolVar(&opts.graphics, "graphics", false, "force graphics, overrides --headless")
	flags.BoolVar(&opts.gdb, "gdb", false, "start halted with a gdb server on port 1234")
	flags.BoolVar(&opts.monitor, "monitor", false, "expose the QEMU monitor via telnet on port 55555")

	return cmd
}

func runImage(ctx context.Context, fsys afero.Fs, opts *runOptions, cfg IO) error {
	err := sys.RequireFile(fsys, opts.image)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrImageNotFound, err)
	}

	resolver := &config.Resolver{
		Fs:       fsys,
		Arch:     opts.arch,
		Board:    opts.board,
		BuildDir: opts.buildDir,
		Dir:      opts.configDir,
	}

	resolved, err := resolver.Resolve()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	spec := &qemu.CommandSpec{
		Arch:     opts.arch,
		Board:    opts.board,
		Image:    opts.image,
		BuildDir: opts.buildDir,
		Config:   *resolved,
		Headless: opts.headless,
		GDB:      opts.gdb,
		Monitor:  opts.monitor,
	}

	command, err := spec.Build(fsys)
	if err != nil {
		return fmt.Errorf("qemu command: %w", err)
	}

	slog.Info("Starting QEMU",
		slog.String("arch", opts.arch.String()),
		slog.String("image", opts.image),
		slog.String("command", command.String()))

	if opts.gdb {
		slog.Warn("QEMU is halted until a debugger connects",
			slog.String("connect", "target remote :1234"))
	}

	watcher := &qemu.ConsoleWatcher{}

	supervisor := &harness.Harness{
		Launcher: harness.ExecLauncher{Stdin: cfg.Stdin},
		Timeout:  opts.timeout,
		LogDir:   opts.logDir,
		Stdout:   io.MultiWriter(cfg.Stdout, watcher),
		Stderr:   cfg.Stderr,
	}

	result, err := supervisor.Run(ctx, command)
	if err != nil {
		return fmt.Errorf("run qemu: %w", err)
	}

	reportRun(result, watcher)

	switch {
	case result.State == harness.StateKilled && result.ExitCode == harness.ExitCodeInterrupted:
		return context.Canceled
	case result.ExitCode != 0:
		return &ExitCodeError{Code: result.ExitCode}
	default:
		return nil
	}
}

func reportRun(result *harness.Result, watcher *qemu.ConsoleWatcher) {
	attrs := []any{
		slog.String("state", result.State.String()),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration.Round(time.Millisecond)),
		slog.String("stdout_log", result.StdoutLog),
		slog.String("stderr_log", result.StderrLog),
	}

	if result.KilledByTimeout {
		slog.Warn("QEMU terminated by timeout", attrs...)
	} else {
		slog.Info("QEMU finished", attrs...)
	}

	events, lines := watcher.Events()
	for idx, event := range events {
		if event == qemu.GuestEventKernelPanic {
			slog.Error("Guest kernel panicked", slog.String("line", lines[idx]))
		} else {
			slog.Warn("Guest program panicked", slog.String("line", lines[idx]))
		}
	}
}

// isInterrupt reports if err is caused by an operator interrupt.
func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled)
}
