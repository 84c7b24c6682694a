// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Command hnxboot builds boot images for the HNX microkernel and runs them in
// QEMU.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aibor/hnxboot/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	exitCode := cmd.Run(ctx, os.Args[1:], cmd.IO{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})

	stop()
	os.Exit(exitCode)
}
