// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/aibor/hnxboot/internal/config"
	"github.com/aibor/hnxboot/internal/initrd"
	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
)

// Fixed host and guest addresses.
const (
	InitrdLoadAddress = "0x42000000"
	SSHForward        = "tcp::2222-:22"
	MonitorAddress    = "telnet:127.0.0.1:55555,server,nowait"
)

// CommandSpec defines the parameters for a [Command].
type CommandSpec struct {
	// Target architecture. Determines the qemu-system binary.
	Arch sys.Arch

	// Board name. The default board gets user mode networking with SSH
	// forwarded to host port 2222.
	Board string

	// Path to the image passed as kernel.
	Image string

	// Build output directory. Searched for an initrd archive if there is
	// none next to the image.
	BuildDir string

	// Resolved emulator configuration.
	Config config.Resolved

	// Headless disables graphics and multiplexes monitor and serial
	// console on stdio.
	Headless bool

	// GDB starts the emulator halted with a gdb server on port 1234.
	GDB bool

	// Monitor exposes the QEMU monitor via telnet.
	Monitor bool
}

// Validate checks the spec for missing mandatory fields.
func (s *CommandSpec) Validate() error {
	if !slices.Contains(sys.Archs(), s.Arch) {
		return &ArgumentError{"unsupported architecture: " + s.Arch.String()}
	}

	if s.Image == "" {
		return &ArgumentError{"no image given"}
	}

	return nil
}

// Build compiles the [Command] for the spec. fsys is only used to check for
// the existence of the DTB and initrd files.
func (s *CommandSpec) Build(fsys afero.Fs) (*Command, error) {
	err := s.Validate()
	if err != nil {
		return nil, err
	}

	args, err := s.Arguments(fsys).Build()
	if err != nil {
		return nil, err
	}

	return &Command{
		Executable: s.Arch.QemuExecutable(),
		Args:       args,
	}, nil
}

// Arguments returns the argument list in its fixed order.
func (s *CommandSpec) Arguments(fsys afero.Fs) Arguments {
	cfg := s.Config
	cfg.ApplyDefaults(s.Arch)

	args := Arguments{
		UniqueArg("machine", cfg.Machine.Name),
		UniqueArg("cpu", cfg.CPU),
		UniqueArg("m", cfg.Memory),
		UniqueArg("kernel", s.Image),
	}

	if dtb := s.dtb(fsys, cfg.DTB); dtb != "" {
		args.Add(UniqueArg("dtb", dtb))
	}

	if path := s.FindInitrd(fsys); path != "" {
		slog.Info("Using initrd",
			slog.String("path", path),
			slog.String("address", InitrdLoadAddress))
		args.Add(RepeatableArg("device", "loader", "file="+path, "addr="+InitrdLoadAddress))
	}

	if s.Board == config.DefaultBoard {
		args.Add(
			RepeatableArg("netdev", "user", "id=net0", "hostfwd="+SSHForward),
			RepeatableArg("device", "virtio-net-device", "netdev=net0"),
		)
	}

	if s.Headless {
		args.Add(
			UniqueArg("nographic"),
			UniqueArg("serial", "mon:stdio"),
		)
	} else {
		if s.Arch == sys.AArch64 {
			args.Add(
				RepeatableArg("device", "virtio-gpu-pci"),
				RepeatableArg("device", "virtio-keyboard-pci"),
				RepeatableArg("device", "virtio-mouse-pci"),
			)
		}

		args.Add(UniqueArg("serial", "stdio"))
	}

	if cfg.KernelArgs != "" {
		args.Add(UniqueArg("append", cfg.KernelArgs))
	}

	if s.GDB {
		// Shorthand for "-gdb tcp::1234" and halt on start.
		args.Add(UniqueArg("s"), UniqueArg("S"))
	}

	if s.Monitor {
		args.Add(UniqueArg("monitor", MonitorAddress))
	}

	args.Add(UniqueArg("no-reboot"))

	return args
}

// dtb returns the path if the file exists.
func (s *CommandSpec) dtb(fsys afero.Fs, path string) string {
	if path == "" {
		return ""
	}

	if !sys.Exists(fsys, path) {
		slog.Warn("DTB file not found, booting without", slog.String("path", path))
		return ""
	}

	slog.Info("Using DTB", slog.String("path", path))

	return path
}

// InitrdCandidates returns the paths searched for an initrd archive in
// order.
func (s *CommandSpec) InitrdCandidates() []string {
	dirs := []string{filepath.Dir(s.Image)}
	if s.BuildDir != "" {
		dirs = append(dirs, s.BuildDir)
	}

	var candidates []string

	for _, dir := range dirs {
		for _, name := range initrd.ArchiveNames() {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	return candidates
}

// FindInitrd returns the first existing initrd candidate or an empty
// string.
func (s *CommandSpec) FindInitrd(fsys afero.Fs) string {
	for _, path := range s.InitrdCandidates() {
		if sys.RequireFile(fsys, path) == nil {
			return path
		}
	}

	return ""
}
