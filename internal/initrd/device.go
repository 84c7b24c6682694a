// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// DeviceKind is the type of a device node.
type DeviceKind int

// Supported device node kinds.
const (
	CharDevice DeviceKind = iota
)

func (k DeviceKind) String() string {
	switch k {
	case CharDevice:
		return "char"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DeviceNode describes a device node created in "/dev".
type DeviceNode struct {
	Name  string
	Kind  DeviceKind
	Major uint32
	Minor uint32
}

// DefaultDeviceNodes are the device nodes created in [ModeFull].
func DefaultDeviceNodes() []DeviceNode {
	return []DeviceNode{
		{Name: "console", Kind: CharDevice, Major: 5, Minor: 1},
		{Name: "null", Kind: CharDevice, Major: 1, Minor: 3},
		{Name: "zero", Kind: CharDevice, Major: 1, Minor: 5},
		{Name: "random", Kind: CharDevice, Major: 1, Minor: 8},
		{Name: "urandom", Kind: CharDevice, Major: 1, Minor: 9},
	}
}

// DeviceNodeFactory creates device nodes at the given path.
type DeviceNodeFactory interface {
	Create(path string, node DeviceNode) error
}

// MknodFactory is a [DeviceNodeFactory] that uses the mknod syscall. It
// usually requires elevated privileges.
type MknodFactory struct{}

var _ DeviceNodeFactory = MknodFactory{}

// Create implements [DeviceNodeFactory].
func (MknodFactory) Create(path string, node DeviceNode) error {
	var mode uint32

	switch node.Kind {
	case CharDevice:
		mode = unix.S_IFCHR | 0o666
	default:
		return fmt.Errorf("unsupported device kind: %s", node.Kind)
	}

	dev := unix.Mkdev(node.Major, node.Minor)

	err := unix.Mknod(path, mode, int(dev)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("mknod %s: %w", path, err)
	}

	return nil
}

// deviceNumbers returns the major and minor number of the device node
// described by info. If the file info carries no raw stat data, as with
// in-memory file systems, the numbers are looked up in
// [DefaultDeviceNodes] by name.
func deviceNumbers(name string, info fs.FileInfo) (uint32, uint32) {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		rdev := uint64(stat.Rdev) //nolint:unconvert
		return unix.Major(rdev), unix.Minor(rdev)
	}

	if filepath.Dir(name) == "dev" {
		for _, node := range DefaultDeviceNodes() {
			if node.Name == filepath.Base(name) {
				return node.Major, node.Minor
			}
		}
	}

	slog.Warn("Unknown device numbers, using 0:0", slog.String("path", name))

	return 0, 0
}
