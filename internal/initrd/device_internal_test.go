// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd

import (
	"bytes"
	"io/fs"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type charDeviceInfo struct {
	fs.FileInfo

	sys any
}

func (i charDeviceInfo) Mode() fs.FileMode {
	return fs.ModeDevice | fs.ModeCharDevice | 0o600
}

func (i charDeviceInfo) Sys() any { return i.sys }

func TestDeviceNumbers(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		sys           any
		expectedMajor uint32
		expectedMinor uint32
	}{
		{
			name:          "from stat",
			path:          "dev/ttyS0",
			sys:           &syscall.Stat_t{Rdev: unix.Mkdev(4, 64)},
			expectedMajor: 4,
			expectedMinor: 64,
		},
		{
			name:          "stat wins over name",
			path:          "dev/console",
			sys:           &syscall.Stat_t{Rdev: unix.Mkdev(4, 1)},
			expectedMajor: 4,
			expectedMinor: 1,
		},
		{
			name:          "default console by name",
			path:          "dev/console",
			expectedMajor: 5,
			expectedMinor: 1,
		},
		{
			name:          "default urandom by name",
			path:          "dev/urandom",
			expectedMajor: 1,
			expectedMinor: 9,
		},
		{
			name: "unknown name",
			path: "dev/sda",
		},
		{
			name: "default name outside dev",
			path: "etc/null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor := deviceNumbers(tt.path, charDeviceInfo{sys: tt.sys})
			assert.Equal(t, tt.expectedMajor, major, "major")
			assert.Equal(t, tt.expectedMinor, minor, "minor")
		})
	}
}

func TestWriteEntry_CharDevice(t *testing.T) {
	var archive bytes.Buffer

	writer := NewCPIOWriter(&archive)
	info := charDeviceInfo{sys: &syscall.Stat_t{Rdev: unix.Mkdev(5, 1)}}

	err := writeEntry(afero.NewMemMapFs(), "/root/dev/console", "dev/console", info, writer)
	require.NoError(t, err)

	header := archive.Bytes()
	require.GreaterOrEqual(t, len(header), newcHeaderSize)

	assert.Equal(t, "00002180", string(header[14:22]), "mode")
	assert.Equal(t, "00000005", string(header[rdevMajorStart:rdevMajorStart+hexFieldSize]), "rdevmajor")
	assert.Equal(t, "00000001", string(header[rdevMinorStart:rdevMinorStart+hexFieldSize]), "rdevminor")
}
