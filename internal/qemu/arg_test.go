// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"testing"

	"github.com/aibor/hnxboot/internal/qemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgument_String(t *testing.T) {
	assert.Equal(t, "-no-reboot", qemu.UniqueArg("no-reboot").String())
	assert.Equal(t, "-device loader,addr=0x1", qemu.RepeatableArg("device", "loader", "addr=0x1").String())
}

func TestArguments_Build(t *testing.T) {
	tests := []struct {
		name        string
		args        qemu.Arguments
		expected    []string
		expectedErr error
	}{
		{
			name: "empty",
			args: qemu.Arguments{},
			expected: []string{},
		},
		{
			name: "flags and values",
			args: qemu.Arguments{
				qemu.UniqueArg("kernel", "hnx.img"),
				qemu.RepeatableArg("device", "virtio-gpu-pci"),
				qemu.RepeatableArg("device", "virtio-mouse-pci"),
				qemu.UniqueArg("s"),
				qemu.UniqueArg("S"),
			},
			expected: []string{
				"-kernel", "hnx.img",
				"-device", "virtio-gpu-pci",
				"-device", "virtio-mouse-pci",
				"-s",
				"-S",
			},
		},
		{
			name: "unique collision",
			args: qemu.Arguments{
				qemu.UniqueArg("kernel", "a"),
				qemu.UniqueArg("kernel", "b"),
			},
			expectedErr: qemu.ErrArgumentCollision,
		},
		{
			name: "repeatable collision",
			args: qemu.Arguments{
				qemu.RepeatableArg("device", "virtio-gpu-pci"),
				qemu.RepeatableArg("device", "virtio-gpu-pci"),
			},
			expectedErr: qemu.ErrArgumentCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := tt.args.Build()
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestArguments_Lookup(t *testing.T) {
	var args qemu.Arguments

	args.Add(
		qemu.RepeatableArg("device", "a"),
		qemu.UniqueArg("m", "1G"),
		qemu.RepeatableArg("device", "b"),
	)

	assert.Equal(t, []string{"a", "b"}, args.Lookup("device"))
	assert.Equal(t, []string{"1G"}, args.Lookup("m"))
	assert.Nil(t, args.Lookup("dtb"))
}
