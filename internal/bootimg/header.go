// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the size of the encoded [Header] in bytes.
	HeaderSize = 276

	// Alignment is the boundary the initrd offset is aligned to.
	Alignment = 4096

	// DefaultCmdline is the kernel command line embedded in the header if
	// none is given.
	DefaultCmdline = "console=ttyAMA0 root=/dev/ram0 init=/init quiet"

	cmdlineSize = 256
)

// Magic is the signature every image starts with.
var Magic = [8]byte{'H', 'N', 'X', 'B', 'O', 'O', 'T', 0}

// wireHeader is the on-disk representation of [Header].
type wireHeader struct {
	Magic         [8]byte
	KernelLength  uint32
	InitrdOffset  uint32
	CmdlineLength uint32
	Cmdline       [cmdlineSize]byte
}

// Header describes the location of the payloads within an image.
type Header struct {
	KernelLength uint32
	InitrdOffset uint32
	// CmdlineLength includes the terminating NUL.
	CmdlineLength uint32
	Cmdline       string
}

// Padding returns the number of zero bytes required after a kernel of the
// given length so the initrd starts at a multiple of [Alignment].
func Padding(kernelLength int64) int64 {
	return (Alignment - (HeaderSize+kernelLength)%Alignment) % Alignment
}

// NewHeader computes the header for a kernel of the given length. An empty
// cmdline is replaced by [DefaultCmdline].
func NewHeader(kernelLength int64, cmdline string) (Header, error) {
	if cmdline == "" {
		cmdline = DefaultCmdline
	}

	if len(cmdline) >= cmdlineSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrCmdlineTooLong, len(cmdline))
	}

	offset := HeaderSize + kernelLength + Padding(kernelLength)
	if kernelLength < 0 || offset > math.MaxUint32 {
		return Header{}, fmt.Errorf("%w: kernel has %d bytes", ErrPayloadTooLarge, kernelLength)
	}

	return Header{
		KernelLength:  uint32(kernelLength),
		InitrdOffset:  uint32(offset),
		CmdlineLength: uint32(len(cmdline) + 1), //nolint:gosec
		Cmdline:       cmdline,
	}, nil
}

// Padding returns the number of zero bytes between kernel and initrd.
func (h Header) Padding() int64 {
	return int64(h.InitrdOffset) - HeaderSize - int64(h.KernelLength)
}

// MarshalBinary implements [encoding.BinaryMarshaler].
func (h Header) MarshalBinary() ([]byte, error) {
	if len(h.Cmdline) >= cmdlineSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCmdlineTooLong, len(h.Cmdline))
	}

	wire := wireHeader{
		Magic:         Magic,
		KernelLength:  h.KernelLength,
		InitrdOffset:  h.InitrdOffset,
		CmdlineLength: h.CmdlineLength,
	}
	copy(wire.Cmdline[:], h.Cmdline)

	var buf bytes.Buffer

	err := binary.Write(&buf, binary.LittleEndian, &wire)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary implements [encoding.BinaryUnmarshaler].
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: header has %d bytes", ErrTruncated, len(data))
	}

	var wire wireHeader

	err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &wire)
	if err != nil {
		return fmt.Errorf("decode header: %w", err)
	}

	if wire.Magic != Magic {
		return fmt.Errorf("%w: %q", ErrInvalidMagic, wire.Magic[:])
	}

	if int64(wire.InitrdOffset) < HeaderSize+int64(wire.KernelLength) {
		return fmt.Errorf("%w: initrd offset %d overlaps kernel", ErrTruncated, wire.InitrdOffset)
	}

	cmdline, _, _ := bytes.Cut(wire.Cmdline[:], []byte{0})

	*h = Header{
		KernelLength:  wire.KernelLength,
		InitrdOffset:  wire.InitrdOffset,
		CmdlineLength: wire.CmdlineLength,
		Cmdline:       string(cmdline),
	}

	return nil
}

// ParseHeader reads and decodes the header from the start of r.
func ParseHeader(r io.Reader) (Header, error) {
	data := make([]byte, HeaderSize)

	_, err := io.ReadFull(r, data)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	var header Header

	err = header.UnmarshalBinary(data)

	return header, err
}
