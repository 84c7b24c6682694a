// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bootimg

import (
	"fmt"
	"io"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
)

// Image is a decoded boot image.
type Image struct {
	Header Header
	Kernel []byte
	Initrd []byte
}

// Layout returns the segment layout of the image.
func (i *Image) Layout(path string) Layout {
	initrdSize := int64(len(i.Initrd))

	return Layout{
		Path:         path,
		Header:       i.Header,
		KernelSize:   int64(i.Header.KernelLength),
		PaddingSize:  i.Header.Padding(),
		InitrdOffset: int64(i.Header.InitrdOffset),
		InitrdSize:   initrdSize,
		TotalSize:    int64(i.Header.InitrdOffset) + initrdSize,
	}
}

// DecodeImage decodes a complete image from r. Everything behind the initrd
// offset is considered the initrd.
func DecodeImage(r io.Reader) (*Image, error) {
	header, err := ParseHeader(r)
	if err != nil {
		return nil, err
	}

	kernel := make([]byte, header.KernelLength)

	_, err = io.ReadFull(r, kernel)
	if err != nil {
		return nil, fmt.Errorf("%w: kernel: %w", ErrTruncated, err)
	}

	_, err = io.CopyN(io.Discard, r, header.Padding())
	if err != nil {
		return nil, fmt.Errorf("%w: padding: %w", ErrTruncated, err)
	}

	initrd, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read initrd: %w", err)
	}

	return &Image{
		Header: header,
		Kernel: kernel,
		Initrd: initrd,
	}, nil
}

// ReadImage decodes the image file at path.
func ReadImage(fsys afero.Fs, path string) (*Image, error) {
	err := sys.RequireFile(fsys, path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	file, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	return DecodeImage(file)
}
