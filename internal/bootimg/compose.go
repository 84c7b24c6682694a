// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bootimg

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
)

const imageFileMode = 0o644

// Layout describes the segments of a composed image.
type Layout struct {
	Path         string
	Header       Header
	KernelSize   int64
	PaddingSize  int64
	InitrdOffset int64
	InitrdSize   int64
	TotalSize    int64
}

// Render writes the layout as table to w.
func (l Layout) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Segment", "Offset", "Size", ""})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	row := func(name string, offset, size int64) {
		table.Append([]string{
			name,
			strconv.FormatInt(offset, 10),
			strconv.FormatInt(size, 10),
			humanize.IBytes(uint64(size)), //nolint:gosec
		})
	}

	row("header", 0, HeaderSize)
	row("kernel", HeaderSize, l.KernelSize)
	row("padding", HeaderSize+l.KernelSize, l.PaddingSize)
	row("initrd", l.InitrdOffset, l.InitrdSize)
	table.SetFooter([]string{"total", "", strconv.FormatInt(l.TotalSize, 10), humanize.IBytes(uint64(l.TotalSize))}) //nolint:gosec

	table.Render()
}

// Composer writes raw boot images.
type Composer struct {
	// Fs is the file system all paths refer to.
	Fs afero.Fs

	// Cmdline is embedded in the header. Defaults to [DefaultCmdline].
	Cmdline string
}

// Compose writes the image consisting of header, kernel, padding and initrd
// to outputPath. Both sources are checked before the output is created.
func (c *Composer) Compose(kernelPath, initrdPath, outputPath string) (Layout, error) {
	kernelSize, err := c.sourceSize(kernelPath)
	if err != nil {
		return Layout{}, fmt.Errorf("kernel: %w", err)
	}

	initrdSize, err := c.sourceSize(initrdPath)
	if err != nil {
		return Layout{}, fmt.Errorf("initrd: %w", err)
	}

	for _, source := range []string{kernelPath, initrdPath} {
		if c.sameFile(source, outputPath) {
			return Layout{}, fmt.Errorf("%w: %s", ErrOutputIsSource, outputPath)
		}
	}

	if initrdSize > math.MaxUint32 {
		return Layout{}, fmt.Errorf("%w: initrd has %d bytes", ErrPayloadTooLarge, initrdSize)
	}

	header, err := NewHeader(kernelSize, c.Cmdline)
	if err != nil {
		return Layout{}, err
	}

	layout := Layout{
		Path:         outputPath,
		Header:       header,
		KernelSize:   kernelSize,
		PaddingSize:  header.Padding(),
		InitrdOffset: int64(header.InitrdOffset),
		InitrdSize:   initrdSize,
		TotalSize:    int64(header.InitrdOffset) + initrdSize,
	}

	err = c.write(layout, kernelPath, initrdPath)
	if err != nil {
		_ = c.Fs.Remove(outputPath)
		return Layout{}, err
	}

	slog.Info("Created raw image",
		slog.String("path", outputPath),
		slog.String("kernel", humanize.IBytes(uint64(kernelSize))),  //nolint:gosec
		slog.String("initrd", humanize.IBytes(uint64(initrdSize))),  //nolint:gosec
		slog.Int64("padding", layout.PaddingSize),
		slog.String("total", humanize.IBytes(uint64(layout.TotalSize)))) //nolint:gosec

	return layout, nil
}

func (c *Composer) sourceSize(path string) (int64, error) {
	err := sys.RequireFile(c.Fs, path)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}

	info, err := c.Fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}

	return info.Size(), nil
}

// sameFile reports if both paths refer to the same file, either by name or,
// if both exist, by identity. The latter catches links.
func (c *Composer) sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)

	if errA == nil && errB == nil && absA == absB {
		return true
	}

	infoA, err := c.Fs.Stat(a)
	if err != nil {
		return false
	}

	infoB, err := c.Fs.Stat(b)
	if err != nil {
		return false
	}

	return os.SameFile(infoA, infoB)
}

func (c *Composer) write(layout Layout, kernelPath, initrdPath string) error {
	headerBytes, err := layout.Header.MarshalBinary()
	if err != nil {
		return err
	}

	output, err := c.Fs.OpenFile(layout.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, imageFileMode)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer output.Close()

	_, err = output.Write(headerBytes)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	err = c.copyPayload(output, kernelPath, layout.KernelSize)
	if err != nil {
		return fmt.Errorf("write kernel: %w", err)
	}

	_, err = output.Write(make([]byte, layout.PaddingSize))
	if err != nil {
		return fmt.Errorf("write padding: %w", err)
	}

	err = c.copyPayload(output, initrdPath, layout.InitrdSize)
	if err != nil {
		return fmt.Errorf("write initrd: %w", err)
	}

	return output.Close() //nolint:wrapcheck
}

// copyPayload copies exactly size bytes of the file at path to w. A file
// that changed its size since the header was computed is an error.
func (c *Composer) copyPayload(w io.Writer, path string, size int64) error {
	file, err := c.Fs.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(w, file)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	if written != size {
		return fmt.Errorf("%w: %s changed size: expected %d bytes, copied %d",
			ErrTruncated, path, size, written)
	}

	return nil
}
