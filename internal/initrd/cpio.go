// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/cavaliergopher/cpio"
)

const numLinks = 2

// Layout of the newc header as written by [cpio.Writer].
const (
	newcHeaderSize = 110
	rdevMajorStart = 78
	rdevMinorStart = 86
	hexFieldSize   = 8
)

var newcMagicPrefix = []byte("07070")

// rdevWriter fills the rdevmajor and rdevminor fields of the next header
// passing through it. [cpio.Writer] leaves them zero and writes each header
// with a single call.
type rdevWriter struct {
	w            io.Writer
	pending      bool
	major, minor uint32
}

func (r *rdevWriter) Write(p []byte) (int, error) {
	if !r.pending || len(p) != newcHeaderSize || !bytes.HasPrefix(p, newcMagicPrefix) {
		return r.w.Write(p) //nolint:wrapcheck
	}

	r.pending = false

	header := bytes.Clone(p)
	copy(header[rdevMajorStart:rdevMajorStart+hexFieldSize], fmt.Sprintf("%08X", r.major))
	copy(header[rdevMinorStart:rdevMinorStart+hexFieldSize], fmt.Sprintf("%08X", r.minor))

	return r.w.Write(header) //nolint:wrapcheck
}

// CPIOWriter writes tree entries into a newc cpio archive.
type CPIOWriter struct {
	cpioWriter *cpio.Writer
	rdev       *rdevWriter
}

// NewCPIOWriter creates a new archive writer.
func NewCPIOWriter(w io.Writer) *CPIOWriter {
	rdev := &rdevWriter{w: w}

	return &CPIOWriter{
		cpioWriter: cpio.NewWriter(rdev),
		rdev:       rdev,
	}
}

// Close writes the trailer. Flush is called by the underlying closer.
func (w *CPIOWriter) Close() error {
	err := w.cpioWriter.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

func (w *CPIOWriter) writeHeader(hdr *cpio.Header) error {
	if err := w.cpioWriter.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %s: %w", hdr.Name, err)
	}

	return nil
}

// WriteDirectory adds a directory entry for the given path.
func (w *CPIOWriter) WriteDirectory(path string, perm fs.FileMode) error {
	return w.writeHeader(&cpio.Header{
		Name:  path,
		Mode:  cpio.TypeDir | cpio.FileMode(perm.Perm()),
		Links: numLinks,
	})
}

// WriteLink adds a symbolic link for the given path pointing to the given
// target.
func (w *CPIOWriter) WriteLink(path, target string) error {
	header := &cpio.Header{
		Name: path,
		Mode: cpio.TypeSymlink | cpio.ModePerm,
		Size: int64(len(target)),
	}
	if err := w.writeHeader(header); err != nil {
		return err
	}

	// Body of a link is the path of the target file.
	if _, err := w.cpioWriter.Write([]byte(target)); err != nil {
		return fmt.Errorf("write body for %s: %w", path, err)
	}

	return nil
}

// WriteCharDevice adds a character device entry for the given path with the
// given device numbers.
func (w *CPIOWriter) WriteCharDevice(path string, perm fs.FileMode, major, minor uint32) error {
	w.rdev.pending = true
	w.rdev.major = major
	w.rdev.minor = minor

	defer func() { w.rdev.pending = false }()

	return w.writeHeader(&cpio.Header{
		Name:  path,
		Mode:  cpio.TypeChar | cpio.FileMode(perm.Perm()),
		Links: 1,
	})
}

// WriteRegular copies the content read from source into the archive.
func (w *CPIOWriter) WriteRegular(path string, source io.Reader, info fs.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", sys.ErrNotRegularFile, path)
	}

	header := &cpio.Header{
		Name:    path,
		Mode:    cpio.TypeReg | cpio.FileMode(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Links:   1,
	}

	if err := w.writeHeader(header); err != nil {
		return err
	}

	if _, err := io.Copy(w.cpioWriter, source); err != nil {
		return fmt.Errorf("write body for %s: %w", path, err)
	}

	return nil
}
