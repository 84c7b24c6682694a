// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bootimg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
	"github.com/spf13/afero"
)

// ImageConverter converts a raw image into another disk image format.
//
// Implementations return a [*ConvertError] on failure and must not leave a
// partial output behind.
type ImageConverter interface {
	// Format is the name of the target format. It is used as file
	// extension of the output.
	Format() string

	// Convert converts the raw image at rawPath and returns the path of the
	// converted image.
	Convert(ctx context.Context, rawPath string) (string, error)
}

// ConvertedPath returns the path of the converted image for rawPath.
func ConvertedPath(rawPath, format string) string {
	return strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "." + format
}

// QemuImgConverter converts images to qcow2 using the qemu-img tool.
type QemuImgConverter struct {
	// Executable is the qemu-img binary. Defaults to "qemu-img".
	Executable string
}

var _ ImageConverter = QemuImgConverter{}

// Format implements [ImageConverter].
func (QemuImgConverter) Format() string {
	return "qcow2"
}

// Convert implements [ImageConverter].
func (c QemuImgConverter) Convert(ctx context.Context, rawPath string) (string, error) {
	executable := c.Executable
	if executable == "" {
		executable = "qemu-img"
	}

	output := ConvertedPath(rawPath, c.Format())

	var stderr bytes.Buffer

	//nolint:gosec
	cmd := exec.CommandContext(ctx, executable,
		"convert",
		"-f", "raw",
		"-O", c.Format(),
		rawPath,
		output,
	)
	cmd.Stderr = &stderr

	slog.Debug("Converting image", slog.String("command", cmd.String()))

	err := cmd.Run()
	if err != nil {
		_ = os.Remove(output)

		return "", &ConvertError{
			Format: c.Format(),
			Output: stderr.Bytes(),
			Err:    err,
		}
	}

	return output, nil
}

// DefaultVolumeLabel is the volume identifier of ISO images.
const DefaultVolumeLabel = "HNXBOOT"

// ISOConverter wraps a raw image into an ISO 9660 file system.
type ISOConverter struct {
	// Fs is the file system the raw image is read from and the ISO image
	// is written to.
	Fs afero.Fs

	// VolumeLabel defaults to [DefaultVolumeLabel].
	VolumeLabel string
}

var _ ImageConverter = ISOConverter{}

// Format implements [ImageConverter].
func (ISOConverter) Format() string {
	return "iso"
}

// Convert implements [ImageConverter].
func (c ISOConverter) Convert(_ context.Context, rawPath string) (string, error) {
	output := ConvertedPath(rawPath, c.Format())

	err := c.convert(rawPath, output)
	if err != nil {
		_ = c.Fs.Remove(output)
		return "", &ConvertError{Format: c.Format(), Err: err}
	}

	return output, nil
}

func (c ISOConverter) convert(rawPath, output string) (err error) {
	label := c.VolumeLabel
	if label == "" {
		label = DefaultVolumeLabel
	}

	writer, err := iso9660.NewWriter()
	if err != nil {
		return fmt.Errorf("create iso writer: %w", err)
	}

	defer func() {
		err = errors.Join(err, writer.Cleanup())
	}()

	raw, err := c.Fs.Open(rawPath)
	if err != nil {
		return fmt.Errorf("open raw image: %w", err)
	}
	defer raw.Close()

	err = writer.AddFile(raw, filepath.Base(rawPath))
	if err != nil {
		return fmt.Errorf("add raw image: %w", err)
	}

	file, err := c.Fs.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, imageFileMode)
	if err != nil {
		return fmt.Errorf("create iso image: %w", err)
	}
	defer file.Close()

	err = writer.WriteTo(file, label)
	if err != nil {
		return fmt.Errorf("write iso image: %w", err)
	}

	return file.Close() //nolint:wrapcheck
}
