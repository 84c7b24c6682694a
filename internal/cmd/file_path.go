// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/pflag"
)

// FilePath is a [pflag.Value] that converts the given path into an absolute
// path.
type FilePath string

var _ pflag.Value = (*FilePath)(nil)

// String implements [pflag.Value].
func (f *FilePath) String() string {
	return string(*f)
}

// Type implements [pflag.Value].
func (*FilePath) Type() string {
	return "path"
}

// Set implements [pflag.Value].
func (f *FilePath) Set(s string) error {
	path, err := AbsoluteFilePath(s)
	if err != nil {
		return err
	}

	*f = FilePath(path)

	return nil
}

// AbsoluteFilePath returns the absolute path for path. Empty paths are
// rejected.
func AbsoluteFilePath(path string) (string, error) {
	if path == "" {
		return "", sys.ErrEmptyPath
	}

	path, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	return path, nil
}
