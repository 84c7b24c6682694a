// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
)

// RequireFile returns [ErrSourceNotFound] if the regular file at path does not
// exist in fsys and [ErrNotRegularFile] if it is something else.
func RequireFile(fsys afero.Fs, path string) error {
	info, err := stat(fsys, path)
	if err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	return nil
}

// RequireDir returns [ErrSourceNotFound] if the directory at path does not
// exist in fsys.
func RequireDir(fsys afero.Fs, path string) error {
	info, err := stat(fsys, path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: not a directory: %s", ErrSourceNotFound, path)
	}

	return nil
}

// Exists reports if anything is present at path.
func Exists(fsys afero.Fs, path string) bool {
	_, err := fsys.Stat(path)
	return err == nil
}

func stat(fsys afero.Fs, path string) (fs.FileInfo, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	info, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}

		return nil, fmt.Errorf("stat: %w", err)
	}

	return info, nil
}
