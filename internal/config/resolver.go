// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// BuildDirEnv is the environment variable naming the build output
	// directory.
	BuildDirEnv = "MESON_BUILD_ROOT"

	// DefaultBuildDir is used if [BuildDirEnv] is not set.
	DefaultBuildDir = "build"

	jsonFileName = "config.json"
	yamlFileName = "config.yaml"
)

// BuildDir returns the build output directory from the environment.
func BuildDir() string {
	if dir := os.Getenv(BuildDirEnv); dir != "" {
		return dir
	}

	return DefaultBuildDir
}

// file is the layout of the configuration file written by the configure step.
// Only the emulator section is of interest here.
type file struct {
	QEMU *Resolved `json:"qemu" yaml:"qemu"`
}

// Resolver finds and reads the resolved configuration for an architecture and
// board.
type Resolver struct {
	Fs       afero.Fs
	Arch     sys.Arch
	Board    string
	BuildDir string

	// Dir overrides the configuration directory discovery if set.
	Dir string
}

// Candidates returns the directories searched for a configuration file in
// the order they are tried.
func (r *Resolver) Candidates() []string {
	return []string{
		filepath.Join(r.BuildDir, "config"),
		filepath.Join(r.BuildDir, fmt.Sprintf("config-%s-%s", r.Arch, r.Board)),
		"config",
	}
}

// Find returns the first candidate directory that contains a configuration
// file.
func (r *Resolver) Find() (string, error) {
	for _, dir := range r.Candidates() {
		for _, name := range []string{jsonFileName, yamlFileName} {
			if sys.Exists(r.Fs, filepath.Join(dir, name)) {
				return dir, nil
			}
		}
	}

	return "", ErrNoConfig
}

// Resolve reads the configuration and applies defaults. A missing
// configuration is not an error. The defaults are used in this case.
func (r *Resolver) Resolve() (*Resolved, error) {
	dir := r.Dir
	if dir == "" {
		found, err := r.Find()
		if err != nil {
			slog.Warn("No configuration directory found, using defaults",
				slog.String("arch", r.Arch.String()),
				slog.String("board", r.Board))

			return r.defaults(), nil
		}

		dir = found
	}

	resolved, err := Load(r.Fs, dir)
	if err != nil {
		if !errors.Is(err, ErrNoConfig) {
			return nil, err
		}

		slog.Warn("No configuration file in directory, using defaults",
			slog.String("dir", dir))

		return r.defaults(), nil
	}

	if resolved.DTB == "" && resolved.DTBFilename != "" {
		resolved.DTB = filepath.Join(dir, resolved.DTBFilename)
	}

	resolved.ApplyDefaults(r.Arch)

	err = resolved.Validate()
	if err != nil {
		return nil, err
	}

	slog.Debug("Resolved configuration",
		slog.String("dir", dir),
		slog.String("machine", resolved.Machine.Name),
		slog.String("cpu", resolved.CPU),
		slog.String("memory", resolved.Memory))

	return resolved, nil
}

func (r *Resolver) defaults() *Resolved {
	resolved := &Resolved{}
	resolved.ApplyDefaults(r.Arch)

	return resolved
}

// Load reads the emulator section of the configuration file in dir.
//
// "config.json" takes precedence over "config.yaml". [ErrNoConfig] is
// returned if neither exists.
func Load(fsys afero.Fs, dir string) (*Resolved, error) {
	decoders := []struct {
		name   string
		decode func([]byte, any) error
	}{
		{name: jsonFileName, decode: json.Unmarshal},
		{name: yamlFileName, decode: yaml.Unmarshal},
	}

	for _, decoder := range decoders {
		path := filepath.Join(dir, decoder.name)

		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("read config: %w", err)
		}

		var cfg file

		err = decoder.decode(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}

		if cfg.QEMU == nil {
			cfg.QEMU = &Resolved{}
		}

		return cfg.QEMU, nil
	}

	return nil, fmt.Errorf("%w in %s", ErrNoConfig, dir)
}
