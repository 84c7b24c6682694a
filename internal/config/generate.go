// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultDescriptorDir is the directory holding the arch, board and profile
// descriptors.
const DefaultDescriptorDir = "configs"

// Profiles are the build profiles accepted by [Generator.Generate].
var Profiles = []string{"debug", "release"}

// Metadata identifies the inputs a [Document] was generated from.
type Metadata struct {
	Arch      sys.Arch `json:"arch"`
	Board     string   `json:"board"`
	Profile   string   `json:"profile"`
	Timestamp int64    `json:"timestamp"`
}

// Document is the merged configuration written to "config.json".
type Document struct {
	Arch     map[string]any `json:"arch"`
	Board    map[string]any `json:"board"`
	Profile  map[string]any `json:"profile"`
	Metadata Metadata       `json:"metadata"`
	QEMU     *Resolved      `json:"qemu"`
}

// Generator merges YAML descriptors into a [Document].
//
// Descriptors are read from "<Dir>/arch/<arch>.yaml",
// "<Dir>/board/<board>.yaml" and "<Dir>/profile/<profile>.yaml". Only the
// board descriptor is required. A board's "dtb_filename" is looked up in
// "<Dir>/dtb".
type Generator struct {
	Fs  afero.Fs
	Dir string
	Now func() time.Time
}

// Generate merges the descriptors for the given arch, board and profile.
func (g *Generator) Generate(arch sys.Arch, board, profile string) (*Document, error) {
	boardPath := filepath.Join(g.Dir, "board", board+".yaml")

	boardData, err := afero.ReadFile(g.Fs, boardPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, boardPath)
		}

		return nil, fmt.Errorf("read board: %w", err)
	}

	doc := &Document{
		Metadata: Metadata{
			Arch:      arch,
			Board:     board,
			Profile:   profile,
			Timestamp: g.now().Unix(),
		},
		QEMU: &Resolved{},
	}

	err = yaml.Unmarshal(boardData, &doc.Board)
	if err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}

	err = yaml.Unmarshal(boardData, doc.QEMU)
	if err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}

	doc.Arch, err = g.optional(filepath.Join(g.Dir, "arch", arch.String()+".yaml"))
	if err != nil {
		return nil, err
	}

	doc.Profile, err = g.optional(filepath.Join(g.Dir, "profile", profile+".yaml"))
	if err != nil {
		return nil, err
	}

	doc.QEMU.ApplyDefaults(arch)
	g.resolveDTB(doc.QEMU)

	err = doc.QEMU.Validate()
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}

	return time.Now()
}

func (g *Generator) optional(path string) (map[string]any, error) {
	data, err := afero.ReadFile(g.Fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}

		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	descriptor := map[string]any{}

	err = yaml.Unmarshal(data, &descriptor)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return descriptor, nil
}

func (g *Generator) resolveDTB(resolved *Resolved) {
	if resolved.DTB != "" || resolved.DTBFilename == "" {
		return
	}

	path, err := filepath.Abs(filepath.Join(g.Dir, "dtb", resolved.DTBFilename))
	if err != nil || !sys.Exists(g.Fs, path) {
		slog.Warn("Device tree blob not found",
			slog.String("dtb_filename", resolved.DTBFilename))

		return
	}

	resolved.DTB = path
}

// Write writes "config.json", "qemu_config.json", "env.sh" and "Makefile.inc"
// into dir.
func (d *Document) Write(fsys afero.Fs, dir string) ([]string, error) {
	err := fsys.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	fragment := &Fragment{
		Arch:    d.Metadata.Arch,
		Board:   d.Metadata.Board,
		Profile: d.Metadata.Profile,
		QEMU:    d.QEMU,
	}

	files := []struct {
		name  string
		write func(buf *bytes.Buffer) error
	}{
		{jsonFileName, func(buf *bytes.Buffer) error { return encodeJSON(buf, d) }},
		{"qemu_config.json", func(buf *bytes.Buffer) error { return encodeJSON(buf, d.QEMU) }},
		{"env.sh", func(buf *bytes.Buffer) error { return fragment.WriteEnv(buf) }},
		{"Makefile.inc", func(buf *bytes.Buffer) error { return fragment.WriteMakefile(buf) }},
	}

	written := make([]string, 0, len(files))

	for _, file := range files {
		var buf bytes.Buffer

		err := file.write(&buf)
		if err != nil {
			return written, err
		}

		path := filepath.Join(dir, file.name)

		err = afero.WriteFile(fsys, path, buf.Bytes(), 0o644)
		if err != nil {
			return written, fmt.Errorf("write %s: %w", file.name, err)
		}

		written = append(written, path)
	}

	return written, nil
}

func encodeJSON(buf *bytes.Buffer, v any) error {
	encoder := json.NewEncoder(buf)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}
