// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aibor/hnxboot/internal/initrd"
	"github.com/cavaliergopher/cpio"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type archiveEntry struct {
	mode     cpio.FileMode
	body     string
	linkname string
}

// readArchive returns all entries of the archive at path by name.
func readArchive(t *testing.T, fsys afero.Fs, path string) map[string]archiveEntry {
	t.Helper()

	file, err := fsys.Open(path)
	require.NoError(t, err)

	defer file.Close()

	var reader io.Reader = file

	if strings.HasSuffix(path, ".gz") {
		gzipReader, err := gzip.NewReader(file)
		require.NoError(t, err)

		defer gzipReader.Close()

		reader = gzipReader
	}

	entries := map[string]archiveEntry{}
	cpioReader := cpio.NewReader(reader)

	for {
		hdr, err := cpioReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)

		body, err := io.ReadAll(cpioReader)
		require.NoError(t, err)

		entries[hdr.Name] = archiveEntry{
			mode:     hdr.Mode,
			body:     string(body),
			linkname: hdr.Linkname,
		}
	}

	return entries
}

type mockDeviceNodeFactory struct {
	mock.Mock
}

func (m *mockDeviceNodeFactory) Create(path string, node initrd.DeviceNode) error {
	args := m.Called(path, node)
	return args.Error(0)
}

type mockPacker struct {
	mock.Mock
}

func (m *mockPacker) Pack(
	ctx context.Context,
	fsys afero.Fs,
	root, output string,
	compress bool,
) error {
	args := m.Called(ctx, fsys, root, output, compress)
	return args.Error(0)
}

func writeFiles(t *testing.T, fsys afero.Fs, files map[string]string, mode fs.FileMode) {
	t.Helper()

	for path, content := range files {
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), mode))
		require.NoError(t, fsys.Chmod(path, mode))
	}
}

// newcEntry is an archive entry as decoded from the raw newc header, including
// the device numbers the cpio library reader drops.
type newcEntry struct {
	Name  string
	Mode  uint32
	Major uint32
	Minor uint32
	Body  string
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// parseNewc decodes every entry of a newc archive, sorted by name. Leading
// "./" is stripped from names and the root entry is omitted, so archives of
// different writers are comparable.
func parseNewc(t *testing.T, data []byte) []newcEntry {
	t.Helper()

	const headerSize = 110

	hexField := func(header []byte, start int) uint32 {
		value, err := strconv.ParseUint(string(header[start:start+8]), 16, 32)
		require.NoError(t, err, "field at %d", start)

		return uint32(value)
	}

	var entries []newcEntry

	for offset := 0; ; {
		require.LessOrEqual(t, offset+headerSize, len(data), "truncated header")

		header := data[offset : offset+headerSize]
		require.True(t, bytes.HasPrefix(header, []byte("07070")), "magic at %d", offset)

		fileSize := int(hexField(header, 54))
		nameSize := int(hexField(header, 94))
		nameStart := offset + headerSize
		name := string(data[nameStart : nameStart+nameSize-1])
		bodyStart := align4(nameStart + nameSize)
		body := string(data[bodyStart : bodyStart+fileSize])
		offset = align4(bodyStart + fileSize)

		if name == "TRAILER!!!" {
			break
		}

		name = strings.TrimPrefix(name, "./")
		if name == "." {
			continue
		}

		entry := newcEntry{
			Name:  name,
			Mode:  hexField(header, 14),
			Major: hexField(header, 78),
			Minor: hexField(header, 86),
		}

		// Only file and link bodies are compared.
		switch entry.Mode & 0o170000 {
		case 0o100000, 0o120000:
			entry.Body = body
		}

		entries = append(entries, entry)
	}

	slices.SortFunc(entries, func(a, b newcEntry) int {
		return strings.Compare(a.Name, b.Name)
	})

	return entries
}

// readNewc reads the archive file at path from the host file system and
// decodes it with [parseNewc].
func readNewc(t *testing.T, path string, compressed bool) []newcEntry {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	if compressed {
		gzipReader, err := gzip.NewReader(bytes.NewReader(data))
		require.NoError(t, err)

		data, err = io.ReadAll(gzipReader)
		require.NoError(t, err)
	}

	return parseNewc(t, data)
}

// regularInfo describes a regular file with mode 0644.
type regularInfo struct {
	fs.FileInfo

	size int64
}

func (i regularInfo) Mode() fs.FileMode { return 0o644 }
func (i regularInfo) Size() int64 { return i.size }
func (i regularInfo) ModTime() time.Time { return time.Time{} }
