// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aibor/hnxboot/internal/bootimg"
	"github.com/aibor/hnxboot/internal/sys"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

// fakeQemu installs an executable named like the qemu-system binary for arch
// in a new directory in front of PATH. It records its arguments one per line
// in the returned file and runs script afterwards.
func fakeQemu(t *testing.T, arch sys.Arch, script string) string {
	t.Helper()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")

	writeFile(t, filepath.Join(dir, arch.QemuExecutable()),
		fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' \"$@\" > %q\n%s\n", argsFile, script), 0o755)

	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	return argsFile
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "success",
			expected: 0,
		},
		{
			name:     "passed through",
			err:      fmt.Errorf("run: %w", &ExitCodeError{Code: 42}),
			expected: 42,
		},
		{
			name:     "signal",
			err:      &ExitCodeError{Code: -9},
			expected: -9,
		},
		{
			name:     "interrupted",
			err:      fmt.Errorf("build: %w", context.Canceled),
			expected: 130,
		},
		{
			name:     "failure",
			err:      ErrImageNotFound,
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitCode(tt.err))
		})
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "WARN", logLevel(false, false).String())
	assert.Equal(t, "INFO", logLevel(true, false).String())
	assert.Equal(t, "DEBUG", logLevel(false, true).String())
	assert.Equal(t, "DEBUG", logLevel(true, true).String())
}

func TestRunBuild(t *testing.T) {
	root := t.TempDir()
	kernel := filepath.Join(root, "kernel.bin")
	spaceDir := filepath.Join(root, "space")
	buildDir := filepath.Join(root, "build")
	output := filepath.Join(root, "out", "hnx.img")

	writeFile(t, kernel, strings.Repeat("K", 5000), 0o644)
	writeFile(t, filepath.Join(spaceDir, "release", "init"), "#!/bin/sh\n", 0o755)
	// Stale archive of the other variant.
	writeFile(t, filepath.Join(buildDir, "initrd.cpio"), "stale", 0o644)

	opts := &buildOptions{
		kernel:   FilePath(kernel),
		spaceDir: FilePath(spaceDir),
		output:   FilePath(output),
		buildDir: buildDir,
		arch:     sys.AArch64,
		simple:   true,
	}

	var stdout bytes.Buffer

	err := runBuild(t.Context(), afero.NewOsFs(), opts, &stdout)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "Image: "+output)
	assert.Contains(t, stdout.String(), "kernel")
	assert.Contains(t, stdout.String(), "8192")

	image, err := bootimg.ReadImage(afero.NewOsFs(), output)
	require.NoError(t, err)

	assert.EqualValues(t, 5000, image.Header.KernelLength)
	assert.EqualValues(t, 8192, image.Header.InitrdOffset)
	assert.Equal(t, bootimg.DefaultCmdline, image.Header.Cmdline)

	published, err := os.ReadFile(filepath.Join(buildDir, "initrd.cpio.gz"))
	require.NoError(t, err)
	assert.Equal(t, image.Initrd, published)

	assert.NoFileExists(t, filepath.Join(buildDir, "initrd.cpio"))
}

func TestRunBuild_ComposeFailureKeepsBuildDir(t *testing.T) {
	root := t.TempDir()
	kernel := filepath.Join(root, "kernel.bin")
	spaceDir := filepath.Join(root, "space")
	buildDir := filepath.Join(root, "build")

	writeFile(t, kernel, "kernel", 0o644)
	writeFile(t, filepath.Join(spaceDir, "init"), "#!/bin/sh\n", 0o755)
	writeFile(t, filepath.Join(buildDir, "initrd.cpio"), "previous", 0o644)

	opts := &buildOptions{
		kernel:   FilePath(kernel),
		spaceDir: FilePath(spaceDir),
		output:   FilePath(kernel),
		buildDir: buildDir,
		simple:   true,
	}

	err := runBuild(t.Context(), afero.NewOsFs(), opts, &bytes.Buffer{})
	require.ErrorIs(t, err, bootimg.ErrOutputIsSource)

	assert.NoFileExists(t, filepath.Join(buildDir, "initrd.cpio.gz"))

	previous, err := os.ReadFile(filepath.Join(buildDir, "initrd.cpio"))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(previous))

	content, err := os.ReadFile(kernel)
	require.NoError(t, err)
	assert.Equal(t, "kernel", string(content))
}

func TestRunBuild_MissingSources(t *testing.T) {
	root := t.TempDir()
	kernel := filepath.Join(root, "kernel.bin")
	spaceDir := filepath.Join(root, "space")
	output := filepath.Join(root, "hnx.img")

	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{
			name: "kernel",
			setup: func(t *testing.T) {
				t.Helper()
				require.NoError(t, os.MkdirAll(spaceDir, 0o755))
			},
		},
		{
			name: "space dir",
			setup: func(t *testing.T) {
				t.Helper()
				require.NoError(t, os.RemoveAll(spaceDir))
				writeFile(t, kernel, "kernel", 0o644)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)

			opts := &buildOptions{
				kernel:   FilePath(kernel),
				spaceDir: FilePath(spaceDir),
				output:   FilePath(output),
			}

			err := runBuild(t.Context(), afero.NewOsFs(), opts, &bytes.Buffer{})
			require.ErrorIs(t, err, sys.ErrSourceNotFound)

			assert.NoFileExists(t, output)
		})
	}
}

func TestRunImage(t *testing.T) {
	argsFile := fakeQemu(t, sys.AArch64,
		"echo booting\necho '[PANIC] HNX Microkernel panic: oops'\nexit 3")

	imageDir := t.TempDir()
	image := filepath.Join(imageDir, "hnx.img")
	writeFile(t, image, "image", 0o644)
	writeFile(t, filepath.Join(imageDir, "initrd.cpio"), "initrd", 0o644)

	logDir := t.TempDir()

	var stdout, stderr bytes.Buffer

	opts := &runOptions{
		image:    image,
		arch:     sys.AArch64,
		board:    "qemu-virt",
		buildDir: t.TempDir(),
		logDir:   logDir,
		timeout:  10 * time.Second,
		headless: true,
	}

	err := runImage(t.Context(), afero.NewOsFs(), opts, IO{Stdout: &stdout, Stderr: &stderr})
	require.ErrorIs(t, err, &ExitCodeError{})
	assert.Equal(t, 3, exitCode(err))

	assert.Equal(t, "booting\n[PANIC] HNX Microkernel panic: oops\n", stdout.String())

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)

	expected := []string{
		"-machine", "virt",
		"-cpu", "cortex-a72",
		"-m", "512M",
		"-kernel", image,
		"-device", "loader,file=" + filepath.Join(imageDir, "initrd.cpio") + ",addr=0x42000000",
		"-netdev", "user,id=net0,hostfwd=tcp::2222-:22",
		"-device", "virtio-net-device,netdev=net0",
		"-nographic",
		"-serial", "mon:stdio",
		"-no-reboot",
	}
	assert.Equal(t, strings.Join(expected, "\n")+"\n", string(args))

	logged, err := os.ReadFile(filepath.Join(logDir, "qemu_stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, stdout.String(), string(logged))
}

func TestRunImage_Success(t *testing.T) {
	fakeQemu(t, sys.X86_64, "exit 0")

	image := filepath.Join(t.TempDir(), "hnx.img")
	writeFile(t, image, "image", 0o644)

	opts := &runOptions{
		image:    image,
		arch:     sys.X86_64,
		board:    "pc",
		buildDir: t.TempDir(),
		logDir:   t.TempDir(),
	}

	err := runImage(t.Context(), afero.NewOsFs(), opts, IO{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	require.NoError(t, err)
}

func TestRunImage_MissingImage(t *testing.T) {
	opts := &runOptions{
		image: filepath.Join(t.TempDir(), "missing.img"),
		arch:  sys.AArch64,
	}

	err := runImage(t.Context(), afero.NewOsFs(), opts, IO{})
	require.ErrorIs(t, err, ErrImageNotFound)
	assert.Equal(t, 1, exitCode(err))
}

func TestRunConfigure(t *testing.T) {
	descriptors := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "config")

	writeFile(t, filepath.Join(descriptors, "board", "qemu-virt.yaml"),
		"machine: virt\ncpu: cortex-a53\nmemory: 1G\n", 0o644)

	opts := &configureOptions{
		arch:          sys.AArch64,
		board:         "qemu-virt",
		profile:       "release",
		descriptorDir: descriptors,
		outputDir:     outputDir,
	}

	var stdout bytes.Buffer

	err := runConfigure(afero.NewOsFs(), opts, &stdout)
	require.NoError(t, err)

	for _, name := range []string{"config.json", "qemu_config.json", "env.sh", "Makefile.inc"} {
		assert.FileExists(t, filepath.Join(outputDir, name))
		assert.Contains(t, stdout.String(), filepath.Join(outputDir, name))
	}

	env, err := os.ReadFile(filepath.Join(outputDir, "env.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "export QEMU_CPU=cortex-a53\n")
	assert.Contains(t, string(env), "export PROFILE=release\n")
}

func TestRunConfigure_Errors(t *testing.T) {
	t.Run("unknown profile", func(t *testing.T) {
		opts := &configureOptions{profile: "fast"}

		err := runConfigure(afero.NewMemMapFs(), opts, &bytes.Buffer{})
		require.ErrorIs(t, err, errUnknownProfile)
	})

	t.Run("missing board", func(t *testing.T) {
		opts := &configureOptions{
			arch:          sys.AArch64,
			board:         "missing",
			profile:       "debug",
			descriptorDir: "/configs",
			outputDir:     "/out",
		}

		err := runConfigure(afero.NewMemMapFs(), opts, &bytes.Buffer{})
		require.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCode   int
		expectedStdout string
		expectedStderr string
	}{
		{
			name:           "help",
			args:           []string{"--help"},
			expectedStdout: "Available Commands:",
		},
		{
			name:           "unknown command",
			args:           []string{"boot"},
			expectedCode:   1,
			expectedStderr: "unknown command",
		},
		{
			name:           "run without image",
			args:           []string{"run"},
			expectedCode:   1,
			expectedStderr: "accepts 1 arg(s)",
		},
		{
			name:           "run missing image",
			args:           []string{"run", "/nonexistent/hnx.img"},
			expectedCode:   1,
			expectedStderr: "image not found",
		},
		{
			name:           "build missing required flags",
			args:           []string{"build"},
			expectedCode:   1,
			expectedStderr: "required flag(s)",
		},
		{
			name:           "invalid arch",
			args:           []string{"run", "--arch", "mips", "hnx.img"},
			expectedCode:   1,
			expectedStderr: "mips",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HNXBOOT_ARGS", "")

			var stdout, stderr bytes.Buffer

			code := Run(t.Context(), tt.args, IO{Stdout: &stdout, Stderr: &stderr})

			assert.Equal(t, tt.expectedCode, code)
			assert.Contains(t, stdout.String(), tt.expectedStdout)
			assert.Contains(t, stderr.String(), tt.expectedStderr)
		})
	}
}
