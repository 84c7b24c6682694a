// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	argsEnvVar      = "HNXBOOT_ARGS"
	localConfigFile = ".hnxboot-args"
)

// EnvArgs returns hnxboot arguments from the environment.
func EnvArgs() []string {
	return strings.Fields(os.Getenv(argsEnvVar))
}

// LocalConfigArgs returns hnxboot arguments from a local config file.
//
// The file's format is one argument per line. Empty lines and lines starting
// with "#" are ignored. Environment variables may be used and are expanded
// with [os.ExpandEnv].
func LocalConfigArgs(fsys fs.FS, file string) ([]string, error) {
	conf, err := fs.ReadFile(fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read file: %w", err)
	}

	args := []string{}

	expandedConf := os.ExpandEnv(string(conf))
	for line := range strings.SplitSeq(expandedConf, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			args = append(args, line)
		}
	}

	return args, nil
}

// MergedArgs inserts the arguments from the local config file and the
// environment right behind the sub-command name in args, so arguments given
// on the command line take precedence. Local config file arguments come
// first.
func MergedArgs(args []string, fsys fs.FS, file string) ([]string, error) {
	localArgs, err := LocalConfigArgs(fsys, file)
	if err != nil {
		return nil, err
	}

	extra := append(localArgs, EnvArgs()...) //nolint:gocritic
	if len(extra) == 0 {
		return args, nil
	}

	// Without sub-command, the extra arguments can not be validated against
	// any flag set, so leave them out.
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return args, nil
	}

	merged := make([]string, 0, len(args)+len(extra))
	merged = append(merged, args[0])
	merged = append(merged, extra...)
	merged = append(merged, args[1:]...)

	return merged, nil
}
