// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// CopyFunc defines a function that reads the data from the given reader into
// the given writer.
//
// It may copy the data as is, like [io.Copy], or mutate or filter it as needed.
type CopyFunc func(dst io.Writer, src io.Reader) (int64, error)

var (
	_ CopyFunc = io.Copy
	_ CopyFunc = CopyLines
)

// CopyLines is a [CopyFunc] that copies src to dst line by line.
//
// Each line, including its line feed, is passed to dst with a single write,
// so writers shared by multiple destinations, like [io.MultiWriter], receive
// complete lines. A trailing line without line feed is written as is.
//
// Reading from an already closed [os.File] is treated like EOF, since read
// ends are closed if the writing process does not terminate in time.
func CopyLines(dst io.Writer, src io.Reader) (int64, error) {
	var written int64

	reader := bufio.NewReader(src)

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			n, err := dst.Write(line)

			written += int64(n)

			if err != nil {
				return written, fmt.Errorf("write: %w", err)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, os.ErrClosed) {
				return written, nil
			}

			return written, fmt.Errorf("read: %w", readErr)
		}
	}
}
