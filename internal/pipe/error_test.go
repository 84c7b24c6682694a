// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipe_test

import (
	"errors"
	"testing"

	"github.com/aibor/hnxboot/internal/pipe"
	"github.com/stretchr/testify/assert"
)

func TestStreamError_Is(t *testing.T) {
	//nolint:testifylint
	assert.ErrorIs(t, error(&pipe.StreamError{}), &pipe.StreamError{})
	assert.NotErrorIs(t, assert.AnError, &pipe.StreamError{})
}

func TestStreamError_Message(t *testing.T) {
	tests := []struct {
		name     string
		err      *pipe.StreamError
		expected string
	}{
		{
			name:     "silent",
			err:      &pipe.StreamError{Stream: "stdout", Err: pipe.ErrNoOutput},
			expected: "stdout stream after 0 bytes: stream ended without output",
		},
		{
			name:     "copy failure",
			err:      &pipe.StreamError{Stream: "stderr", Copied: 42, Err: errors.New("broken pipe")},
			expected: "stderr stream after 42 bytes: broken pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.expected)
			assert.ErrorIs(t, tt.err, tt.err.Err)
		})
	}
}
