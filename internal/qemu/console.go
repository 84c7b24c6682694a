// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"bytes"
	"regexp"
	"sync"
)

// GuestEvent is a noteworthy condition recognized in the guest console
// output.
type GuestEvent int

// Known guest events.
const (
	GuestEventNone GuestEvent = iota
	GuestEventKernelPanic
	GuestEventProgramPanic
)

func (e GuestEvent) String() string {
	switch e {
	case GuestEventKernelPanic:
		return "kernel panic"
	case GuestEventProgramPanic:
		return "program panic"
	default:
		return "none"
	}
}

var (
	kernelPanicRE  = regexp.MustCompile(`^\[PANIC\] HNX Microkernel panic:`)
	programPanicRE = regexp.MustCompile(`^\[[\w-]+\] PANIC: `)
)

// ParseGuestEvent returns the event the given console line indicates.
func ParseGuestEvent(line []byte) GuestEvent {
	line = bytes.TrimLeft(line, "\r\n")

	switch {
	case kernelPanicRE.Match(line):
		return GuestEventKernelPanic
	case programPanicRE.Match(line):
		return GuestEventProgramPanic
	default:
		return GuestEventNone
	}
}

// ConsoleWatcher is an [io.Writer] that records guest events found in the
// console output. Each write must contain a single complete line, as
// written by [pipe.CopyLines].
type ConsoleWatcher struct {
	mu     sync.Mutex
	events []GuestEvent
	lines  []string
}

// Write implements [io.Writer]. It never fails.
func (w *ConsoleWatcher) Write(line []byte) (int, error) {
	event := ParseGuestEvent(line)
	if event == GuestEventNone {
		return len(line), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, event)
	w.lines = append(w.lines, string(bytes.TrimSpace(line)))

	return len(line), nil
}

// Events returns all recognized events in order along with the lines they
// were found in.
func (w *ConsoleWatcher) Events() ([]GuestEvent, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]GuestEvent(nil), w.events...), append([]string(nil), w.lines...)
}

// Panicked reports if a kernel panic was recognized.
func (w *ConsoleWatcher) Panicked() bool {
	events, _ := w.Events()

	for _, event := range events {
		if event == GuestEventKernelPanic {
			return true
		}
	}

	return false
}
