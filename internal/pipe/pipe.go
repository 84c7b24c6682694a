// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pipe copies everything read from its input to its output.
type Pipe struct {
	Name        string
	InputReader io.Reader
	InputCloser io.Closer
	Output      io.Writer
	CopyFunc    CopyFunc

	// MayBeSilent allows the pipe to not produce any output. Otherwise
	// [ErrNoOutput] is returned.
	MayBeSilent bool
}

func (p *Pipe) run() (int64, error) {
	copyFunc := p.CopyFunc
	if copyFunc == nil {
		copyFunc = io.Copy
	}

	written, err := copyFunc(p.Output, p.InputReader)
	if err != nil {
		return written, &StreamError{Stream: p.Name, Copied: written, Err: err}
	}

	if written == 0 && !p.MayBeSilent {
		return written, &StreamError{Stream: p.Name, Err: ErrNoOutput}
	}

	return written, nil
}

// Pipes runs multiple [Pipe]s concurrently.
//
// The zero value is ready to use. [Pipes.Run] must not be called after
// [Pipes.Wait] was called.
type Pipes struct {
	group errgroup.Group

	mu           sync.Mutex
	pipes        []*Pipe
	bytesWritten map[string]int64

	waitOnce sync.Once
	done     chan struct{}
	err      error
}

// Run starts copying the given [Pipe] in a new goroutine.
func (p *Pipes) Run(pipe *Pipe) {
	p.mu.Lock()
	p.pipes = append(p.pipes, pipe)
	p.mu.Unlock()

	p.group.Go(func() error {
		written, err := pipe.run()

		p.mu.Lock()
		if p.bytesWritten == nil {
			p.bytesWritten = make(map[string]int64)
		}
		p.bytesWritten[pipe.Name] = written
		p.mu.Unlock()

		slog.Debug("Pipe finished",
			slog.String("pipe", pipe.Name),
			slog.Int64("bytes", written))

		return err
	})
}

// Wait waits for all pipes to finish, but at most for the given timeout.
//
// It returns [ErrWaitTimeout] if the timeout is reached first. It may be
// called again, e.g. after [Pipes.Close], to wait for the remaining copies.
func (p *Pipes) Wait(timeout time.Duration) error {
	p.waitOnce.Do(func() {
		p.done = make(chan struct{})

		go func() {
			p.err = p.group.Wait()
			close(p.done)
		}()
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.err
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Close closes the inputs of all pipes. Blocked copies return once their
// input is closed.
func (p *Pipes) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	for _, pipe := range p.pipes {
		if pipe.InputCloser == nil {
			continue
		}

		err := pipe.InputCloser.Close()
		if err != nil {
			errs = append(errs, &StreamError{Stream: pipe.Name, Err: fmt.Errorf("close: %w", err)})
		}
	}

	return errors.Join(errs...)
}

// Len returns the number of pipes.
func (p *Pipes) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.pipes)
}

// BytesWritten returns the number of bytes written by each finished pipe.
func (p *Pipes) BytesWritten() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make(map[string]int64, len(p.bytesWritten))
	for name, written := range p.bytesWritten {
		result[name] = written
	}

	return result
}
