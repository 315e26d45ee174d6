package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

// WriterSink writes events as JSON lines. Each event is a single Write call
// made under a lock, so lines from concurrent callers never interleave.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// OpenFileSink opens (or creates) path for appending and returns a sink that
// writes to it.
func OpenFileSink(path string) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return NewWriterSink(f), nil
}

func (s *WriterSink) Write(_ context.Context, ev Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	_, err = s.w.Write(line)
	return err
}

// Close closes the underlying writer if it is an io.Closer other than the
// process's standard streams.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.w == os.Stdout || s.w == os.Stderr {
		return nil
	}
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Events returns a copy of the stored events in write order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Len returns the number of stored events.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// MultiSink writes every event to each of its sinks. When some sinks store
// the event and others fail, Write returns a *PartialWriteError.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := writeContained(ctx, s, ev); err != nil {
			errs = append(errs, err)
		}
	}
	switch {
	case len(errs) == 0:
		return nil
	case len(errs) == len(m):
		return errors.Join(errs...)
	default:
		return &PartialWriteError{Stored: len(m) - len(errs), Failed: len(errs), Err: errors.Join(errs...)}
	}
}

func writeContained(ctx context.Context, s Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit: sink panic: %v", r)
		}
	}()
	return s.Write(ctx, ev)
}

// PartialWriteError is returned by MultiSink when at least one sink stored
// the event and at least one did not.
type PartialWriteError struct {
	Stored int
	Failed int
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("audit: event stored by %d of %d sinks: %v", e.Stored, e.Stored+e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discard struct{}

// Discard returns a sink that drops every event.
func Discard() Sink { return discard{} }

func (discard) Write(context.Context, Event) error { return nil }
func (discard) Close() error                       { return nil }
