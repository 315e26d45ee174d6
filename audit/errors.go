package audit

import "errors"

var (
	// ErrSinkClosed is returned by sinks written after Close.
	ErrSinkClosed = errors.New("audit: sink closed")

	// ErrNilSink is returned when a sink constructor receives no backend.
	ErrNilSink = errors.New("audit: nil sink backend")

	// ErrUnknownSink is returned for an unrecognized sink name.
	ErrUnknownSink = errors.New("audit: unknown sink")
)
