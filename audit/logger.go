package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/observe"
)

// Sink persists audit events.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Atomicity: each Write stores one whole event or nothing. MultiSink
//     holds this per member sink only.
type Sink interface {
	Write(ctx context.Context, ev Event) error
	Close() error
}

// Logger records audit events to a sink.
//
// Record never returns an error and never panics. Sink failures are
// classified as System/Low and logged; the audited operation is not affected.
// An event no sink stored counts in Dropped. An event a MultiSink stored in
// only some of its sinks counts in Recorded and Partial instead.
type Logger struct {
	sink       Sink
	logger     observe.Logger
	classifier *fault.Classifier
	now        func() time.Time
	newID      func() string

	recorded atomic.Int64
	dropped  atomic.Int64
	partial  atomic.Int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the application logger used to report sink failures.
func WithLogger(l observe.Logger) Option {
	return func(a *Logger) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClassifier sets the classifier used for sink failures.
func WithClassifier(c *fault.Classifier) Option {
	return func(a *Logger) {
		if c != nil {
			a.classifier = c
		}
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Logger) {
		if now != nil {
			a.now = now
		}
	}
}

// NewLogger creates an audit logger writing to sink.
func NewLogger(sink Sink, opts ...Option) *Logger {
	if sink == nil {
		sink = Discard()
	}
	a := &Logger{
		sink:       sink,
		logger:     observe.NopLogger(),
		classifier: fault.NewClassifier(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record writes ev synchronously. Missing ID, timestamp and actor are filled
// from a new UUID, the clock and the identity in ctx.
func (a *Logger) Record(ctx context.Context, ev Event) {
	if a == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = a.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = a.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	if ev.Actor == "" {
		ev.Actor = auth.Actor(ctx)
	}

	err := a.write(ctx, ev)
	if err == nil {
		a.recorded.Add(1)
		return
	}

	msg := "audit event dropped"
	var pe *PartialWriteError
	if errors.As(err, &pe) {
		msg = "audit event partially stored"
		a.recorded.Add(1)
		a.partial.Add(1)
	} else {
		a.dropped.Add(1)
	}
	rec := a.classifier.Classify(
		fault.Wrap(err, fault.KindSystem, "audit sink write failed").
			WithSeverity(fault.SeverityLow).
			WithContext("event_id", ev.ID).
			WithContext("event_type", string(ev.Type)),
	)
	observe.LogRecord(ctx, a.logger, msg, rec)
}

func (a *Logger) write(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit: sink panic: %v", r)
		}
	}()
	return a.sink.Write(ctx, ev)
}

// Recorded returns how many events reached the sink.
func (a *Logger) Recorded() int64 { return a.recorded.Load() }

// Dropped returns how many events the sink failed to store anywhere.
func (a *Logger) Dropped() int64 { return a.dropped.Load() }

// Partial returns how many events a fan-out sink stored in some but not all
// of its sinks. These are also counted in Recorded.
func (a *Logger) Partial() int64 { return a.partial.Load() }

// Close closes the sink.
func (a *Logger) Close() error {
	if a == nil {
		return nil
	}
	return a.sink.Close()
}
