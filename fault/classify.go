package fault

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxCauseDepth bounds the cause chain walk for cyclic or very deep chains.
const maxCauseDepth = 16

// Match is the result of a successful Matcher.
type Match struct {
	Kind     Kind
	Severity Severity
	Message  string
	Context  map[string]any
}

// Matcher recognizes errors from a specific library. It returns false when
// the error is not one it understands.
type Matcher func(err error) (Match, bool)

// Classifier turns arbitrary errors into Records.
//
// Classification is deterministic per error type: the same input always
// yields the same kind and severity. Only the ID and timestamp differ.
type Classifier struct {
	matchers []Matcher
	now      func() time.Time
	newID    func(time.Time) string
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithMatchers appends matchers, consulted in order after *Error values.
func WithMatchers(m ...Matcher) ClassifierOption {
	return func(c *Classifier) {
		c.matchers = append(c.matchers, m...)
	}
}

// WithoutDefaultMatchers drops the built-in driver matchers.
func WithoutDefaultMatchers() ClassifierOption {
	return func(c *Classifier) {
		c.matchers = nil
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator sets the record ID generator.
func WithIDGenerator(gen func(time.Time) string) ClassifierOption {
	return func(c *Classifier) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// NewClassifier creates a classifier with the default driver matchers.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		matchers: DefaultMatchers(),
		now:      time.Now,
		newID:    NewID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewID returns an identifier of the form error_YYYYMMDD_xxxxxxxx.
func NewID(t time.Time) string {
	return fmt.Sprintf("error_%s_%s", t.UTC().Format("20060102"), uuid.NewString()[:8])
}

// Classify maps err to a Record. It never panics: a failure inside a matcher
// degrades to the System fallback.
func (c *Classifier) Classify(err error) Record {
	in := c.resolve(err)
	in.Timestamp = c.now()
	in.ID = c.newID(in.Timestamp)
	return NewRecord(in)
}

// Categorize returns the kind and resolved severity Classify would assign to
// err, without building a record.
func (c *Classifier) Categorize(err error) (Kind, Severity) {
	in := c.resolve(err)
	return in.Kind, in.Severity.OrDefault()
}

func (c *Classifier) resolve(err error) (in RecordInput) {
	defer func() {
		if r := recover(); r != nil {
			in = RecordInput{
				Kind:     KindSystem,
				Severity: SeverityHigh,
				Message:  "unclassified error",
				Context:  map[string]any{"classifier_panic": fmt.Sprint(r)},
				Causes:   in.Causes,
			}
		}
	}()

	if err == nil {
		return RecordInput{Kind: KindSystem, Severity: SeverityLow, Message: "no error"}
	}

	in.Causes = causeChain(err)

	var fe *Error
	if errors.As(err, &fe) {
		in.Kind = fe.Kind
		if _, known := kindNames[in.Kind]; !known {
			in.Kind = KindSystem
		}
		in.Severity = fe.Severity
		in.Message = fe.Message
		in.Details = fe.Details
		in.Context = withType(fe.Context, fe)
		if fe.Cause != nil {
			in.Context["cause"] = fe.Cause.Error()
		}
		return in
	}

	for _, m := range c.matchers {
		if match, ok := m(err); ok {
			in.Kind = match.Kind
			in.Severity = match.Severity
			in.Message = match.Message
			if in.Message == "" {
				in.Message = err.Error()
			}
			in.Context = withType(match.Context, err)
			in.Context["error"] = err.Error()
			return in
		}
	}

	in.Kind = KindSystem
	in.Severity = SeverityHigh
	in.Message = "unclassified error"
	in.Context = withType(nil, err)
	in.Context["error"] = err.Error()
	return in
}

func withType(ctx map[string]any, err error) map[string]any {
	out := make(map[string]any, len(ctx)+2)
	maps.Copy(out, ctx)
	out["type"] = typeName(err)
	return out
}

func typeName(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// causeChain walks Unwrap links, including joined errors, breadth first.
func causeChain(err error) []Cause {
	var chain []Cause
	queue := []error{err}
	for len(queue) > 0 && len(chain) < maxCauseDepth {
		cur := queue[0]
		queue = queue[1:]
		if cur == nil {
			continue
		}
		chain = append(chain, Cause{Type: typeName(cur), Message: cur.Error()})
		switch u := cur.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		case interface{ Unwrap() error }:
			queue = append(queue, u.Unwrap())
		}
	}
	return chain
}
