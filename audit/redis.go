package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamMaxLen caps the audit stream when no length is configured.
const DefaultStreamMaxLen = 100_000

// RedisStreamSink appends events to a capped Redis stream with XADD.
type RedisStreamSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a sink appending to stream. A maxLen of zero
// uses DefaultStreamMaxLen; trimming is approximate.
func NewRedisStreamSink(client redis.Cmdable, stream string, maxLen int64) (*RedisStreamSink, error) {
	if client == nil {
		return nil, ErrNilSink
	}
	if stream == "" {
		stream = "opguard:audit"
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}, nil
}

func (s *RedisStreamSink) Write(ctx context.Context, ev Event) error {
	values, err := streamValues(ev)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStreamSink) Close() error { return nil }

// streamValues flattens ev into stream entry fields.
func streamValues(ev Event) (map[string]any, error) {
	values := map[string]any{
		"id":        ev.ID,
		"type":      string(ev.Type),
		"actor":     ev.Actor,
		"resource":  ev.Resource,
		"action":    ev.Action,
		"outcome":   ev.Outcome,
		"timestamp": ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if len(ev.Details) > 0 {
		details, err := json.Marshal(ev.Details)
		if err != nil {
			return nil, err
		}
		values["details"] = string(details)
	}
	return values, nil
}
