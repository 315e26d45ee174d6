package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/fault"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "hello", Field{Key: "count", Value: 3})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0]["msg"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.EqualValues(t, 3, entries[0]["count"])
	assert.NotEmpty(t, entries[0]["timestamp"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)

	logger.Debug(context.Background(), "d")
	logger.Info(context.Background(), "i")
	logger.Warn(context.Background(), "w")
	logger.Error(context.Background(), "e")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warning", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "login",
		Field{Key: "password", Value: "hunter2"},
		Field{Key: "api_key", Value: "k"},
		Field{Key: "user", Value: "bob"},
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	entries := decodeLines(t, &buf)
	assert.Equal(t, redacted, entries[0]["password"])
	assert.Equal(t, redacted, entries[0]["api_key"])
	assert.Equal(t, "bob", entries[0]["user"])
}

func TestIsRedactedField(t *testing.T) {
	for _, key := range []string{"db_password", "X-Api-Key", "Authorization", "postgres_dsn", "refreshToken"} {
		assert.True(t, isRedactedField(key), key)
	}
	for _, key := range []string{"client_id", "key_id", "attempts", "error_id"} {
		assert.False(t, isRedactedField(key), key)
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithOperation(OperationMeta{Namespace: "billing", Name: "charge"})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = auth.WithIdentity(ctx, &auth.Identity{Principal: "alice"})
	logger.Info(ctx, "charged")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, "alice", entries[0]["principal"])
	assert.Equal(t, "billing.charge", entries[0]["operation"])
	assert.Equal(t, "billing", entries[0]["operation.namespace"])
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	_, err := NewLogger(LoggingConfig{Level: "loud"})
	assert.ErrorIs(t, err, ErrInvalidLogLevel)

	_, err = NewLogger(LoggingConfig{Format: "xml"})
	assert.ErrorIs(t, err, ErrInvalidLogFormat)
}

func TestLogRecord_LevelBySeverity(t *testing.T) {
	tests := []struct {
		severity fault.Severity
		level    string
	}{
		{fault.SeverityCritical, "error"},
		{fault.SeverityHigh, "error"},
		{fault.SeverityMedium, "warning"},
		{fault.SeverityLow, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter("debug", &buf)
			rec := fault.NewRecord(fault.RecordInput{
				ID:        "error_1",
				Kind:      fault.KindSystem,
				Severity:  tt.severity,
				Message:   "m",
				Timestamp: time.Now(),
			})

			LogRecord(context.Background(), logger, "operation failed", rec)

			entries := decodeLines(t, &buf)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0]["level"])
			assert.Equal(t, "error_1", entries[0]["error_id"])
			assert.Equal(t, "system", entries[0]["error_kind"])
		})
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	assert.NotPanics(t, func() {
		l.WithOperation(OperationMeta{Name: "x"}).WithFields(Field{Key: "a", Value: 1}).Error(context.Background(), "x")
	})
}
