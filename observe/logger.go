package observe

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/fault"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithOperation returns a logger that tags every entry with meta.
	WithOperation(meta OperationMeta) Logger

	// WithFields returns a logger that adds fields to every entry.
	WithFields(fields ...Field) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

const redacted = "[REDACTED]"

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logrus-backed logger.
func NewLogger(cfg LoggingConfig) (Logger, error) {
	l := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Level)
	}
	l.SetLevel(parsed)

	switch strings.ToLower(cfg.Format) {
	case "json", "":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogFormat, cfg.Format)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	return &logrusLogger{entry: logrus.NewEntry(l)}, nil
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	logger, err := NewLogger(LoggingConfig{Level: level, Output: w})
	if err != nil {
		logger, _ = NewLogger(LoggingConfig{Output: w})
	}
	return logger
}

func (l *logrusLogger) WithOperation(meta OperationMeta) Logger {
	fields := logrus.Fields{"operation": meta.ID()}
	if meta.Namespace != "" {
		fields["operation.namespace"] = meta.Namespace
	}
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}

func (l *logrusLogger) WithFields(fields ...Field) Logger {
	return &logrusLogger{entry: l.entry.WithFields(toLogrus(fields))}
}

func (l *logrusLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.DebugLevel, msg, fields)
}

func (l *logrusLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.InfoLevel, msg, fields)
}

func (l *logrusLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.WarnLevel, msg, fields)
}

func (l *logrusLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, logrus.ErrorLevel, msg, fields)
}

func (l *logrusLogger) log(ctx context.Context, level logrus.Level, msg string, fields []Field) {
	if !l.entry.Logger.IsLevelEnabled(level) {
		return
	}
	entry := l.entry.WithFields(contextFields(ctx)).WithFields(toLogrus(fields))
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	entry.Log(level, msg)
}

func toLogrus(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		if isRedactedField(f.Key) {
			out[f.Key] = redacted
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}

func contextFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}
	if ctx == nil {
		return fields
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}
	if principal := auth.PrincipalFromContext(ctx); principal != "" {
		fields["principal"] = principal
	}
	if tenant := auth.TenantIDFromContext(ctx); tenant != "" {
		fields["tenant_id"] = tenant
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	return fields
}

// RedactedFields holds key fragments whose values never reach the log.
// Matching is case-insensitive, so "db_password" and "X-Api-Key" are
// redacted too.
var RedactedFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"dsn",
}

func isRedactedField(key string) bool {
	key = strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	for _, frag := range RedactedFields {
		if strings.Contains(key, frag) {
			return true
		}
	}
	return false
}

// LogRecord logs a classified failure at a level chosen by its severity:
// high and critical at error, medium at warn, low at info.
func LogRecord(ctx context.Context, logger Logger, msg string, rec fault.Record, fields ...Field) {
	all := make([]Field, 0, len(fields)+4)
	for k, v := range rec.Fields() {
		all = append(all, Field{Key: k, Value: v})
	}
	all = append(all, fields...)

	switch {
	case rec.Severity().AtLeast(fault.SeverityHigh):
		logger.Error(ctx, msg, all...)
	case rec.Severity() == fault.SeverityMedium:
		logger.Warn(ctx, msg, all...)
	default:
		logger.Info(ctx, msg, all...)
	}
}

type nopLogger struct{}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...Field) {}
func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (l nopLogger) WithOperation(OperationMeta) Logger    { return l }
func (l nopLogger) WithFields(...Field) Logger            { return l }
