package config

import "errors"

var (
	// ErrMissingEnv is returned when a ${VAR} reference names an unset variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")

	// ErrInvalidEnv is returned when an OPGUARD_* override cannot be parsed.
	ErrInvalidEnv = errors.New("config: invalid environment override")

	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrUnknownSink is returned for an audit sink name Load does not know.
	ErrUnknownSink = errors.New("config: unknown audit sink")
)

// AuditSinks lists the accepted audit sink names.
var AuditSinks = []string{"stdout", "stderr", "file", "memory", "redis", "kafka", "postgres", "mysql", "none"}
