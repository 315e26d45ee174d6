// Package observe provides the logging and telemetry used around invocations.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. Logging is backed by logrus with automatic redaction
// of sensitive keys; tracing and metrics use OpenTelemetry with stdout, OTLP
// and Prometheus exporters.
package observe
