// Package audit records security-relevant events.
//
// A Logger stamps each Event with an ID, a UTC timestamp and the calling
// principal, then writes it synchronously to a Sink. Writes from one
// goroutine reach the sink in order. Sink failures never propagate to the
// caller; they are logged as low-severity system faults and counted.
//
// Sinks:
//
//   - WriterSink: JSON lines to any io.Writer, or a file via OpenFileSink.
//   - MemorySink: in-process, for tests and one-shot commands.
//   - RedisStreamSink: XADD to a capped Redis stream.
//   - KafkaSink: synchronous produce to a topic keyed by actor.
//   - SQLSink: INSERT into an audit_events table (Postgres or MySQL).
//   - MultiSink: fan-out to several sinks.
package audit
