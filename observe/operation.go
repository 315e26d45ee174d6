package observe

import "context"

// OperationMeta names an operation for telemetry and audit purposes.
type OperationMeta struct {
	Namespace string // Resource or subsystem the operation touches (may be empty)
	Name      string // Operation name (required for meaningful telemetry)
}

// SpanName returns the deterministic span name for this operation.
// Format: opguard.invoke.<namespace>.<name> or opguard.invoke.<name>
func (m OperationMeta) SpanName() string {
	return "opguard.invoke." + m.ID()
}

// ID returns namespace.name, or just the name without a namespace.
func (m OperationMeta) ID() string {
	name := m.Name
	if name == "" {
		name = "anonymous"
	}
	if m.Namespace != "" {
		return m.Namespace + "." + name
	}
	return name
}

type ctxKey int

const (
	operationKey ctxKey = iota
	requestIDKey
)

// WithOperation attaches operation metadata to ctx.
func WithOperation(ctx context.Context, meta OperationMeta) context.Context {
	return context.WithValue(ctx, operationKey, meta)
}

// OperationFromContext returns the operation metadata attached to ctx.
func OperationFromContext(ctx context.Context) (OperationMeta, bool) {
	meta, ok := ctx.Value(operationKey).(OperationMeta)
	return meta, ok
}

// WithRequestID attaches a request correlation ID to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request correlation ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
