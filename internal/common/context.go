package common

import (
	"context"

	"github.com/google/uuid"
)

// correlationKey is the context key for the per-call correlation ID.
type correlationKey struct{}

// NewCorrelationID returns a fresh ID for tracing one tool call through all layers.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts the correlation ID from the context, if present.
func CorrelationID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// ForContext returns a logger tagged with the context's correlation ID,
// or l itself when the context carries none.
func (l *Logger) ForContext(ctx context.Context) *Logger {
	if id, ok := CorrelationID(ctx); ok {
		return l.WithCorrelationId(id)
	}
	return l
}
