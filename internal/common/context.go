package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyCorrelationID contextKey = "correlation_id"
	ContextKeyCallerID      contextKey = "caller_id"
)

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, id)
}

// CorrelationIDFromContext extracts the correlation ID from context
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// WithCallerID adds the owning caller identity to the context
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCallerID, id)
}

// CallerIDFromContext extracts the caller identity from context
func CallerIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCallerID).(string); ok {
		return id
	}
	return ""
}
