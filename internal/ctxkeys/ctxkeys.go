// Package ctxkeys holds the typed context keys threaded through a
// request's lifetime, keeping ad hoc string keys out of context.Value
// calls.
package ctxkeys

import "context"

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID attaches the per-request trace ID, generated once per
// request and carried through routing, provider calls, and the logged
// request_log row.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID retrieves the trace ID set by WithTraceID, if any.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
