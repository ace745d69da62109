// Package logging carries a per-request correlation ID through the context
// so every log line for one proxy attempt can be tied together.
package logging

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "requestId"

// FromRequest returns the caller-supplied X-Request-ID, or a fresh
// "req-{uuid}" when the header is absent.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return "req-" + uuid.New().String()
}

// WithRequestID injects the request ID into the context. Values survive
// context.WithoutCancel, so the ID follows the attempt even after the
// client connection is detached.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID from the context, or "" when none was
// injected.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Prefix renders the context's request ID as a "[id] " log prefix.
// Contexts without an ID get an empty prefix, so callers can always
// prepend it unconditionally.
func Prefix(ctx context.Context) string {
	if id := RequestID(ctx); id != "" {
		return "[" + id + "] "
	}
	return ""
}
