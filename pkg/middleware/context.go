// Package middleware provides the per-request context shared by the REST and
// MCP entry points.
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// contextKey is a private type for context keys.
type contextKey int

const (
	requestContextKey contextKey = iota
	tokenContextKey
)

// RequestContext holds request-scoped metadata.
type RequestContext struct {
	// Request identification
	RequestID string
	StartTime time.Time

	// Caller information, read from unverified token claims for logging only.
	Subject string
	Email   string

	// Transport metadata
	Transport string // "http" or "mcp"
	Source    string // "rest", "mcp"

	// Resolution details (populated by the resolver)
	Provider string
}

// NewRequestContext creates a new request context.
func NewRequestContext(requestID string) *RequestContext {
	return &RequestContext{
		RequestID: requestID,
		StartTime: time.Now(),
	}
}

// WithRequestContext adds request context to the context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// GetRequestContext retrieves request context from the context.
func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return rc
	}
	return nil
}

// WithToken adds the caller's bearer token to the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken retrieves the caller's bearer token from the context.
func GetToken(ctx context.Context) string {
	if token, ok := ctx.Value(tokenContextKey).(string); ok {
		return token
	}
	return ""
}

// Logger returns slog.Default annotated with the request's identifiers.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	rc := GetRequestContext(ctx)
	if rc == nil {
		return logger
	}
	attrs := []any{"request_id", rc.RequestID}
	if rc.Subject != "" {
		attrs = append(attrs, "subject", rc.Subject)
	}
	if rc.Email != "" {
		attrs = append(attrs, "email", rc.Email)
	}
	if rc.Source != "" {
		attrs = append(attrs, "source", rc.Source)
	}
	return logger.With(attrs...)
}
