// Package auth identifies the caller behind a bearer token. Tokens are passed
// through to upstream services untouched; the resolver never validates them.
package auth

import (
	"context"

	"github.com/txn2/drs-resolver/pkg/middleware"
)

// UserContext holds what is known about the caller, for logging. It is
// copied onto the request's middleware.RequestContext.
type UserContext struct {
	Subject string         `json:"subject,omitempty"`
	Email   string         `json:"email,omitempty"`
	Issuer  string         `json:"issuer,omitempty"`
	Claims  map[string]any `json:"claims,omitempty"`
}

// WithToken adds a token to the context.
// Delegates to middleware.WithToken so that both packages share the same context key.
func WithToken(ctx context.Context, token string) context.Context {
	return middleware.WithToken(ctx, token)
}

// GetToken retrieves a token from the context.
// Delegates to middleware.GetToken so that both packages share the same context key.
func GetToken(ctx context.Context) string {
	return middleware.GetToken(ctx)
}
