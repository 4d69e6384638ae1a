// Package http provides HTTP middleware for the DRS resolver.
package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/txn2/drs-resolver/pkg/auth"
	"github.com/txn2/drs-resolver/pkg/middleware"
)

// AuthMiddleware extracts the bearer token from the Authorization header and
// adds it to the request context. Tokens are not validated here; they are
// forwarded to upstream services, which do.
func AuthMiddleware(requireAuth bool) func(http.Handler) http.Handler {
	extractor := auth.DefaultClaimsExtractor()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)

			if requireAuth && token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteError(w, http.StatusUnauthorized, "Request is missing a bearer token in the Authorization header")
				return
			}

			if token != "" {
				ctx := auth.WithToken(r.Context(), token)
				if uc := extractor.Identify(token); uc != nil {
					if rc := middleware.GetRequestContext(ctx); rc != nil {
						rc.Subject = uc.Subject
						rc.Email = uc.Email
					}
				}
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken returns the token from an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	return BearerFromHeader(r.Header)
}

// BearerFromHeader returns the bearer token carried in h, or "".
func BearerFromHeader(h http.Header) string {
	header := h.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequireAuth returns middleware that rejects requests without a bearer token.
func RequireAuth() func(http.Handler) http.Handler {
	return AuthMiddleware(true)
}

// OptionalAuth returns middleware that allows anonymous requests.
func OptionalAuth() func(http.Handler) http.Handler {
	return AuthMiddleware(false)
}

// WriteError writes {"error": message} with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{"error": message, "status": status})
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
