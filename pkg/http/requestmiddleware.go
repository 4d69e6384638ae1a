package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/drs-resolver/pkg/middleware"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-Id"

// RequestContext attaches a middleware.RequestContext to every request,
// reusing an inbound X-Request-Id when present.
func RequestContext(source string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			rc := middleware.NewRequestContext(id)
			rc.Transport = "http"
			rc.Source = source

			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(middleware.WithRequestContext(r.Context(), rc)))
		})
	}
}

// Timeout bounds the request context. A zero duration disables it.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// AccessLog logs one line per request after it completes.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if rc := middleware.GetRequestContext(r.Context()); rc != nil {
				attrs = append(attrs, "request_id", rc.RequestID)
				if rc.Subject != "" {
					attrs = append(attrs, "subject", rc.Subject)
				}
				if rc.Provider != "" {
					attrs = append(attrs, "provider", rc.Provider)
				}
			}
			logger.Info("request", attrs...)
		})
	}
}

// Chain applies middleware so that the first listed runs outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ClientIP returns the first X-Forwarded-For address, else the host part of
// remoteAddr.
func ClientIP(h http.Header, remoteAddr string) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// LogReceived logs an inbound resolution request together with the caller's
// identity from the request context.
func LogReceived(ctx context.Context, drsURL string, h http.Header, remoteAddr string) {
	middleware.Logger(ctx).Info("received DRS URL",
		"url", drsURL,
		"user_agent", h.Get("User-Agent"),
		"ip", ClientIP(h, remoteAddr),
	)
}
