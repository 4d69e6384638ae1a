// Package api provides the REST endpoint for resolving DRS URIs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/txn2/drs-resolver/pkg/auth"
	"github.com/txn2/drs-resolver/pkg/fields"
	httpauth "github.com/txn2/drs-resolver/pkg/http"
	"github.com/txn2/drs-resolver/pkg/middleware"
	"github.com/txn2/drs-resolver/pkg/resolver"
)

// ForceAccessURLHeader asks for a signed URL regardless of provider policy.
const ForceAccessURLHeader = "drs-force-access-url"

// ResolvePath is the resolution endpoint.
const ResolvePath = "/api/v4/drs/resolve"

const maxBodySize = 1 << 20

// Resolver resolves DRS URIs.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (map[string]any, error)
}

// Handler provides the REST API endpoints.
type Handler struct {
	mux        *http.ServeMux
	resolver   Resolver
	authMiddle func(http.Handler) http.Handler
}

// NewHandler creates a new API handler. authMiddle, when set, wraps every route.
func NewHandler(r Resolver, authMiddle func(http.Handler) http.Handler) *Handler {
	h := &Handler{
		mux:        http.NewServeMux(),
		resolver:   r,
		authMiddle: authMiddle,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authMiddle != nil {
		h.authMiddle(h.mux).ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST "+ResolvePath, h.Resolve)
}

// resolveRequest is the request body. Fields stays raw so that a non-array
// value can be reported as a client error.
type resolveRequest struct {
	URL    string          `json:"url"`
	Fields json.RawMessage `json:"fields,omitempty"`
}

// Resolve handles POST /api/v4/drs/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httpauth.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req resolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpauth.WriteError(w, http.StatusBadRequest, "Request is invalid. Request body must be a JSON object.")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		httpauth.WriteError(w, http.StatusBadRequest, "Request is invalid. 'url' is missing.")
		return
	}
	httpauth.LogReceived(r.Context(), req.URL, r.Header, r.RemoteAddr)

	requested, err := parseFields(req.Fields)
	if err != nil {
		httpauth.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if rc := middleware.GetRequestContext(ctx); rc != nil {
		rc.Source = "rest"
	}

	out, err := h.resolver.Resolve(ctx, resolver.Request{
		URI:            req.URL,
		Fields:         requested,
		Bearer:         auth.GetToken(ctx),
		ForceAccessURL: ForceAccessURL(r),
	})
	if err != nil {
		httpauth.WriteError(w, resolver.StatusCode(err), err.Error())
		return
	}
	httpauth.WriteJSON(w, http.StatusOK, out)
}

// parseFields validates the optional fields list. Absent, null and empty
// lists yield nil, which the resolver treats as the default set.
func parseFields(raw json.RawMessage) (fields.Set, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, errFieldsNotArray
	}
	set := fields.Set(names)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// ForceAccessURL reports whether the request sets the force header to true.
func ForceAccessURL(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get(ForceAccessURLHeader)), "true")
}

type validationError string

func (e validationError) Error() string { return string(e) }

const errFieldsNotArray validationError = "Request is invalid. 'fields' must be an array of strings."
