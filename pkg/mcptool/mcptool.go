// Package mcptool exposes DRS resolution as an MCP tool.
package mcptool

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/drs-resolver/pkg/auth"
	"github.com/txn2/drs-resolver/pkg/fields"
	httpauth "github.com/txn2/drs-resolver/pkg/http"
	"github.com/txn2/drs-resolver/pkg/middleware"
	"github.com/txn2/drs-resolver/pkg/resolver"
)

// ToolName is the name the resolve tool is registered under.
const ToolName = "resolve_drs_uri"

// Resolver resolves DRS URIs.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (map[string]any, error)
}

type resolveInput struct {
	URL            string   `json:"url" jsonschema:"DRS or DOS URI to resolve, for example drs://dg.4503:0123-abcd"`
	Fields         []string `json:"fields,omitempty" jsonschema:"Fields to return. Omit for the default set."`
	ForceAccessURL bool     `json:"force_access_url,omitempty" jsonschema:"Request a signed URL even when the provider would not issue one by default"`
}

// NewServer creates an MCP server with the resolve tool registered.
func NewServer(name, version string, r Resolver) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	Register(server, r)
	return server
}

// Handler serves server over the streamable HTTP transport.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

// Register adds the resolve tool to server.
func Register(server *mcp.Server, r Resolver) {
	mcp.AddTool(server, &mcp.Tool{
		Name:  ToolName,
		Title: "Resolve DRS URI",
		Description: "Resolve a GA4GH DRS or DOS URI to object metadata and, when permitted, a signed access URL. " +
			"Supported fields: " + strings.Join(fields.All, ", ") + ".",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input resolveInput) (*mcp.CallToolResult, any, error) {
		return handleResolve(ctx, req, r, input)
	})
}

func handleResolve(ctx context.Context, req *mcp.CallToolRequest, r Resolver, input resolveInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.URL) == "" {
		return errorResult(http.StatusBadRequest, "Request is invalid. 'url' is missing."), nil, nil
	}
	httpauth.LogReceived(ctx, input.URL, requestHeader(req), "")

	requested := fields.Set(input.Fields)
	if err := requested.Validate(); err != nil {
		return errorResult(http.StatusBadRequest, err.Error()), nil, nil
	}
	if len(requested) == 0 {
		requested = nil
	}

	if rc := middleware.GetRequestContext(ctx); rc != nil {
		rc.Source = "mcp"
	}

	out, err := r.Resolve(ctx, resolver.Request{
		URI:            input.URL,
		Fields:         requested,
		Bearer:         bearer(ctx, req),
		ForceAccessURL: input.ForceAccessURL,
	})
	if err != nil {
		return errorResult(resolver.StatusCode(err), err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError, not as Go errors
	}
	return nil, out, nil
}

// bearer prefers the token placed in the context by HTTP middleware and
// falls back to the transport's request headers.
func bearer(ctx context.Context, req *mcp.CallToolRequest) string {
	if token := auth.GetToken(ctx); token != "" {
		return token
	}
	return httpauth.BearerFromHeader(requestHeader(req))
}

// requestHeader returns the HTTP headers the MCP transport received, if any.
func requestHeader(req *mcp.CallToolRequest) http.Header {
	if req == nil || req.Extra == nil {
		return nil
	}
	return req.Extra.Header
}

func errorResult(status int, message string) *mcp.CallToolResult {
	body, _ := json.Marshal(map[string]any{"error": message, "status": status})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		IsError: true,
	}
}
