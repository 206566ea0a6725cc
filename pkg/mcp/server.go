// Package mcp exposes the delegation service over the Model Context
// Protocol so MCP clients can introspect and manage their own delegate
// through the same access token they hold for the REST API.
package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/casfa/casfa/pkg/auth"
	"github.com/casfa/casfa/pkg/delegate"
)

const endpointPath = "/api/mcp"

// Server wraps the streamable MCP endpoint. It mounts behind the
// access-token middleware, so every tool call runs with an authenticated
// delegate identity in its context.
type Server struct {
	mcpServer  *server.MCPServer
	streamable *server.StreamableHTTPServer
	manager    *delegate.Manager
}

// NewServer creates the MCP server with the built-in tools registered.
func NewServer(manager *delegate.Manager, version string) *Server {
	mcpServer := server.NewMCPServer(
		"casfa",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{mcpServer: mcpServer, manager: manager}

	mcpServer.AddTool(mcp.Tool{
		Name:        "whoami",
		Description: "Describe the delegate identity behind the current access token",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.whoami)

	mcpServer.AddTool(mcp.Tool{
		Name:        "list_delegates",
		Description: "List the direct children of the calling delegate",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"includeRevoked": map[string]interface{}{
					"type":        "boolean",
					"description": "Include revoked children in the listing",
				},
			},
		},
	}, s.listDelegates)

	// Sessions are stateless: each tool call carries its own credential,
	// so there is no protocol state worth pinning to a connection.
	s.streamable = server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if a, ok := auth.FromContext(r.Context()); ok {
				return auth.WithAuth(ctx, a)
			}
			return ctx
		}),
	)
	return s
}

// Handler returns the HTTP handler to mount at /api/mcp.
func (s *Server) Handler() http.Handler {
	return s.streamable
}

// whoami reports the authenticated delegate's identity and permissions.
func (s *Server) whoami(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	authCtx, ok := auth.FromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("no authenticated identity on this session"), nil
	}

	d, err := s.manager.GetVisible(ctx, authCtx.DelegateID, authCtx.DelegateID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load delegate: %v", err)), nil
	}

	return mcp.NewToolResultStructuredOnly(map[string]interface{}{
		"delegateId":     d.DelegateID,
		"name":           d.Name,
		"realm":          d.Realm,
		"depth":          d.Depth,
		"canUpload":      d.CanUpload,
		"canManageDepot": d.CanManageDepot,
		"scopeNodeHash":  d.ScopeNodeHash,
		"expiresAt":      d.ExpiresAt,
	}), nil
}

// listDelegates lists the caller's direct children.
func (s *Server) listDelegates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	authCtx, ok := auth.FromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("no authenticated identity on this session"), nil
	}

	args := struct {
		IncludeRevoked bool `json:"includeRevoked,omitempty"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	children, _, err := s.manager.ListChildren(
		ctx, authCtx.DelegateID, authCtx.DelegateID, 100, "", args.IncludeRevoked)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list delegates: %v", err)), nil
	}

	results := make([]delegate.Metadata, 0, len(children))
	for _, child := range children {
		results = append(results, child.Metadata())
	}
	return mcp.NewToolResultStructuredOnly(results), nil
}
