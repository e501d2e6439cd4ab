package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "signupinfo"
	serverVersion = "0.1.0"
)

// NewServer builds an MCP server with all tools registered.
func NewServer(queries Queries) (*mcp.Server, error) {
	if queries == nil {
		return nil, fmt.Errorf("queries are required")
	}
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{})
	Register(server, queries)
	return server, nil
}

// Serve runs the tools over transport until ctx ends or the peer
// disconnects.
func Serve(ctx context.Context, queries Queries, transport mcp.Transport) error {
	server, err := NewServer(queries)
	if err != nil {
		return err
	}
	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

// ServeStdio runs the tools over standard input and output.
func ServeStdio(ctx context.Context, queries Queries) error {
	return Serve(ctx, queries, &mcp.StdioTransport{})
}
