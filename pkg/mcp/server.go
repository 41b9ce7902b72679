// Package mcp exposes the optimizer's operations as MCP tools over a
// streamable HTTP transport.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const serverInstructions = "Tools for querying a PostgreSQL database in natural language, " +
	"analyzing and optimizing SQL statements, and inspecting the cached schema context. " +
	"All execution is read-only; statements that modify data are rejected."

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. Tool handlers run with panic
// recovery so a faulting tool reports an error result instead of taking the
// process down.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP
// server. The transport is stateless and the HTTP mux owns routing to /mcp,
// so neither sessions nor an endpoint path are configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
