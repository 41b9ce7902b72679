// Package tools registers the optimizer's MCP tools. Every tool delegates to
// the same services the HTTP handlers use and marshals the same result
// shapes.
package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/schema"
	"github.com/anishjain94/db-optimizer/pkg/services"
)

// ToolDeps carries the services the MCP tools delegate to.
type ToolDeps struct {
	NaturalQuery services.NaturalQueryService
	Analyzer     services.QueryAnalyzer
	Optimizer    services.QueryOptimizer
	Provider     schema.ContextProvider
	Logger       *zap.Logger
}

// RegisterAll registers every optimizer tool on the MCP server.
func RegisterAll(s *server.MCPServer, deps *ToolDeps, version string) {
	RegisterQueryTools(s, deps)
	RegisterSchemaTools(s, deps)
	RegisterCacheTools(s, deps)
	RegisterHealthTool(s, version)
}
