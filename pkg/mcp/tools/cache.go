package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/schema"
)

// RegisterCacheTools registers the schema cache tools.
func RegisterCacheTools(s *server.MCPServer, deps *ToolDeps) {
	registerCacheStatsTool(s, deps)
	registerRefreshCacheTool(s, deps)
}

func registerCacheStatsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"cache_stats",
		mcp.WithDescription(
			"Report the schema cache contents: entry counts per level and the "+
				"approximate total size.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats := deps.Provider.GetCacheStats(ctx)

		jsonResult, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cache stats: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

type refreshCacheResult struct {
	Scope       string `json:"scope"`
	Invalidated int    `json:"invalidated"`
}

var validScopes = []string{"all", "schema", "relationships", "statistics", "sample_data"}

func registerRefreshCacheTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"refresh_cache",
		mcp.WithDescription(
			"Invalidate cached schema information so the next read rebuilds it "+
				"from live introspection. Scope narrows the refresh to one cache "+
				"level; omitting it refreshes everything.",
		),
		mcp.WithString("scope",
			mcp.Description("One of: all, schema, relationships, statistics, sample_data (default all)")),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scopeArg := string(schema.RefreshAll)
		if args, ok := req.Params.Arguments.(map[string]any); ok {
			if v, ok := args["scope"].(string); ok && v != "" {
				scopeArg = v
			}
		}

		scope, ok := schema.ParseRefreshScope(scopeArg)
		if !ok {
			return NewErrorResultWithDetails("invalid_scope",
				fmt.Sprintf("unknown refresh scope %q", scopeArg),
				map[string]any{"valid_scopes": validScopes}), nil
		}

		invalidated, err := deps.Provider.RefreshCache(ctx, scope)
		if err != nil {
			deps.Logger.Error("Refresh cache tool failed",
				zap.String("scope", scopeArg),
				zap.Error(err))
			return nil, err
		}

		jsonResult, err := json.Marshal(refreshCacheResult{Scope: scopeArg, Invalidated: invalidated})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal refresh result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
