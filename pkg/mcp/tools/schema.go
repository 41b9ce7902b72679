package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
)

// RegisterSchemaTools registers the schema inspection tools.
func RegisterSchemaTools(s *server.MCPServer, deps *ToolDeps) {
	registerListTablesTool(s, deps)
	registerGetSchemaTool(s, deps)
}

type tableSummary struct {
	Name     string `json:"name"`
	Columns  int    `json:"columns"`
	RowCount int64  `json:"row_count"`
}

type listTablesResult struct {
	Tables      []tableSummary `json:"tables"`
	TotalTables int            `json:"total_tables"`
}

func registerListTablesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_tables",
		mcp.WithDescription(
			"List every table in the database with its column count and current "+
				"row count. Use get_schema for one table's full shape.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemaCtx, err := deps.Provider.GetDatabaseContext(ctx)
		if err != nil {
			deps.Logger.Error("List tables tool failed", zap.Error(err))
			return nil, err
		}

		result := listTablesResult{
			Tables:      make([]tableSummary, 0, len(schemaCtx.Tables)),
			TotalTables: len(schemaCtx.Tables),
		}
		for _, name := range schemaCtx.TableNames() {
			table := schemaCtx.Tables[name]
			rowCount := table.RowCount
			if stats, ok := schemaCtx.Statistics[name]; ok {
				rowCount = stats.RowCount
			}
			result.Tables = append(result.Tables, tableSummary{
				Name:     table.Name,
				Columns:  len(table.Columns),
				RowCount: rowCount,
			})
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal table list: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerGetSchemaTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(
			"Get one table's full shape: columns with types and nullability, "+
				"primary keys, foreign keys, and indexes. Table lookup is "+
				"case-insensitive.",
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return nil, err
		}

		info, err := deps.Provider.GetTableInfo(ctx, table)
		if err != nil {
			if errors.Is(err, apperrors.ErrTableNotFound) {
				return NewErrorResult("table_not_found", fmt.Sprintf("no table named %q", table)), nil
			}
			deps.Logger.Error("Get schema tool failed",
				zap.String("table", table),
				zap.Error(err))
			return nil, err
		}

		jsonResult, err := json.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal table info: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
