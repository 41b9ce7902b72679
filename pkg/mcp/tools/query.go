package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/services"
)

// RegisterQueryTools registers the natural language and SQL analysis tools.
func RegisterQueryTools(s *server.MCPServer, deps *ToolDeps) {
	registerNaturalQueryTool(s, deps)
	registerAnalyzeQueryTool(s, deps)
	registerOptimizeQueryTool(s, deps)
}

func registerNaturalQueryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"natural_query",
		mcp.WithDescription(
			"Convert a natural language question into a validated SQL query. "+
				"The generated statement is checked against the live database schema "+
				"before anything runs. Set execute to true to also run the accepted "+
				"SELECT read-only and return its rows.",
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The natural language question to answer from the database")),
		mcp.WithBoolean("execute",
			mcp.Description("Run the accepted statement and include its rows (default false)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(question) == "" {
			return NewErrorResult("missing_question", "question must not be empty"), nil
		}

		execute := false
		if args, ok := req.Params.Arguments.(map[string]any); ok {
			if v, ok := args["execute"].(bool); ok {
				execute = v
			}
		}

		result, err := deps.NaturalQuery.Handle(ctx, &services.NaturalQueryRequest{
			Question: question,
			Execute:  execute,
		})
		if err != nil {
			if errors.Is(err, apperrors.ErrValidationRejected) {
				return NewErrorResultWithDetails(result.Reason, result.Message, result), nil
			}
			if errResult := NewSQLErrorResult(err); errResult != nil {
				return errResult, nil
			}
			deps.Logger.Error("Natural query tool failed", zap.Error(err))
			return nil, err
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerAnalyzeQueryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"analyze_query",
		mcp.WithDescription(
			"Analyze a SQL query's structure: referenced tables, join, subquery, "+
				"and aggregate counts, a complexity grade, an estimated cost, and "+
				"live row counts for the tables involved.",
		),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to analyze")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(sqlText) == "" {
			return NewErrorResult("missing_sql", "sql must not be empty"), nil
		}

		analysis, err := deps.Analyzer.Analyze(ctx, sqlText)
		if err != nil {
			deps.Logger.Error("Analyze query tool failed", zap.Error(err))
			return nil, err
		}

		jsonResult, err := json.Marshal(analysis)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analysis: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerOptimizeQueryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"optimize_query",
		mcp.WithDescription(
			"Produce optimization advice for a SQL query: execution plan hints "+
				"plus rewrite, index, materialized view, partitioning, and sharding "+
				"suggestions. The statement is validated first and rejected "+
				"statements are never explained.",
		),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to optimize")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(sqlText) == "" {
			return NewErrorResult("missing_sql", "sql must not be empty"), nil
		}

		report, err := deps.Optimizer.Optimize(ctx, sqlText)
		if err != nil {
			if errors.Is(err, apperrors.ErrValidationRejected) {
				return NewErrorResultWithDetails(report.Reason, "statement rejected by the validator", report), nil
			}
			if errResult := NewSQLErrorResult(err); errResult != nil {
				return errResult, nil
			}
			deps.Logger.Error("Optimize query tool failed", zap.Error(err))
			return nil, err
		}

		jsonResult, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal report: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
