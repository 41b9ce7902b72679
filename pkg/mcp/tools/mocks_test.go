package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/cache"
	"github.com/anishjain94/db-optimizer/pkg/models"
	"github.com/anishjain94/db-optimizer/pkg/schema"
	"github.com/anishjain94/db-optimizer/pkg/services"
)

// mockNaturalQueryService returns result and err together, so a rejection
// (populated result plus apperrors.ErrValidationRejected) can be staged the
// same way the real service reports it.
type mockNaturalQueryService struct {
	result  *models.NaturalQueryResult
	err     error
	lastReq *services.NaturalQueryRequest
}

func (m *mockNaturalQueryService) Handle(ctx context.Context, req *services.NaturalQueryRequest) (*models.NaturalQueryResult, error) {
	m.lastReq = req
	return m.result, m.err
}

type mockQueryAnalyzer struct {
	analysis *models.QueryAnalysis
	err      error
	lastSQL  string
}

func (m *mockQueryAnalyzer) Analyze(ctx context.Context, sqlText string) (*models.QueryAnalysis, error) {
	m.lastSQL = sqlText
	if m.err != nil {
		return nil, m.err
	}
	return m.analysis, nil
}

type mockQueryOptimizer struct {
	report  *models.OptimizationReport
	err     error
	lastSQL string
}

func (m *mockQueryOptimizer) Optimize(ctx context.Context, sqlText string) (*models.OptimizationReport, error) {
	m.lastSQL = sqlText
	return m.report, m.err
}

// mockContextProvider serves a fixed snapshot for the schema and cache tool
// tests.
type mockContextProvider struct {
	snapshot    *models.SchemaContext
	snapshotErr error
	stats       cache.Stats
	invalidated int
	refreshErr  error
	lastScope   schema.RefreshScope
}

func (m *mockContextProvider) GetDatabaseContext(ctx context.Context) (*models.SchemaContext, error) {
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return m.snapshot, nil
}

func (m *mockContextProvider) GetTableInfo(ctx context.Context, table string) (*models.TableInfo, error) {
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	info, ok := m.snapshot.LookupTable(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, table)
	}
	return &info, nil
}

func (m *mockContextProvider) RefreshCache(ctx context.Context, scope schema.RefreshScope) (int, error) {
	m.lastScope = scope
	if m.refreshErr != nil {
		return 0, m.refreshErr
	}
	return m.invalidated, nil
}

func (m *mockContextProvider) GetCacheStats(ctx context.Context) cache.Stats {
	return m.stats
}

// demoContext returns a two-table snapshot. Orders has live statistics so
// tests can check that statistics row counts win over planner estimates.
func demoContext() *models.SchemaContext {
	return &models.SchemaContext{
		Tables: map[string]models.TableInfo{
			"users": {
				Name: "users",
				Columns: map[string]models.ColumnInfo{
					"user_id":  {Name: "user_id", DataType: "integer", IsPrimaryKey: true},
					"username": {Name: "username", DataType: "text"},
					"email":    {Name: "email", DataType: "text"},
				},
				PrimaryKeys: []string{"user_id"},
				RowCount:    120,
			},
			"orders": {
				Name: "orders",
				Columns: map[string]models.ColumnInfo{
					"order_id": {Name: "order_id", DataType: "integer", IsPrimaryKey: true},
					"user_id":  {Name: "user_id", DataType: "integer"},
				},
				PrimaryKeys: []string{"order_id"},
				RowCount:    -1,
			},
		},
		Statistics: map[string]models.TableStatistics{
			"orders": {RowCount: 4800},
		},
	}
}

// newToolServer builds an MCP server with every optimizer tool registered
// against the given dependencies.
func newToolServer(deps *ToolDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAll(s, deps, "0.1.0-test")
	return s
}

// callTool executes a tool via the server's HandleMessage method and returns
// the text payload of the first content block plus the result's isError flag.
func callTool(t *testing.T, s *server.MCPServer, toolName string, arguments map[string]any) (string, bool) {
	t.Helper()

	callReq := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
	reqBytes, err := json.Marshal(callReq)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	result := s.HandleMessage(context.Background(), reqBytes)

	resultBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var response struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resultBytes, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if response.Error != nil {
		t.Fatalf("tool call returned protocol error %d: %s", response.Error.Code, response.Error.Message)
	}
	if len(response.Result.Content) == 0 {
		t.Fatal("expected content in response")
	}
	if response.Result.Content[0].Type != "text" {
		t.Fatalf("expected content type 'text', got %q", response.Result.Content[0].Type)
	}
	return response.Result.Content[0].Text, response.Result.IsError
}

// callToolExpectProtocolError executes a tool expected to fail at the
// JSON-RPC level (a handler returning a Go error) and returns the error
// message.
func callToolExpectProtocolError(t *testing.T, s *server.MCPServer, toolName string, arguments map[string]any) string {
	t.Helper()

	callReq := map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"id":      1,
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
	reqBytes, err := json.Marshal(callReq)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	result := s.HandleMessage(context.Background(), reqBytes)

	resultBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var response struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resultBytes, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Error == nil {
		t.Fatal("expected a protocol error, got a result")
	}
	return response.Error.Message
}
