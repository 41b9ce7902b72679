package handlers

import (
	"context"
	"fmt"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/cache"
	"github.com/anishjain94/db-optimizer/pkg/models"
	"github.com/anishjain94/db-optimizer/pkg/schema"
	"github.com/anishjain94/db-optimizer/pkg/services"
)

// mockNaturalQueryService is a configurable mock for handler tests. Result
// and err are returned together, so a rejection (populated result plus
// apperrors.ErrValidationRejected) can be staged the same way the real
// service reports it.
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

// mockContextProvider serves a fixed snapshot for the schema and cache
// handler tests.
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
	if _, ok := schema.ParseRefreshScope(string(scope)); !ok {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrInvalidScope, scope)
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
