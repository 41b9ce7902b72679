package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/models"
	"github.com/anishjain94/db-optimizer/pkg/schema"
	"github.com/anishjain94/db-optimizer/pkg/sql"
)

// Per-construct weights for the heuristic cost estimate. The numbers rank
// constructs against each other; they are not milliseconds.
const (
	baseCost      = 1.0
	joinCost      = 2.0
	subqueryCost  = 3.0
	aggregateCost = 1.5
)

// Complexity grades by construct count (joins + subqueries + aggregates).
const (
	simpleMaxScore   = 2
	moderateMaxScore = 5
)

// QueryAnalyzer breaks a SQL statement down structurally and grades its
// complexity, attaching live row counts for the tables it references.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, sqlText string) (*models.QueryAnalysis, error)
}

type queryAnalyzer struct {
	provider schema.ContextProvider
	logger   *zap.Logger
}

// NewQueryAnalyzer creates the analyzer service.
func NewQueryAnalyzer(provider schema.ContextProvider, logger *zap.Logger) QueryAnalyzer {
	return &queryAnalyzer{
		provider: provider,
		logger:   logger.Named("query-analyzer"),
	}
}

var _ QueryAnalyzer = (*queryAnalyzer)(nil)

func (a *queryAnalyzer) Analyze(ctx context.Context, sqlText string) (*models.QueryAnalysis, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, fmt.Errorf("sql query is required")
	}

	schemaCtx, err := a.provider.GetDatabaseContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrContextUnavailable, err)
	}

	analysis := analyzeAgainst(sqlText, schemaCtx)
	a.logger.Debug("Query analyzed",
		zap.String("complexity", analysis.Complexity),
		zap.Float64("estimated_cost", analysis.EstimatedCost))
	return analysis, nil
}

// analyzeAgainst computes the structural breakdown of one statement against
// a snapshot. Tables that resolve get their canonical spelling and a row
// count; unresolved names are reported as written.
func analyzeAgainst(sqlText string, schemaCtx *models.SchemaContext) *models.QueryAnalysis {
	info := sql.InspectQuery(sqlText)

	tables := make([]string, 0, len(info.Tables))
	rowCounts := make(map[string]int64)
	for _, name := range info.TableNames() {
		tbl, ok := schemaCtx.LookupTable(name)
		if !ok {
			tables = append(tables, name)
			continue
		}
		tables = append(tables, tbl.Name)
		if stats, ok := schemaCtx.Statistics[tbl.Name]; ok {
			rowCounts[tbl.Name] = stats.RowCount
		} else if tbl.RowCount >= 0 {
			rowCounts[tbl.Name] = tbl.RowCount
		}
	}
	if len(rowCounts) == 0 {
		rowCounts = nil
	}

	analysis := &models.QueryAnalysis{
		SQL:            sqlText,
		Tables:         tables,
		JoinCount:      info.JoinCount,
		SubqueryCount:  info.SubqueryCount,
		AggregateCount: info.AggregateCount,
		HasWindow:      info.HasWindow,
		TableRowCounts: rowCounts,
	}

	score := info.JoinCount + info.SubqueryCount + info.AggregateCount
	switch {
	case score <= simpleMaxScore:
		analysis.Complexity = models.ComplexitySimple
	case score <= moderateMaxScore:
		analysis.Complexity = models.ComplexityModerate
	default:
		analysis.Complexity = models.ComplexityComplex
	}

	analysis.EstimatedCost = baseCost +
		float64(info.JoinCount)*joinCost +
		float64(info.SubqueryCount)*subqueryCost +
		float64(info.AggregateCount)*aggregateCost

	return analysis
}
