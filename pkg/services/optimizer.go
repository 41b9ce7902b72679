package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource"
	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/config"
	"github.com/anishjain94/db-optimizer/pkg/models"
	"github.com/anishjain94/db-optimizer/pkg/schema"
	"github.com/anishjain94/db-optimizer/pkg/sql"
)

// Row count thresholds for the storage-layout suggestions.
const (
	partitionRowThreshold = 1_000_000
	shardingRowThreshold  = 10_000_000
)

// A useful partition key has moderate cardinality: enough distinct values to
// spread the data, few enough that partitions stay coarse.
const (
	partitionKeyMinDistinct = 10
	partitionKeyMaxDistinct = 1000
)

// QueryOptimizer explains and critiques SELECT statements against the live
// schema and its statistics.
type QueryOptimizer interface {
	// Optimize validates, analyzes, and explains one statement. When
	// validation rejects it, the report carries the reason and is returned
	// together with apperrors.ErrValidationRejected; rejected statements are
	// never explained.
	Optimize(ctx context.Context, sqlText string) (*models.OptimizationReport, error)
}

type queryOptimizer struct {
	provider  schema.ContextProvider
	validator QueryValidator
	executor  datasource.ReadOnlyExecutor
	timeouts  config.TimeoutConfig
	logger    *zap.Logger
}

// NewQueryOptimizer creates the optimizer service.
func NewQueryOptimizer(
	provider schema.ContextProvider,
	validator QueryValidator,
	executor datasource.ReadOnlyExecutor,
	timeouts config.TimeoutConfig,
	logger *zap.Logger,
) QueryOptimizer {
	return &queryOptimizer{
		provider:  provider,
		validator: validator,
		executor:  executor,
		timeouts:  timeouts,
		logger:    logger.Named("query-optimizer"),
	}
}

var _ QueryOptimizer = (*queryOptimizer)(nil)

func (o *queryOptimizer) Optimize(ctx context.Context, sqlText string) (*models.OptimizationReport, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, fmt.Errorf("sql query is required")
	}

	schemaCtx, err := o.provider.GetDatabaseContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrContextUnavailable, err)
	}

	verdict := o.validator.Validate(sqlText, schemaCtx)
	if !verdict.Accepted {
		o.logger.Warn("Statement rejected, not explained",
			zap.String("reason", verdict.Reason))
		return &models.OptimizationReport{
			SQL:      sqlText,
			Accepted: false,
			Reason:   verdict.Reason,
		}, apperrors.ErrValidationRejected
	}

	info := sql.InspectQuery(sqlText)
	report := &models.OptimizationReport{
		SQL:      sqlText,
		Accepted: true,
		Reason:   verdict.Reason,
		Analysis: analyzeAgainst(sqlText, schemaCtx),
	}

	report.PlanHints = o.explainHints(ctx, sqlText)

	report.Suggestions = append(report.Suggestions, suggestRewrites(info)...)
	report.Suggestions = append(report.Suggestions, suggestIndexes(info, schemaCtx)...)
	report.Suggestions = append(report.Suggestions, suggestViews(report.Analysis)...)
	report.Suggestions = append(report.Suggestions, suggestPartitioning(report.Analysis, schemaCtx)...)
	report.Suggestions = append(report.Suggestions, suggestSharding(report.Analysis, schemaCtx)...)

	o.logger.Info("Statement optimized",
		zap.String("complexity", report.Analysis.Complexity),
		zap.Int("plan_hints", len(report.PlanHints)),
		zap.Int("suggestions", len(report.Suggestions)))
	return report, nil
}

// explainHints runs EXPLAIN ANALYZE for plan-derived hints. The heuristics
// below do not depend on the plan, so a failed explain only costs the hints.
func (o *queryOptimizer) explainHints(ctx context.Context, sqlText string) []string {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Execution())
	defer cancel()

	explained, err := o.executor.Explain(ctx, sqlText)
	if err != nil {
		o.logger.Warn("Explain failed, continuing without plan hints", zap.Error(err))
		return nil
	}
	return explained.Hints
}

func suggestRewrites(info *sql.QueryInfo) []models.OptimizationSuggestion {
	var suggestions []models.OptimizationSuggestion

	if info.HasSelectStar {
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Kind:   models.SuggestionQueryRewrite,
			Detail: "SELECT * fetches every column; list only the columns the caller needs",
			Impact: "medium",
		})
	}
	if !info.HasLimit && info.AggregateCount == 0 {
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Kind:   models.SuggestionQueryRewrite,
			Detail: "unbounded result set; add a LIMIT clause unless every row is needed",
			Impact: "low",
		})
	}
	if info.JoinCount >= 1 && !info.HasWhere {
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Kind:   models.SuggestionQueryRewrite,
			Detail: "join without a WHERE clause touches every row on both sides; filter as early as possible",
			Impact: "high",
		})
	}
	return suggestions
}

// suggestIndexes flags filter and join columns that no index covers.
// References that cannot be attributed to exactly one referenced table are
// skipped rather than guessed at.
func suggestIndexes(info *sql.QueryInfo, schemaCtx *models.SchemaContext) []models.OptimizationSuggestion {
	qualifierTable := make(map[string]string)
	var tableOrder []string
	indexed := make(map[string]map[string]bool)
	for _, ref := range info.Tables {
		tbl, ok := schemaCtx.LookupTable(ref.Name)
		if !ok {
			continue
		}
		if _, ok := indexed[tbl.Name]; !ok {
			tableOrder = append(tableOrder, tbl.Name)
			indexed[tbl.Name] = tbl.IndexedColumns()
		}
		qualifierTable[strings.ToLower(ref.Name)] = tbl.Name
		if ref.Alias != "" {
			qualifierTable[strings.ToLower(ref.Alias)] = tbl.Name
		}
	}

	var suggestions []models.OptimizationSuggestion
	suggested := make(map[string]bool)
	add := func(tableName, column string) {
		key := tableName + "." + strings.ToLower(column)
		if suggested[key] {
			return
		}
		suggested[key] = true
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Kind:   models.SuggestionIndex,
			Table:  tableName,
			Column: column,
			Detail: fmt.Sprintf("%s.%s is filtered or joined on without an index; CREATE INDEX idx_%s_%s ON %s (%s) avoids full scans",
				tableName, column, tableName, column, tableName, column),
			Impact: "medium",
		})
	}

	for _, ref := range info.FilterColumnRefs() {
		if ref.Qualifier != "" {
			canonical, ok := qualifierTable[strings.ToLower(ref.Qualifier)]
			if !ok {
				continue
			}
			tbl := schemaCtx.Tables[canonical]
			col, ok := tbl.Column(ref.Column)
			if !ok {
				continue
			}
			if !indexed[canonical][strings.ToLower(col.Name)] {
				add(canonical, col.Name)
			}
			continue
		}

		owner, column, unique := attributeColumn(ref.Column, tableOrder, schemaCtx)
		if !unique {
			continue
		}
		if !indexed[owner][strings.ToLower(column)] {
			add(owner, column)
		}
	}
	return suggestions
}

// attributeColumn finds the one referenced table owning a bare column name.
// Reports unique=false when zero or several tables match.
func attributeColumn(column string, tableOrder []string, schemaCtx *models.SchemaContext) (owner, canonical string, unique bool) {
	matches := 0
	for _, name := range tableOrder {
		tbl := schemaCtx.Tables[name]
		if col, ok := tbl.Column(column); ok {
			matches++
			owner = name
			canonical = col.Name
		}
	}
	return owner, canonical, matches == 1
}

func suggestViews(analysis *models.QueryAnalysis) []models.OptimizationSuggestion {
	if analysis.Complexity != models.ComplexityComplex {
		return nil
	}
	return []models.OptimizationSuggestion{{
		Kind:   models.SuggestionView,
		Detail: "complex statement; a materialized view amortizes the cost if it runs repeatedly",
		Impact: "medium",
	}}
}

// suggestPartitioning recommends partitioning for large tables. The
// suggested key is the first column (alphabetically) whose distinct count
// sits in the moderate-cardinality band; without one the recommendation
// stands but carries less weight.
func suggestPartitioning(analysis *models.QueryAnalysis, schemaCtx *models.SchemaContext) []models.OptimizationSuggestion {
	var suggestions []models.OptimizationSuggestion
	for _, name := range analysis.Tables {
		stats, ok := schemaCtx.Statistics[name]
		if !ok || stats.RowCount <= partitionRowThreshold {
			continue
		}

		tbl, ok := schemaCtx.LookupTable(name)
		if !ok {
			continue
		}
		key := ""
		for _, column := range tbl.ColumnNames() {
			distinct, ok := stats.DistinctValues[column]
			if ok && distinct > partitionKeyMinDistinct && distinct < partitionKeyMaxDistinct {
				key = column
				break
			}
		}

		suggestion := models.OptimizationSuggestion{
			Kind:   models.SuggestionPartition,
			Table:  name,
			Impact: "medium",
			Detail: fmt.Sprintf("%s holds ~%d rows; partitioning would cut scan and maintenance costs", name, stats.RowCount),
		}
		if key != "" {
			suggestion.Column = key
			suggestion.Impact = "high"
			suggestion.Detail = fmt.Sprintf("%s holds ~%d rows; partitioning by %s (roughly %d distinct values) would cut scan and maintenance costs",
				name, stats.RowCount, key, stats.DistinctValues[key])
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions
}

func suggestSharding(analysis *models.QueryAnalysis, schemaCtx *models.SchemaContext) []models.OptimizationSuggestion {
	var suggestions []models.OptimizationSuggestion
	for _, name := range analysis.Tables {
		stats, ok := schemaCtx.Statistics[name]
		if !ok || stats.RowCount <= shardingRowThreshold {
			continue
		}
		suggestions = append(suggestions, models.OptimizationSuggestion{
			Kind:   models.SuggestionSharding,
			Table:  name,
			Detail: fmt.Sprintf("%s holds ~%d rows, beyond what one node serves comfortably; consider sharding across servers", name, stats.RowCount),
			Impact: "high",
		})
	}
	return suggestions
}
