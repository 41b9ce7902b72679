package models

// Query complexity grades produced by the analyzer.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// QueryAnalysis is a structural breakdown of a SQL statement.
type QueryAnalysis struct {
	SQL            string           `json:"sql_query"`
	Tables         []string         `json:"tables"`
	JoinCount      int              `json:"join_count"`
	SubqueryCount  int              `json:"subquery_count"`
	AggregateCount int              `json:"aggregate_count"`
	HasWindow      bool             `json:"has_window"`
	Complexity     string           `json:"complexity"`
	EstimatedCost  float64          `json:"estimated_cost"`
	TableRowCounts map[string]int64 `json:"table_row_counts,omitempty"`
}

// Optimization suggestion kinds, roughly ordered from cheapest to most
// invasive.
const (
	SuggestionQueryRewrite = "query_rewrite"
	SuggestionIndex        = "index"
	SuggestionView         = "view"
	SuggestionPartition    = "partition"
	SuggestionSharding     = "sharding"
)

// OptimizationSuggestion is one actionable recommendation for a query.
type OptimizationSuggestion struct {
	Kind   string `json:"kind"`
	Table  string `json:"table,omitempty"`
	Column string `json:"column,omitempty"`
	Detail string `json:"detail"`
	Impact string `json:"impact"` // "low", "medium", "high"
}

// OptimizationReport bundles plan-derived hints and heuristic suggestions
// for an accepted query.
type OptimizationReport struct {
	SQL         string                   `json:"sql_query"`
	Accepted    bool                     `json:"accepted"`
	Reason      string                   `json:"reason"`
	Analysis    *QueryAnalysis           `json:"analysis,omitempty"`
	PlanHints   []string                 `json:"plan_hints,omitempty"`
	Suggestions []OptimizationSuggestion `json:"suggestions,omitempty"`
}
