package datasource

import "context"

// MaxQueryLimit is the hard cap on rows returned by read-only execution.
// This protects against unbounded generated queries flooding the server.
const MaxQueryLimit = 1000

// TableMeta identifies a base table visible to introspection.
type TableMeta struct {
	Schema      string
	Name        string
	RowEstimate int64 // planner estimate from pg_class.reltuples; -1 when never analyzed
}

// ColumnMeta describes one column of a table.
type ColumnMeta struct {
	Name     string
	DataType string
	Nullable bool
	Default  *string
}

// ForeignKeyMeta describes one foreign key constraint. Columns and
// ReferredColumns are index-aligned, in constraint ordinal order.
type ForeignKeyMeta struct {
	ConstraintName  string
	Table           string
	Columns         []string
	ReferredTable   string
	ReferredColumns []string
}

// IndexMeta describes one index with its key columns in key order.
type IndexMeta struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// TableStats carries live statistics for one table, sourced from the
// cumulative statistics views rather than COUNT(*).
type TableStats struct {
	RowCount   int64
	DeadRows   int64
	SeqScans   int64
	IndexScans int64
	TotalBytes int64
	IndexBytes int64

	// DistinctValues maps column names to the planner's distinct-count
	// estimate. Columns without an estimate (never analyzed) are absent.
	DistinctValues map[string]int64
}

// SchemaIntrospector reads structure and statistics from a live database.
// Implementations scope every lookup to a single configured schema.
type SchemaIntrospector interface {
	// ListTables returns all base tables in the configured schema.
	ListTables(ctx context.Context) ([]TableMeta, error)

	// ListColumns returns the columns of one table in ordinal order.
	ListColumns(ctx context.Context, table string) ([]ColumnMeta, error)

	// ListPrimaryKeys returns the primary key columns of one table in key
	// order. Returns an empty slice when the table has no primary key.
	ListPrimaryKeys(ctx context.Context, table string) ([]string, error)

	// ListForeignKeys returns every foreign key constraint in the schema.
	ListForeignKeys(ctx context.Context) ([]ForeignKeyMeta, error)

	// ListIndexes returns the indexes of one table, including the implicit
	// primary key index.
	ListIndexes(ctx context.Context, table string) ([]IndexMeta, error)

	// CollectTableStatistics returns live statistics for one table.
	CollectTableStatistics(ctx context.Context, table string) (*TableStats, error)

	// SampleRows returns up to limit rows ordered by primary key, so repeated
	// calls against unchanged data return identical rows.
	SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error)
}

// ColumnInfo describes a result column with its database type name.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult holds the rows produced by read-only execution.
type QueryResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ExplainResult holds the execution plan for a query.
type ExplainResult struct {
	Plan            string   `json:"plan"`
	PlanningTimeMs  float64  `json:"planning_time_ms"`
	ExecutionTimeMs float64  `json:"execution_time_ms"`
	Hints           []string `json:"hints"`
}

// ReadOnlyExecutor runs already-validated SELECT statements.
type ReadOnlyExecutor interface {
	// ExecuteReadOnly runs a SELECT inside a read-only transaction. The query
	// is always wrapped with a row limit; limit values outside
	// (0, MaxQueryLimit] are replaced with MaxQueryLimit.
	ExecuteReadOnly(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error)

	// Explain returns the execution plan for a SELECT along with
	// plan-derived performance hints.
	Explain(ctx context.Context, sqlQuery string) (*ExplainResult, error)
}
