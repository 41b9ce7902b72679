package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource"
)

// ExecuteReadOnly runs a SELECT inside a read-only transaction, wrapped with
// a row limit. The transaction access mode is the second line of defense
// behind static validation: PostgreSQL itself refuses writes here.
func (a *Adapter) ExecuteReadOnly(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	if limit <= 0 || limit > datasource.MaxQueryLimit {
		limit = datasource.MaxQueryLimit
	}

	// A trailing semicolon is legal standalone but not inside the wrapper
	// subquery.
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", trimStatement(sqlQuery), limit)

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	result, err := collectRows(rows)
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit read-only transaction: %w", err)
	}

	a.logger.Debug("Executed read-only query",
		zap.Int("rows", result.RowCount),
		zap.Int("limit", limit))

	return result, nil
}

// Explain runs EXPLAIN (ANALYZE, BUFFERS) on a SELECT inside a read-only
// transaction and extracts timing plus plan-derived hints.
func (a *Adapter) Explain(ctx context.Context, sqlQuery string) (*datasource.ExplainResult, error) {
	explainSQL := "EXPLAIN (ANALYZE, BUFFERS, FORMAT TEXT) " + trimStatement(sqlQuery)

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, explainSQL)
	if err != nil {
		return nil, fmt.Errorf("explain query: %w", err)
	}

	var planLines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan plan line: %w", err)
		}
		planLines = append(planLines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit read-only transaction: %w", err)
	}

	result := &datasource.ExplainResult{
		Plan: strings.Join(planLines, "\n"),
	}
	for _, line := range planLines {
		if strings.Contains(line, "Execution Time:") {
			fmt.Sscanf(line, " Execution Time: %f ms", &result.ExecutionTimeMs)
		} else if strings.Contains(line, "Planning Time:") {
			fmt.Sscanf(line, " Planning Time: %f ms", &result.PlanningTimeMs)
		}
	}
	result.Hints = planHints(planLines, result.ExecutionTimeMs)

	return result, nil
}

// planHints inspects EXPLAIN output for the patterns that most often signal
// an avoidable slowdown.
func planHints(planLines []string, executionTimeMs float64) []string {
	var hints []string
	planText := strings.Join(planLines, "\n")

	if strings.Contains(planText, "Seq Scan") {
		hints = append(hints, "sequential scan detected; an index may help if the table is large")
	}
	if strings.Contains(planText, "Nested Loop") {
		hints = append(hints, "nested loop join; make sure join columns are indexed")
	}
	if strings.Contains(planText, "external merge") || strings.Contains(planText, "Sort Method: external") {
		hints = append(hints, "sort spilled to disk; consider raising work_mem or narrowing the result")
	}
	if executionTimeMs > 1000 {
		hints = append(hints, fmt.Sprintf("execution took %.0f ms; worth optimizing if this query runs often", executionTimeMs))
	}

	return hints
}

// trimStatement removes surrounding whitespace and trailing semicolons so a
// statement can be embedded in a subquery.
func trimStatement(sqlQuery string) string {
	return strings.TrimRight(strings.TrimSpace(sqlQuery), "; \t\n")
}

// collectRows drains a result set into column descriptors and one map per
// row, with values normalized for JSON and cache serialization.
func collectRows(rows pgx.Rows) (*datasource.QueryResult, error) {
	var typeMap *pgtype.Map
	if conn := rows.Conn(); conn != nil {
		typeMap = conn.TypeMap()
	}

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		typeName := "unknown"
		if typeMap != nil {
			if dt, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
				typeName = dt.Name
			}
		}
		columns[i] = datasource.ColumnInfo{Name: string(fd.Name), Type: typeName}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// normalizeValue converts pgx driver values into plain Go values that
// survive JSON and msgpack round trips. Exotic types fall back to their
// string form rather than leaking driver structs into responses.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int16, int32, int64, float32, float64, time.Time,
		map[string]any, []any:
		return val
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		if f, err := val.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
