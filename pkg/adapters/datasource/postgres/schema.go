package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource"
)

// qualifiedTableName returns a properly quoted "schema"."table" reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}

// ListTables returns all base tables in the configured schema together with
// the planner's row estimate. Never-analyzed tables report -1.
func (a *Adapter) ListTables(ctx context.Context) ([]datasource.TableMeta, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples::bigint, -1) AS row_estimate
		FROM information_schema.tables t
		LEFT JOIN pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema = $1
		ORDER BY t.table_name
	`

	rows, err := a.pool.Query(ctx, query, a.schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMeta
	for rows.Next() {
		var t datasource.TableMeta
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowEstimate); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// ListColumns returns the columns of one table in ordinal order.
func (a *Adapter) ListColumns(ctx context.Context, table string) ([]datasource.ColumnMeta, error) {
	const query = `
		SELECT
			column_name,
			data_type,
			is_nullable = 'YES' AS is_nullable,
			column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMeta
	for rows.Next() {
		var c datasource.ColumnMeta
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// ListPrimaryKeys returns the primary key columns of one table in key order.
func (a *Adapter) ListPrimaryKeys(ctx context.Context, table string) ([]string, error) {
	const query = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		ORDER BY kcu.ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("query primary keys for %s: %w", table, err)
	}
	defer rows.Close()

	keys := make([]string, 0, 1)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		keys = append(keys, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}

	return keys, nil
}

// ListForeignKeys returns every foreign key constraint in the schema.
// Multi-column constraints come back as a single ForeignKeyMeta with the
// columns in ordinal order.
func (a *Adapter) ListForeignKeys(ctx context.Context) ([]datasource.ForeignKeyMeta, error) {
	// pg_constraint is used instead of information_schema because
	// constraint_column_usage has no ordinal position and cross-joins the
	// columns of composite constraints.
	const query = `
		SELECT
			con.conname AS constraint_name,
			src.relname AS source_table,
			att.attname AS source_column,
			tgt.relname AS target_table,
			tatt.attname AS target_column
		FROM pg_constraint con
		JOIN pg_class src ON src.oid = con.conrelid
		JOIN pg_namespace ns ON ns.oid = src.relnamespace
		JOIN pg_class tgt ON tgt.oid = con.confrelid
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS cols(src_attnum, tgt_attnum, ord)
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = cols.src_attnum
		JOIN pg_attribute tatt ON tatt.attrelid = con.confrelid AND tatt.attnum = cols.tgt_attnum
		WHERE con.contype = 'f'
		  AND ns.nspname = $1
		ORDER BY src.relname, con.conname, cols.ord
	`

	rows, err := a.pool.Query(ctx, query, a.schema)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []datasource.ForeignKeyMeta
	for rows.Next() {
		var constraintName, sourceTable, sourceColumn, targetTable, targetColumn string
		if err := rows.Scan(&constraintName, &sourceTable, &sourceColumn, &targetTable, &targetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}

		// Rows for one constraint arrive consecutively; fold them into the
		// previous entry to keep composite keys together.
		if n := len(fks); n > 0 && fks[n-1].ConstraintName == constraintName && fks[n-1].Table == sourceTable {
			fks[n-1].Columns = append(fks[n-1].Columns, sourceColumn)
			fks[n-1].ReferredColumns = append(fks[n-1].ReferredColumns, targetColumn)
			continue
		}
		fks = append(fks, datasource.ForeignKeyMeta{
			ConstraintName:  constraintName,
			Table:           sourceTable,
			Columns:         []string{sourceColumn},
			ReferredTable:   targetTable,
			ReferredColumns: []string{targetColumn},
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// ListIndexes returns the indexes of one table with their key columns in
// key order. The primary key's backing index is included. Expression index
// entries have no backing attribute and are dropped by the join.
func (a *Adapter) ListIndexes(ctx context.Context, table string) ([]datasource.IndexMeta, error) {
	const query = `
		SELECT
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisunique
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class i ON i.oid = ix.indexrelid
		CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS keys(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = keys.attnum
		WHERE n.nspname = $1 AND t.relname = $2
		ORDER BY i.relname, keys.ord
	`

	rows, err := a.pool.Query(ctx, query, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes for %s: %w", table, err)
	}
	defer rows.Close()

	var indexes []datasource.IndexMeta
	for rows.Next() {
		var indexName, columnName string
		var unique bool
		if err := rows.Scan(&indexName, &columnName, &unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}

		if n := len(indexes); n > 0 && indexes[n-1].Name == indexName {
			indexes[n-1].Columns = append(indexes[n-1].Columns, columnName)
			continue
		}
		indexes = append(indexes, datasource.IndexMeta{
			Name:    indexName,
			Table:   table,
			Columns: []string{columnName},
			Unique:  unique,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}

	return indexes, nil
}

// CollectTableStatistics returns live statistics for one table from the
// cumulative statistics views. Row counts are n_live_tup estimates, not
// COUNT(*), so collection stays cheap on large tables.
func (a *Adapter) CollectTableStatistics(ctx context.Context, table string) (*datasource.TableStats, error) {
	const query = `
		SELECT
			COALESCE(s.n_live_tup, 0),
			COALESCE(s.n_dead_tup, 0),
			COALESCE(s.seq_scan, 0),
			COALESCE(s.idx_scan, 0),
			pg_total_relation_size(c.oid),
			pg_indexes_size(c.oid)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_stat_user_tables s
			ON s.schemaname = n.nspname AND s.relname = c.relname
		WHERE n.nspname = $1 AND c.relname = $2
	`

	var stats datasource.TableStats
	err := a.pool.QueryRow(ctx, query, a.schema, table).Scan(
		&stats.RowCount,
		&stats.DeadRows,
		&stats.SeqScans,
		&stats.IndexScans,
		&stats.TotalBytes,
		&stats.IndexBytes,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("table %s not found in schema %s", table, a.schema)
		}
		return nil, fmt.Errorf("query statistics for %s: %w", table, err)
	}

	distinct, err := a.collectDistinctValues(ctx, table, stats.RowCount)
	if err != nil {
		return nil, err
	}
	stats.DistinctValues = distinct

	return &stats, nil
}

// collectDistinctValues reads the planner's per-column distinct estimates.
// pg_stats encodes them two ways: positive values are absolute counts,
// negative values are a fraction of the row count (so -1 means all rows are
// distinct). Zero means no estimate and the column is skipped.
func (a *Adapter) collectDistinctValues(ctx context.Context, table string, rowCount int64) (map[string]int64, error) {
	const query = `
		SELECT attname, n_distinct
		FROM pg_stats
		WHERE schemaname = $1 AND tablename = $2
	`

	rows, err := a.pool.Query(ctx, query, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("query column statistics for %s: %w", table, err)
	}
	defer rows.Close()

	distinct := make(map[string]int64)
	for rows.Next() {
		var column string
		var nDistinct float64
		if err := rows.Scan(&column, &nDistinct); err != nil {
			return nil, fmt.Errorf("scan column statistics: %w", err)
		}

		switch {
		case nDistinct > 0:
			distinct[column] = int64(nDistinct)
		case nDistinct < 0:
			distinct[column] = int64(-nDistinct * float64(rowCount))
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column statistics: %w", err)
	}

	if len(distinct) == 0 {
		return nil, nil
	}
	return distinct, nil
}

// SampleRows returns up to limit rows from a table, ordered by primary key.
// Tables without a primary key fall back to ordering by the first column,
// which keeps the sample stable for append-only data.
func (a *Adapter) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		return []map[string]any{}, nil
	}

	keys, err := a.ListPrimaryKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	orderBy := "1"
	if len(keys) > 0 {
		quoted := make([]string, len(keys))
		for i, col := range keys {
			quoted[i] = pgx.Identifier{col}.Sanitize()
		}
		orderBy = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d",
		qualifiedTableName(a.schema, table), orderBy, limit)

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample rows from %s: %w", table, err)
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("collect sample rows from %s: %w", table, err)
	}

	return result.Rows, nil
}
