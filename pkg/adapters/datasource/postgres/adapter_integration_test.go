//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/testhelpers"
)

// setupAdapter connects an adapter to the shared test container. The pool is
// owned by the container helper, so no cleanup is registered here.
func setupAdapter(t *testing.T) *Adapter {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	return NewAdapter(testDB.Pool, "public", zap.NewNop())
}

func TestAdapter_ListTables(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	tables, err := a.ListTables(ctx)
	require.NoError(t, err)

	names := make(map[string]bool, len(tables))
	for _, tbl := range tables {
		assert.Equal(t, "public", tbl.Schema)
		names[tbl.Name] = true
	}

	for _, want := range []string{"users", "products", "orders", "order_items"} {
		assert.True(t, names[want], "expected table %q in listing", want)
	}
}

func TestAdapter_ListColumns(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	columns, err := a.ListColumns(ctx, "users")
	require.NoError(t, err)
	require.Len(t, columns, 5)

	// Ordinal order matches the CREATE TABLE statement.
	assert.Equal(t, "user_id", columns[0].Name)
	assert.Equal(t, "username", columns[1].Name)
	assert.Equal(t, "email", columns[2].Name)
	assert.Equal(t, "registration_date", columns[3].Name)
	assert.Equal(t, "is_active", columns[4].Name)

	assert.Equal(t, "integer", columns[0].DataType)
	assert.False(t, columns[0].Nullable)
	require.NotNil(t, columns[0].Default, "serial column should have a default")

	assert.Equal(t, "date", columns[3].DataType)
	require.NotNil(t, columns[3].Default)

	// Unknown table yields no columns rather than an error.
	missing, err := a.ListColumns(ctx, "no_such_table")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestAdapter_ListPrimaryKeys(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	keys, err := a.ListPrimaryKeys(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id"}, keys)

	keys, err = a.ListPrimaryKeys(ctx, "no_such_table")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAdapter_ListForeignKeys(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	fks, err := a.ListForeignKeys(ctx)
	require.NoError(t, err)
	require.Len(t, fks, 3)

	byTable := make(map[string][]string)
	for _, fk := range fks {
		require.Len(t, fk.Columns, 1)
		require.Len(t, fk.ReferredColumns, 1)
		byTable[fk.Table] = append(byTable[fk.Table], fk.ReferredTable)
	}

	assert.ElementsMatch(t, []string{"users"}, byTable["orders"])
	assert.ElementsMatch(t, []string{"orders", "products"}, byTable["order_items"])
}

func TestAdapter_ListIndexes(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	indexes, err := a.ListIndexes(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, indexes, 2)

	// Sorted by index name, so the secondary index precedes the pkey.
	assert.Equal(t, "idx_orders_user_id", indexes[0].Name)
	assert.Equal(t, []string{"user_id"}, indexes[0].Columns)
	assert.False(t, indexes[0].Unique)

	assert.Equal(t, "orders_pkey", indexes[1].Name)
	assert.Equal(t, []string{"order_id"}, indexes[1].Columns)
	assert.True(t, indexes[1].Unique)

	// UNIQUE constraints surface as unique indexes.
	userIndexes, err := a.ListIndexes(ctx, "users")
	require.NoError(t, err)
	byName := make(map[string]bool, len(userIndexes))
	for _, idx := range userIndexes {
		byName[idx.Name] = idx.Unique
	}
	assert.True(t, byName["users_username_key"], "unique constraint index should be unique")

	missing, err := a.ListIndexes(ctx, "no_such_table")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestAdapter_CollectTableStatistics(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	stats, err := a.CollectTableStatistics(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Greater(t, stats.TotalBytes, int64(0))
	assert.GreaterOrEqual(t, stats.RowCount, int64(0))
	assert.GreaterOrEqual(t, stats.IndexBytes, int64(0))

	_, err = a.CollectTableStatistics(ctx, "no_such_table")
	require.Error(t, err)
}

func TestAdapter_SampleRows(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	rows, err := a.SampleRows(ctx, "users", 5)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	// Primary key ascending: the first seeded user comes first.
	assert.Equal(t, "alice", rows[0]["username"])
	assert.IsType(t, time.Time{}, rows[0]["registration_date"])

	// Repeated sampling of unchanged data returns identical rows.
	again, err := a.SampleRows(ctx, "users", 5)
	require.NoError(t, err)
	assert.Equal(t, rows, again)

	// Limit beyond table size returns every row.
	products, err := a.SampleRows(ctx, "products", 10)
	require.NoError(t, err)
	assert.Len(t, products, 4)

	// Numeric columns come back as plain floats.
	price, ok := products[0]["price"].(float64)
	require.True(t, ok, "price should normalize to float64, got %T", products[0]["price"])
	assert.InDelta(t, 1299.00, price, 0.001)
}

func TestAdapter_ExecuteReadOnly(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	t.Run("aggregates", func(t *testing.T) {
		result, err := a.ExecuteReadOnly(ctx, "SELECT COUNT(*) AS n FROM users", 100)
		require.NoError(t, err)
		require.Equal(t, 1, result.RowCount)
		assert.Equal(t, int64(8), result.Rows[0]["n"])
	})

	t.Run("trailing semicolon", func(t *testing.T) {
		result, err := a.ExecuteReadOnly(ctx, "SELECT username FROM users ORDER BY user_id;", 2)
		require.NoError(t, err)
		assert.Equal(t, 2, result.RowCount)
		assert.Equal(t, "alice", result.Rows[0]["username"])
	})

	t.Run("limit caps result", func(t *testing.T) {
		result, err := a.ExecuteReadOnly(ctx, "SELECT user_id FROM users", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, result.RowCount)
	})

	t.Run("column types reported", func(t *testing.T) {
		result, err := a.ExecuteReadOnly(ctx, "SELECT username, is_active FROM users", 1)
		require.NoError(t, err)
		require.Len(t, result.Columns, 2)
		assert.Equal(t, "username", result.Columns[0].Name)
		assert.Equal(t, "varchar", result.Columns[0].Type)
		assert.Equal(t, "bool", result.Columns[1].Type)
	})

	t.Run("writes rejected by transaction mode", func(t *testing.T) {
		// nextval mutates sequence state and parses fine inside the wrapper
		// subquery, so this exercises the read-only transaction itself.
		_, err := a.ExecuteReadOnly(ctx, "SELECT nextval('users_user_id_seq')", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read-only")
	})
}

func TestAdapter_Explain(t *testing.T) {
	a := setupAdapter(t)
	ctx := context.Background()

	result, err := a.Explain(ctx, "SELECT * FROM users WHERE is_active")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Contains(t, result.Plan, "Seq Scan")
	assert.Greater(t, result.ExecutionTimeMs, 0.0)
	assert.NotEmpty(t, result.Hints)
}

func TestNewAdapterFromDSN(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	a, err := NewAdapterFromDSN(ctx, testDB.ConnStr, "public", zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	tables, err := a.ListTables(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tables)
}
