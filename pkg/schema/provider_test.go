package schema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource"
	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/cache"
	"github.com/anishjain94/db-optimizer/pkg/models"
)

// mockIntrospector serves a two-table fixture and tracks call counts.
// Set the function fields to override behavior per test.
type mockIntrospector struct {
	ListTablesFunc      func(ctx context.Context) ([]datasource.TableMeta, error)
	ListColumnsFunc     func(ctx context.Context, table string) ([]datasource.ColumnMeta, error)
	ListPrimaryKeysFunc func(ctx context.Context, table string) ([]string, error)
	ListForeignKeysFunc func(ctx context.Context) ([]datasource.ForeignKeyMeta, error)
	ListIndexesFunc     func(ctx context.Context, table string) ([]datasource.IndexMeta, error)
	CollectStatsFunc    func(ctx context.Context, table string) (*datasource.TableStats, error)
	SampleRowsFunc      func(ctx context.Context, table string, limit int) ([]map[string]any, error)

	listTablesCalls   atomic.Int32
	collectStatsCalls atomic.Int32
	sampleRowsCalls   atomic.Int32
	lastSampleLimit   atomic.Int32
}

func newMockIntrospector() *mockIntrospector {
	return &mockIntrospector{}
}

func (m *mockIntrospector) ListTables(ctx context.Context) ([]datasource.TableMeta, error) {
	m.listTablesCalls.Add(1)
	if m.ListTablesFunc != nil {
		return m.ListTablesFunc(ctx)
	}
	return []datasource.TableMeta{
		{Schema: "public", Name: "users", RowEstimate: 1200},
		{Schema: "public", Name: "orders", RowEstimate: 5400},
	}, nil
}

func (m *mockIntrospector) ListColumns(ctx context.Context, table string) ([]datasource.ColumnMeta, error) {
	if m.ListColumnsFunc != nil {
		return m.ListColumnsFunc(ctx, table)
	}
	switch table {
	case "users":
		return []datasource.ColumnMeta{
			{Name: "user_id", DataType: "integer", Nullable: false},
			{Name: "username", DataType: "varchar(50)", Nullable: false},
		}, nil
	case "orders":
		return []datasource.ColumnMeta{
			{Name: "order_id", DataType: "integer", Nullable: false},
			{Name: "user_id", DataType: "integer", Nullable: true},
		}, nil
	}
	return nil, errors.New("unknown table")
}

func (m *mockIntrospector) ListPrimaryKeys(ctx context.Context, table string) ([]string, error) {
	if m.ListPrimaryKeysFunc != nil {
		return m.ListPrimaryKeysFunc(ctx, table)
	}
	switch table {
	case "users":
		return []string{"user_id"}, nil
	case "orders":
		return []string{"order_id"}, nil
	}
	return nil, nil
}

func (m *mockIntrospector) ListForeignKeys(ctx context.Context) ([]datasource.ForeignKeyMeta, error) {
	if m.ListForeignKeysFunc != nil {
		return m.ListForeignKeysFunc(ctx)
	}
	return []datasource.ForeignKeyMeta{
		{
			ConstraintName:  "orders_user_id_fkey",
			Table:           "orders",
			Columns:         []string{"user_id"},
			ReferredTable:   "users",
			ReferredColumns: []string{"user_id"},
		},
	}, nil
}

func (m *mockIntrospector) ListIndexes(ctx context.Context, table string) ([]datasource.IndexMeta, error) {
	if m.ListIndexesFunc != nil {
		return m.ListIndexesFunc(ctx, table)
	}
	switch table {
	case "users":
		return []datasource.IndexMeta{
			{Name: "users_pkey", Table: "users", Columns: []string{"user_id"}, Unique: true},
			{Name: "idx_users_username", Table: "users", Columns: []string{"username"}, Unique: false},
		}, nil
	case "orders":
		return []datasource.IndexMeta{
			{Name: "orders_pkey", Table: "orders", Columns: []string{"order_id"}, Unique: true},
		}, nil
	}
	return nil, nil
}

func (m *mockIntrospector) CollectTableStatistics(ctx context.Context, table string) (*datasource.TableStats, error) {
	m.collectStatsCalls.Add(1)
	if m.CollectStatsFunc != nil {
		return m.CollectStatsFunc(ctx, table)
	}
	return &datasource.TableStats{RowCount: 100, TotalBytes: 8192, SeqScans: 3}, nil
}

func (m *mockIntrospector) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	m.sampleRowsCalls.Add(1)
	m.lastSampleLimit.Store(int32(limit))
	if m.SampleRowsFunc != nil {
		return m.SampleRowsFunc(ctx, table, limit)
	}
	return []map[string]any{{"id": 1}}, nil
}

var _ datasource.SchemaIntrospector = (*mockIntrospector)(nil)

func newTestProvider(t *testing.T, intro datasource.SchemaIntrospector) (ContextProvider, cache.Store) {
	t.Helper()
	store := cache.NewMemory(context.Background(), cache.DefaultTTLs(), zap.NewNop())
	t.Cleanup(store.Close)
	provider := NewContextProvider(intro, store, ProviderConfig{SampleRowLimit: 3, Workers: 2}, zap.NewNop())
	return provider, store
}

func TestGetDatabaseContext_BuildsSnapshot(t *testing.T) {
	intro := newMockIntrospector()
	provider, _ := newTestProvider(t, intro)

	snapshot, err := provider.GetDatabaseContext(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Tables, 2)
	users := snapshot.Tables["users"]
	assert.Equal(t, int64(1200), users.RowCount)
	assert.True(t, users.Columns["user_id"].IsPrimaryKey)
	assert.False(t, users.Columns["username"].IsPrimaryKey)
	assert.Equal(t, []string{"user_id"}, users.PrimaryKeys)
	require.Len(t, users.Indexes, 2)
	assert.Equal(t, "users_pkey", users.Indexes[0].Name)
	assert.True(t, users.IndexedColumns()["username"])

	orders := snapshot.Tables["orders"]
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "users", orders.ForeignKeys[0].ReferredTable)

	require.Len(t, snapshot.Relationships["orders"], 1)
	assert.Equal(t, models.RelationshipReferences, snapshot.Relationships["orders"][0].Kind)
	assert.Equal(t, "users", snapshot.Relationships["orders"][0].Table)
	require.Len(t, snapshot.Relationships["users"], 1)
	assert.Equal(t, models.RelationshipReferencedBy, snapshot.Relationships["users"][0].Kind)
	assert.Equal(t, "orders", snapshot.Relationships["users"][0].Table)

	assert.Len(t, snapshot.Statistics, 2)
	assert.Len(t, snapshot.SampleData, 2)
	assert.Equal(t, int32(3), intro.lastSampleLimit.Load())
	assert.False(t, snapshot.BuiltAt.IsZero())
}

func TestGetDatabaseContext_ServesFromCache(t *testing.T) {
	intro := newMockIntrospector()
	provider, _ := newTestProvider(t, intro)
	ctx := context.Background()

	first, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	// Two warm reads hit the cache without touching the database
	second, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)
	third, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), intro.listTablesCalls.Load())
	assert.Equal(t, first.BuiltAt, second.BuiltAt)
	assert.Equal(t, first.BuiltAt, third.BuiltAt)
}

func TestGetDatabaseContext_ReusesLevelsAfterCompositeInvalidation(t *testing.T) {
	intro := newMockIntrospector()
	provider, store := newTestProvider(t, intro)
	ctx := context.Background()

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	store.InvalidateLevel(ctx, cache.LevelFullContext)

	snapshot, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Tables, 2)
	require.Len(t, snapshot.Tables["orders"].ForeignKeys, 1)

	// The table list is always read live; every cached level is reused
	assert.Equal(t, int32(2), intro.listTablesCalls.Load())
	assert.Equal(t, int32(2), intro.collectStatsCalls.Load())
	assert.Equal(t, int32(2), intro.sampleRowsCalls.Load())
}

func TestGetDatabaseContext_AllOrNothing(t *testing.T) {
	intro := newMockIntrospector()
	intro.ListColumnsFunc = func(ctx context.Context, table string) ([]datasource.ColumnMeta, error) {
		if table == "orders" {
			return nil, errors.New("permission denied")
		}
		return []datasource.ColumnMeta{{Name: "user_id", DataType: "integer"}}, nil
	}
	provider, store := newTestProvider(t, intro)

	_, err := provider.GetDatabaseContext(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIntrospectionFailed)

	// No composite may be published from a failed build, and the build
	// aborts before volatile collection starts
	_, found := cache.Value[*models.SchemaContext](context.Background(), store, cache.FullContextKey)
	assert.False(t, found)
	assert.Zero(t, intro.collectStatsCalls.Load())
}

func TestGetDatabaseContext_CatalogErrorIsFatal(t *testing.T) {
	intro := newMockIntrospector()
	intro.ListForeignKeysFunc = func(ctx context.Context) ([]datasource.ForeignKeyMeta, error) {
		return nil, errors.New("catalog unavailable")
	}
	provider, store := newTestProvider(t, intro)

	_, err := provider.GetDatabaseContext(context.Background())
	require.ErrorIs(t, err, apperrors.ErrIntrospectionFailed)

	stats := store.Stats(context.Background())
	assert.Zero(t, stats.CountsByLevel[cache.LevelFullContext])
	assert.Zero(t, stats.CountsByLevel[cache.LevelRelationships])
}

func TestGetDatabaseContext_PerTableStatisticsFailureIsSoft(t *testing.T) {
	intro := newMockIntrospector()
	intro.CollectStatsFunc = func(ctx context.Context, table string) (*datasource.TableStats, error) {
		if table == "orders" {
			return nil, errors.New("pg_stat unavailable")
		}
		return &datasource.TableStats{RowCount: 42}, nil
	}
	provider, _ := newTestProvider(t, intro)

	snapshot, err := provider.GetDatabaseContext(context.Background())
	require.NoError(t, err)

	assert.Contains(t, snapshot.Statistics, "users")
	assert.NotContains(t, snapshot.Statistics, "orders")
	// Samples are unaffected by the statistics failure
	assert.Len(t, snapshot.SampleData, 2)
}

func TestGetDatabaseContext_SkipsForeignKeyToMissingTable(t *testing.T) {
	intro := newMockIntrospector()
	intro.ListForeignKeysFunc = func(ctx context.Context) ([]datasource.ForeignKeyMeta, error) {
		return []datasource.ForeignKeyMeta{
			{
				ConstraintName:  "orders_ghost_fkey",
				Table:           "orders",
				Columns:         []string{"user_id"},
				ReferredTable:   "archived_users",
				ReferredColumns: []string{"user_id"},
			},
		}, nil
	}
	provider, _ := newTestProvider(t, intro)

	snapshot, err := provider.GetDatabaseContext(context.Background())
	require.NoError(t, err)

	assert.Empty(t, snapshot.Tables["orders"].ForeignKeys)
	assert.Empty(t, snapshot.Relationships)
}

func TestGetDatabaseContext_SingleFlight(t *testing.T) {
	intro := newMockIntrospector()
	intro.ListTablesFunc = func(ctx context.Context) ([]datasource.TableMeta, error) {
		time.Sleep(50 * time.Millisecond)
		return []datasource.TableMeta{{Schema: "public", Name: "users", RowEstimate: 10}}, nil
	}
	intro.ListColumnsFunc = func(ctx context.Context, table string) ([]datasource.ColumnMeta, error) {
		return []datasource.ColumnMeta{{Name: "user_id", DataType: "integer"}}, nil
	}
	provider, _ := newTestProvider(t, intro)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = provider.GetDatabaseContext(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), intro.listTablesCalls.Load(), "concurrent misses must share one rebuild")
}

func TestGetTableInfo_FromPerTableEntry(t *testing.T) {
	intro := newMockIntrospector()
	provider, _ := newTestProvider(t, intro)
	ctx := context.Background()

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)
	calls := intro.listTablesCalls.Load()

	info, err := provider.GetTableInfo(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "users", info.Name)
	assert.Equal(t, calls, intro.listTablesCalls.Load(), "per-table read must not re-introspect")

	// Foreign keys come from the relationships level, not the shape entry
	info, err = provider.GetTableInfo(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, info.ForeignKeys, 1)
	assert.Equal(t, "users", info.ForeignKeys[0].ReferredTable)
}

func TestGetTableInfo_CaseInsensitive(t *testing.T) {
	intro := newMockIntrospector()
	provider, _ := newTestProvider(t, intro)
	ctx := context.Background()

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	info, err := provider.GetTableInfo(ctx, "USERS")
	require.NoError(t, err)
	assert.Equal(t, "users", info.Name)
}

func TestGetTableInfo_BackfillsFromSnapshot(t *testing.T) {
	intro := newMockIntrospector()
	provider, store := newTestProvider(t, intro)
	ctx := context.Background()

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	// Drop only the per-table entries; the composite snapshot survives
	store.InvalidateLevel(ctx, cache.LevelSchema)

	info, err := provider.GetTableInfo(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", info.Name)
	assert.Equal(t, int32(1), intro.listTablesCalls.Load())

	// The per-table key is restored for the next lookup
	_, found := cache.Value[models.TableInfo](ctx, store, cache.TableInfoKey("orders"))
	assert.True(t, found)
}

func TestGetDatabaseContext_AttachIdempotentOverBackfilledShape(t *testing.T) {
	intro := newMockIntrospector()
	provider, store := newTestProvider(t, intro)
	ctx := context.Background()

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	// A backfilled shape entry carries foreign keys; a rebuild over it must
	// not duplicate them
	store.InvalidateLevel(ctx, cache.LevelSchema)
	_, err = provider.GetTableInfo(ctx, "orders")
	require.NoError(t, err)
	store.InvalidateLevel(ctx, cache.LevelFullContext)

	snapshot, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Tables["orders"].ForeignKeys, 1)
	assert.Equal(t, "users", snapshot.Tables["orders"].ForeignKeys[0].ReferredTable)
}

func TestGetTableInfo_UnknownTable(t *testing.T) {
	intro := newMockIntrospector()
	provider, _ := newTestProvider(t, intro)

	_, err := provider.GetTableInfo(context.Background(), "payments")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTableNotFound)
}

func TestRefreshCache_StatisticsScope(t *testing.T) {
	intro := newMockIntrospector()
	provider, store := newTestProvider(t, intro)
	ctx := context.Background()

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	invalidated, err := provider.RefreshCache(ctx, RefreshStatistics)
	require.NoError(t, err)
	// Two per-table statistics entries plus the composite snapshot
	assert.Equal(t, 3, invalidated)

	stats := store.Stats(ctx)
	assert.Zero(t, stats.CountsByLevel[cache.LevelStatistics])
	assert.Zero(t, stats.CountsByLevel[cache.LevelFullContext])
	// Schema and sample entries survive a statistics refresh
	assert.Equal(t, 2, stats.CountsByLevel[cache.LevelSchema])
	assert.Equal(t, 2, stats.CountsByLevel[cache.LevelSampleData])

	// The next snapshot read re-collects statistics but reuses the cached
	// schema and sample levels
	_, err = provider.GetDatabaseContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), intro.listTablesCalls.Load())
	assert.Equal(t, int32(4), intro.collectStatsCalls.Load())
	assert.Equal(t, int32(2), intro.sampleRowsCalls.Load())
}

func TestRefreshCache_AllScope(t *testing.T) {
	intro := newMockIntrospector()
	provider, store := newTestProvider(t, intro)
	ctx := context.Background()

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)
	before := store.Stats(ctx).EntryCount
	require.Positive(t, before)

	invalidated, err := provider.RefreshCache(ctx, RefreshAll)
	require.NoError(t, err)
	assert.Equal(t, before, invalidated)
	assert.Equal(t, 0, store.Stats(ctx).EntryCount)
}

func TestRefreshCache_InvalidScope(t *testing.T) {
	intro := newMockIntrospector()
	provider, _ := newTestProvider(t, intro)

	_, err := provider.RefreshCache(context.Background(), RefreshScope("samples"))
	require.ErrorIs(t, err, apperrors.ErrInvalidScope)
}

func TestGetCacheStats(t *testing.T) {
	intro := newMockIntrospector()
	provider, _ := newTestProvider(t, intro)
	ctx := context.Background()

	assert.Equal(t, 0, provider.GetCacheStats(ctx).EntryCount)

	_, err := provider.GetDatabaseContext(ctx)
	require.NoError(t, err)

	stats := provider.GetCacheStats(ctx)
	// full_context + relationships + 2 tables + 2 statistics + 2 samples
	assert.Equal(t, 8, stats.EntryCount)
	assert.Positive(t, stats.BytesApprox)
}

func TestParseRefreshScope(t *testing.T) {
	for _, valid := range []string{"all", "schema", "relationships", "statistics", "sample_data"} {
		scope, ok := ParseRefreshScope(valid)
		assert.True(t, ok, valid)
		assert.Equal(t, RefreshScope(valid), scope)
	}
	for _, invalid := range []string{"", "samples", "full_context", "ALL"} {
		_, ok := ParseRefreshScope(invalid)
		assert.False(t, ok, invalid)
	}
}
