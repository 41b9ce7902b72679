// Package schema builds and serves point-in-time snapshots of the target
// database. Snapshots are assembled whole from live introspection and held
// in the leveled cache; consumers never observe a partial snapshot.
package schema

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource"
	"github.com/anishjain94/db-optimizer/pkg/apperrors"
	"github.com/anishjain94/db-optimizer/pkg/cache"
	"github.com/anishjain94/db-optimizer/pkg/metrics"
	"github.com/anishjain94/db-optimizer/pkg/models"
)

// RefreshScope selects which cache levels RefreshCache clears.
type RefreshScope string

const (
	RefreshAll           RefreshScope = "all"
	RefreshSchema        RefreshScope = "schema"
	RefreshRelationships RefreshScope = "relationships"
	RefreshStatistics    RefreshScope = "statistics"
	RefreshSampleData    RefreshScope = "sample_data"
)

// ParseRefreshScope validates a scope string.
func ParseRefreshScope(s string) (RefreshScope, bool) {
	switch RefreshScope(s) {
	case RefreshAll, RefreshSchema, RefreshRelationships, RefreshStatistics, RefreshSampleData:
		return RefreshScope(s), true
	}
	return "", false
}

// scopeLevel maps a narrow refresh scope onto the cache level it clears.
var scopeLevel = map[RefreshScope]cache.Level{
	RefreshSchema:        cache.LevelSchema,
	RefreshRelationships: cache.LevelRelationships,
	RefreshStatistics:    cache.LevelStatistics,
	RefreshSampleData:    cache.LevelSampleData,
}

// ContextProvider serves schema snapshots for generation and validation.
type ContextProvider interface {
	// GetDatabaseContext returns the current snapshot, rebuilding it from
	// cached levels and live introspection on a cache miss. The composite is
	// published all-or-nothing: a failed build never yields a partial one.
	GetDatabaseContext(ctx context.Context) (*models.SchemaContext, error)

	// GetTableInfo returns one table's shape, preferring per-table cache
	// entries over the composite snapshot. Unknown tables report
	// apperrors.ErrTableNotFound.
	GetTableInfo(ctx context.Context, table string) (*models.TableInfo, error)

	// RefreshCache clears the cache levels covered by scope and returns the
	// number of entries invalidated. The next snapshot read re-introspects
	// only the cleared levels.
	RefreshCache(ctx context.Context, scope RefreshScope) (int, error)

	// GetCacheStats reports live cache contents.
	GetCacheStats(ctx context.Context) cache.Stats
}

// ProviderConfig carries the provider's tunables.
type ProviderConfig struct {
	// SampleRowLimit caps sample rows fetched per table. Values outside
	// [1, 5] are clamped to 5.
	SampleRowLimit int

	// Workers bounds the per-table statistics and sample fan-out.
	Workers int

	// BuildTimeout is the budget for one full introspection pass.
	BuildTimeout time.Duration
}

const (
	maxSampleRows       = 5
	defaultBuildTimeout = 10 * time.Second
)

func (c ProviderConfig) withDefaults() ProviderConfig {
	if c.SampleRowLimit < 1 || c.SampleRowLimit > maxSampleRows {
		c.SampleRowLimit = maxSampleRows
	}
	if c.Workers < 1 {
		c.Workers = defaultWorkers
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = defaultBuildTimeout
	}
	return c
}

type contextProvider struct {
	introspector datasource.SchemaIntrospector
	store        cache.Store
	cfg          ProviderConfig
	pool         *WorkerPool
	group        singleflight.Group
	logger       *zap.Logger
}

// NewContextProvider creates a provider over the given introspector and
// cache store.
func NewContextProvider(
	introspector datasource.SchemaIntrospector,
	store cache.Store,
	cfg ProviderConfig,
	logger *zap.Logger,
) ContextProvider {
	cfg = cfg.withDefaults()
	return &contextProvider{
		introspector: introspector,
		store:        store,
		cfg:          cfg,
		pool:         NewWorkerPool(cfg.Workers, logger),
		logger:       logger.Named("schema-provider"),
	}
}

func (p *contextProvider) GetDatabaseContext(ctx context.Context) (*models.SchemaContext, error) {
	cached, ok := cache.Value[*models.SchemaContext](ctx, p.store, cache.FullContextKey)
	metrics.ObserveCacheRead(string(cache.LevelFullContext), ok)
	if ok {
		return cached, nil
	}

	// Concurrent misses share one rebuild. The store is re-checked inside
	// the flight because a finished rebuild may have landed between the
	// miss above and joining the group.
	v, err, shared := p.group.Do(cache.FullContextKey, func() (any, error) {
		if cached, ok := cache.Value[*models.SchemaContext](ctx, p.store, cache.FullContextKey); ok {
			return cached, nil
		}

		buildCtx, cancel := context.WithTimeout(ctx, p.cfg.BuildTimeout)
		defer cancel()

		return p.rebuild(buildCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrIntrospectionFailed, err)
	}
	if shared {
		p.logger.Debug("Snapshot rebuild shared across callers")
	}
	return v.(*models.SchemaContext), nil
}

// rebuild assembles a snapshot by composing the four underlying cache
// levels, reading through to live introspection for whichever have expired
// or been invalidated. Catalog errors abort the whole build; per-table
// statistics and sample failures only drop that table's entry from the
// respective map. The composite is stored only on full success, so level
// entries cached along the way never add up to a partial snapshot.
func (p *contextProvider) rebuild(ctx context.Context) (*models.SchemaContext, error) {
	start := time.Now()

	tables, err := p.introspector.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	snapshot := &models.SchemaContext{
		Tables:        make(map[string]models.TableInfo, len(tables)),
		Relationships: make(map[string][]models.RelationshipEdge),
		SampleData:    make(map[string][]map[string]any),
		Statistics:    make(map[string]models.TableStatistics),
		BuiltAt:       time.Now().UTC(),
	}

	if err := p.collectShapes(ctx, snapshot, tables); err != nil {
		return nil, err
	}

	// The constraint list is its own cache level: refreshing relationships
	// re-reads constraints without re-introspecting table shapes.
	fks, err := cache.Fetch(ctx, p.store, cache.RelationshipsKey, cache.LevelRelationships,
		func(ctx context.Context) ([]datasource.ForeignKeyMeta, error) {
			return p.introspector.ListForeignKeys(ctx)
		})
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	p.attachForeignKeys(snapshot, fks)

	if err := p.collectStatistics(ctx, snapshot); err != nil {
		return nil, err
	}
	if err := p.collectSamples(ctx, snapshot); err != nil {
		return nil, err
	}

	p.store.Set(ctx, cache.FullContextKey, snapshot, cache.LevelFullContext)

	metrics.IncContextRebuild()
	p.logger.Info("Schema snapshot rebuilt",
		zap.Int("tables", len(snapshot.Tables)),
		zap.Int("foreign_keys", len(fks)),
		zap.Duration("elapsed", time.Since(start)))
	return snapshot, nil
}

// collectShapes fills snapshot.Tables from per-table schema entries, reading
// through to the catalog for tables not cached. Any shape failure aborts.
func (p *contextProvider) collectShapes(ctx context.Context, snapshot *models.SchemaContext, tables []datasource.TableMeta) error {
	items := make([]WorkItem[models.TableInfo], 0, len(tables))
	for _, table := range tables {
		items = append(items, WorkItem[models.TableInfo]{
			ID: table.Name,
			Execute: func(ctx context.Context) (models.TableInfo, error) {
				return cache.Fetch(ctx, p.store, cache.TableInfoKey(table.Name), cache.LevelSchema,
					func(ctx context.Context) (models.TableInfo, error) {
						return p.introspectTable(ctx, table)
					})
			},
		})
	}

	for _, result := range Process(ctx, p.pool, items) {
		if result.Err != nil {
			return result.Err
		}
		snapshot.Tables[result.ID] = result.Result
	}
	return nil
}

func (p *contextProvider) introspectTable(ctx context.Context, table datasource.TableMeta) (models.TableInfo, error) {
	columns, err := p.introspector.ListColumns(ctx, table.Name)
	if err != nil {
		return models.TableInfo{}, fmt.Errorf("list columns for %s: %w", table.Name, err)
	}
	primaryKeys, err := p.introspector.ListPrimaryKeys(ctx, table.Name)
	if err != nil {
		return models.TableInfo{}, fmt.Errorf("list primary keys for %s: %w", table.Name, err)
	}
	indexes, err := p.introspector.ListIndexes(ctx, table.Name)
	if err != nil {
		return models.TableInfo{}, fmt.Errorf("list indexes for %s: %w", table.Name, err)
	}

	pkSet := make(map[string]bool, len(primaryKeys))
	for _, pk := range primaryKeys {
		pkSet[pk] = true
	}

	info := models.TableInfo{
		Name:        table.Name,
		Columns:     make(map[string]models.ColumnInfo, len(columns)),
		PrimaryKeys: primaryKeys,
		RowCount:    table.RowEstimate,
	}
	for _, idx := range indexes {
		info.Indexes = append(info.Indexes, models.IndexInfo{
			Name:    idx.Name,
			Columns: idx.Columns,
			Unique:  idx.Unique,
		})
	}
	for _, col := range columns {
		info.Columns[col.Name] = models.ColumnInfo{
			Name:         col.Name,
			DataType:     col.DataType,
			Nullable:     col.Nullable,
			Default:      col.Default,
			IsPrimaryKey: pkSet[col.Name],
		}
	}
	return info, nil
}

// attachForeignKeys overwrites every table's constraint list and derives both
// relationship directions from the given constraints. Assignment rather than
// append keeps the attach idempotent when a cached shape already carries
// constraints from an earlier pass. A constraint whose endpoint is missing
// from the snapshot contributes nothing beyond a warning; the snapshot stays
// internally consistent.
func (p *contextProvider) attachForeignKeys(snapshot *models.SchemaContext, fks []datasource.ForeignKeyMeta) {
	byOwner := make(map[string][]models.ForeignKeyRef)
	for _, fk := range fks {
		if _, ok := snapshot.Tables[fk.Table]; !ok {
			p.logger.Warn("Foreign key owner missing from snapshot",
				zap.String("constraint", fk.ConstraintName),
				zap.String("table", fk.Table))
			continue
		}
		if _, ok := snapshot.Tables[fk.ReferredTable]; !ok {
			p.logger.Warn("Foreign key target missing from snapshot",
				zap.String("constraint", fk.ConstraintName),
				zap.String("table", fk.Table),
				zap.String("referred_table", fk.ReferredTable))
			continue
		}

		byOwner[fk.Table] = append(byOwner[fk.Table], models.ForeignKeyRef{
			ConstrainedColumns: fk.Columns,
			ReferredTable:      fk.ReferredTable,
			ReferredColumns:    fk.ReferredColumns,
		})

		snapshot.Relationships[fk.Table] = append(snapshot.Relationships[fk.Table], models.RelationshipEdge{
			Kind:            models.RelationshipReferences,
			Table:           fk.ReferredTable,
			Columns:         fk.Columns,
			ReferredColumns: fk.ReferredColumns,
		})
		snapshot.Relationships[fk.ReferredTable] = append(snapshot.Relationships[fk.ReferredTable], models.RelationshipEdge{
			Kind:            models.RelationshipReferencedBy,
			Table:           fk.Table,
			Columns:         fk.Columns,
			ReferredColumns: fk.ReferredColumns,
		})
	}

	for name, info := range snapshot.Tables {
		info.ForeignKeys = byOwner[name]
		snapshot.Tables[name] = info
	}
}

func (p *contextProvider) collectStatistics(ctx context.Context, snapshot *models.SchemaContext) error {
	items := make([]WorkItem[models.TableStatistics], 0, len(snapshot.Tables))
	for name := range snapshot.Tables {
		items = append(items, WorkItem[models.TableStatistics]{
			ID: name,
			Execute: func(ctx context.Context) (models.TableStatistics, error) {
				return cache.Fetch(ctx, p.store, cache.StatisticsKey(name), cache.LevelStatistics,
					func(ctx context.Context) (models.TableStatistics, error) {
						stats, err := p.introspector.CollectTableStatistics(ctx, name)
						if err != nil {
							return models.TableStatistics{}, err
						}
						return models.TableStatistics{
							RowCount:       stats.RowCount,
							TotalBytes:     stats.TotalBytes,
							IndexBytes:     stats.IndexBytes,
							SeqScans:       stats.SeqScans,
							IndexScans:     stats.IndexScans,
							DeadRows:       stats.DeadRows,
							DistinctValues: stats.DistinctValues,
						}, nil
					})
			},
		})
	}

	for _, result := range Process(ctx, p.pool, items) {
		if result.Err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("collect statistics: %w", ctx.Err())
			}
			p.logger.Warn("Statistics collection failed, skipping table",
				zap.String("table", result.ID), zap.Error(result.Err))
			continue
		}
		snapshot.Statistics[result.ID] = result.Result
	}
	return nil
}

func (p *contextProvider) collectSamples(ctx context.Context, snapshot *models.SchemaContext) error {
	items := make([]WorkItem[[]map[string]any], 0, len(snapshot.Tables))
	for name := range snapshot.Tables {
		items = append(items, WorkItem[[]map[string]any]{
			ID: name,
			Execute: func(ctx context.Context) ([]map[string]any, error) {
				return cache.Fetch(ctx, p.store, cache.SampleKey(name), cache.LevelSampleData,
					func(ctx context.Context) ([]map[string]any, error) {
						return p.introspector.SampleRows(ctx, name, p.cfg.SampleRowLimit)
					})
			},
		})
	}

	for _, result := range Process(ctx, p.pool, items) {
		if result.Err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("collect samples: %w", ctx.Err())
			}
			p.logger.Warn("Sample collection failed, skipping table",
				zap.String("table", result.ID), zap.Error(result.Err))
			continue
		}
		snapshot.SampleData[result.ID] = result.Result
	}
	return nil
}

func (p *contextProvider) GetTableInfo(ctx context.Context, table string) (*models.TableInfo, error) {
	info, ok := cache.Value[models.TableInfo](ctx, p.store, cache.TableInfoKey(table))
	metrics.ObserveCacheRead(string(cache.LevelSchema), ok)
	if ok {
		// The cached shape and the constraint list live at different levels;
		// serve from them only when both are present so the response always
		// carries foreign keys.
		if fks, haveFks := cache.Value[[]datasource.ForeignKeyMeta](ctx, p.store, cache.RelationshipsKey); haveFks {
			info.ForeignKeys = ownForeignKeys(info.Name, fks)
			return &info, nil
		}
	}

	// Fall back to the composite snapshot before paying for a rebuild, and
	// backfill the per-table key on a hit.
	if snapshot, ok := cache.Value[*models.SchemaContext](ctx, p.store, cache.FullContextKey); ok {
		info, found := snapshot.LookupTable(table)
		if !found {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, table)
		}
		p.store.Set(ctx, cache.TableInfoKey(table), info, cache.LevelSchema)
		return &info, nil
	}

	snapshot, err := p.GetDatabaseContext(ctx)
	if err != nil {
		return nil, err
	}
	info, found := snapshot.LookupTable(table)
	if !found {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, table)
	}
	return &info, nil
}

// ownForeignKeys filters the schema-wide constraint list down to the ones
// owned by table.
func ownForeignKeys(table string, fks []datasource.ForeignKeyMeta) []models.ForeignKeyRef {
	var refs []models.ForeignKeyRef
	for _, fk := range fks {
		if fk.Table != table {
			continue
		}
		refs = append(refs, models.ForeignKeyRef{
			ConstrainedColumns: fk.Columns,
			ReferredTable:      fk.ReferredTable,
			ReferredColumns:    fk.ReferredColumns,
		})
	}
	return refs
}

func (p *contextProvider) RefreshCache(ctx context.Context, scope RefreshScope) (int, error) {
	if scope == RefreshAll {
		invalidated := 0
		for _, level := range cache.Levels {
			invalidated += p.store.InvalidateLevel(ctx, level)
		}
		p.logger.Info("Cache refreshed", zap.String("scope", string(scope)), zap.Int("invalidated", invalidated))
		return invalidated, nil
	}

	level, ok := scopeLevel[scope]
	if !ok {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrInvalidScope, scope)
	}

	// The composite snapshot embeds every level, so clearing any narrow
	// scope must clear it too or readers would keep seeing the old data.
	invalidated := p.store.InvalidateLevel(ctx, level)
	invalidated += p.store.InvalidateLevel(ctx, cache.LevelFullContext)
	p.logger.Info("Cache refreshed", zap.String("scope", string(scope)), zap.Int("invalidated", invalidated))
	return invalidated, nil
}

func (p *contextProvider) GetCacheStats(ctx context.Context) cache.Stats {
	return p.store.Stats(ctx)
}

var _ ContextProvider = (*contextProvider)(nil)
