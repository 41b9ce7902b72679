package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/anishjain94/db-optimizer/pkg/adapters/datasource"
	"github.com/anishjain94/db-optimizer/pkg/logging"
)

// Adapter provides schema introspection and read-only query execution for a
// single PostgreSQL database. All lookups are scoped to one schema.
type Adapter struct {
	pool      *pgxpool.Pool
	schema    string
	ownedPool bool // true if we created the pool (tests, direct instantiation)
	logger    *zap.Logger
}

// NewAdapter wraps an existing pool. The pool stays owned by the caller and
// is not closed by Close. If logger is nil, a no-op logger is used.
func NewAdapter(pool *pgxpool.Pool, schemaName string, logger *zap.Logger) *Adapter {
	if schemaName == "" {
		schemaName = "public"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		pool:   pool,
		schema: schemaName,
		logger: logger,
	}
}

// NewAdapterFromDSN creates an adapter with its own pool (for tests or direct
// instantiation). Close releases the pool.
func NewAdapterFromDSN(ctx context.Context, dsn, schemaName string, logger *zap.Logger) (*Adapter, error) {
	if logger != nil {
		logger.Debug("Connecting to target database",
			zap.String("dsn", logging.SanitizeConnectionString(dsn)))
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	a := NewAdapter(pool, schemaName, logger)
	a.ownedPool = true
	return a, nil
}

// Schema returns the schema name all lookups are scoped to.
func (a *Adapter) Schema() string {
	return a.schema
}

// Close releases the pool only if the adapter created it.
func (a *Adapter) Close() error {
	if a.ownedPool && a.pool != nil {
		a.pool.Close()
	}
	return nil
}

var (
	_ datasource.SchemaIntrospector = (*Adapter)(nil)
	_ datasource.ReadOnlyExecutor   = (*Adapter)(nil)
)
