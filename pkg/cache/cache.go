// Package cache provides the leveled TTL store for schema context data.
// Entries are grouped into levels with independent TTLs so that volatile
// data (statistics, samples) can expire and be refreshed without discarding
// the slow-moving schema snapshot.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Level classifies a cache entry and selects its TTL.
type Level string

const (
	LevelSchema        Level = "schema"
	LevelRelationships Level = "relationships"
	LevelStatistics    Level = "statistics"
	LevelSampleData    Level = "sample_data"
	LevelFullContext   Level = "full_context"
)

// Levels lists every cache level.
var Levels = []Level{
	LevelSchema,
	LevelRelationships,
	LevelStatistics,
	LevelSampleData,
	LevelFullContext,
}

// ParseLevel validates a level string.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelSchema, LevelRelationships, LevelStatistics, LevelSampleData, LevelFullContext:
		return Level(s), true
	}
	return "", false
}

// Key naming is the invalidation contract: every key starts with a stable
// per-kind prefix so pattern invalidation can target one family of entries.
const (
	FullContextKey   = "full_context"
	RelationshipsKey = "relationships"

	tableInfoPrefix  = "table_info_"
	statisticsPrefix = "statistics_"
	samplePrefix     = "sample_"
)

// TableInfoKey returns the per-table schema entry key.
func TableInfoKey(table string) string {
	return tableInfoPrefix + strings.ToLower(table)
}

// StatisticsKey returns the per-table statistics entry key.
func StatisticsKey(table string) string {
	return statisticsPrefix + strings.ToLower(table)
}

// SampleKey returns the per-table sample data entry key.
func SampleKey(table string) string {
	return samplePrefix + strings.ToLower(table)
}

// TTLs holds the expiry duration for each level.
type TTLs struct {
	Schema        time.Duration
	Relationships time.Duration
	Statistics    time.Duration
	SampleData    time.Duration
	FullContext   time.Duration
}

// DefaultTTLs returns the standard per-level TTLs.
func DefaultTTLs() TTLs {
	return TTLs{
		Schema:        time.Hour,
		Relationships: 30 * time.Minute,
		Statistics:    5 * time.Minute,
		SampleData:    10 * time.Minute,
		FullContext:   15 * time.Minute,
	}
}

// ForLevel returns the TTL configured for a level. Unknown levels fall back
// to the statistics TTL, the shortest configured window.
func (t TTLs) ForLevel(level Level) time.Duration {
	switch level {
	case LevelSchema:
		return t.Schema
	case LevelRelationships:
		return t.Relationships
	case LevelStatistics:
		return t.Statistics
	case LevelSampleData:
		return t.SampleData
	case LevelFullContext:
		return t.FullContext
	}
	return t.Statistics
}

// Stats summarizes the live contents of a store.
type Stats struct {
	EntryCount    int           `json:"total_entries"`
	BytesApprox   int64         `json:"total_size_bytes"`
	CountsByLevel map[Level]int `json:"entries_by_level"`
}

// Store is the leveled TTL cache contract. Implementations absorb backend
// failures: a failed read is a miss, a failed write is a no-op, and no
// method returns an error to the caller.
type Store interface {
	// Get returns the cached value for key, or found=false on a miss.
	// Expired and corrupted entries are misses.
	Get(ctx context.Context, key string) (any, bool)

	// Set stores a value under key at the given level. The entry expires
	// after the level's TTL.
	Set(ctx context.Context, key string, val any, level Level)

	// Delete removes a single key, reporting whether it was present.
	Delete(ctx context.Context, key string) bool

	// InvalidatePattern removes every entry whose key contains the given
	// substring and returns the number removed.
	InvalidatePattern(ctx context.Context, substr string) int

	// InvalidateLevel removes every entry stored at the given level and
	// returns the number removed.
	InvalidateLevel(ctx context.Context, level Level) int

	// Stats reports live entry counts and approximate serialized size.
	Stats(ctx context.Context) Stats

	// Close stops background work. Safe to call more than once.
	Close()
}

// Value retrieves a typed value from the store. In-memory stores hold live
// objects and satisfy a direct type assertion; serialized stores return
// []byte which is msgpack-decoded into T. A value that cannot be converted
// is treated as a corrupted entry: it is deleted and reported as a miss.
func Value[T any](ctx context.Context, s Store, key string) (T, bool) {
	var zero T
	val, found := s.Get(ctx, key)
	if !found {
		return zero, false
	}
	if typed, ok := val.(T); ok {
		return typed, true
	}
	if data, ok := val.([]byte); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err == nil {
			return result, true
		}
	}
	s.Delete(ctx, key)
	return zero, false
}

// Fetch is the cache-aside helper: it returns the cached value for key when
// present, and otherwise invokes load, stores the result at the given level,
// and returns it. Loader errors propagate and nothing is cached on error.
func Fetch[T any](ctx context.Context, s Store, key string, level Level, load func(context.Context) (T, error)) (T, error) {
	if v, ok := Value[T](ctx, s, key); ok {
		return v, nil
	}
	result, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.Set(ctx, key, result, level)
	return result, nil
}

// approxSize estimates an entry's serialized size for stats reporting.
func approxSize(val any) int64 {
	if data, ok := val.([]byte); ok {
		return int64(len(data))
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
