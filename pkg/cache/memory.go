package cache

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const shardCount = 32

type memoryEntry struct {
	object    any
	level     Level
	size      int64
	expiresAt time.Time
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// memoryStore is the in-process Store backend. Keys are spread across a
// fixed set of shards so concurrent readers never contend on a store-wide
// lock.
type memoryStore struct {
	shards    [shardCount]*memoryShard
	ttls      TTLs
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	now       func() time.Time
}

var _ Store = (*memoryStore)(nil)

// MemoryOption configures the in-memory store.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	sweepInterval time.Duration
	now           func() time.Time
}

// WithSweepInterval sets how often the janitor removes expired entries.
// Defaults to one minute.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.sweepInterval = d }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) { c.now = now }
}

// NewMemory returns an in-memory Store. A janitor goroutine sweeps expired
// entries until Close is called or the parent context is canceled.
func NewMemory(parent context.Context, ttls TTLs, logger *zap.Logger, opts ...MemoryOption) Store {
	cfg := memoryConfig{
		sweepInterval: time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &memoryStore{
		ttls:   ttls,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		now:    cfg.now,
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]*memoryEntry)}
	}

	s.waitGroup.Add(1)
	go s.sweep(cfg.sweepInterval)
	return s
}

func (s *memoryStore) shardFor(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *memoryStore) Get(_ context.Context, key string) (any, bool) {
	shard := s.shardFor(key)

	shard.mu.RLock()
	entry, ok := shard.entries[key]
	shard.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !entry.expiresAt.After(s.now()) {
		shard.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if current, still := shard.entries[key]; still && current == entry {
			delete(shard.entries, key)
		}
		shard.mu.Unlock()
		return nil, false
	}
	return entry.object, true
}

func (s *memoryStore) Set(_ context.Context, key string, val any, level Level) {
	ttl := s.ttls.ForLevel(level)
	if ttl <= 0 {
		return
	}
	entry := &memoryEntry{
		object:    val,
		level:     level,
		size:      approxSize(val),
		expiresAt: s.now().Add(ttl),
	}

	shard := s.shardFor(key)
	shard.mu.Lock()
	shard.entries[key] = entry
	shard.mu.Unlock()
}

func (s *memoryStore) Delete(_ context.Context, key string) bool {
	shard := s.shardFor(key)
	shard.mu.Lock()
	_, ok := shard.entries[key]
	if ok {
		delete(shard.entries, key)
	}
	shard.mu.Unlock()
	return ok
}

func (s *memoryStore) InvalidatePattern(_ context.Context, substr string) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key := range shard.entries {
			if strings.Contains(key, substr) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (s *memoryStore) InvalidateLevel(_ context.Context, level Level) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, entry := range shard.entries {
			if entry.level == level {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (s *memoryStore) Stats(_ context.Context) Stats {
	stats := Stats{CountsByLevel: make(map[Level]int)}
	now := s.now()
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, entry := range shard.entries {
			if !entry.expiresAt.After(now) {
				continue
			}
			stats.EntryCount++
			stats.BytesApprox += entry.size
			stats.CountsByLevel[entry.level]++
		}
		shard.mu.RUnlock()
	}
	return stats
}

func (s *memoryStore) Close() {
	s.once.Do(func() {
		s.cancel()
		s.waitGroup.Wait()
	})
}

func (s *memoryStore) sweep(interval time.Duration) {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			swept := 0
			for _, shard := range s.shards {
				shard.mu.Lock()
				for key, entry := range shard.entries {
					if !entry.expiresAt.After(now) {
						delete(shard.entries, key)
						swept++
					}
				}
				shard.mu.Unlock()
			}
			if swept > 0 && s.logger != nil {
				s.logger.Debug("Swept expired cache entries", zap.Int("count", swept))
			}
		}
	}
}
