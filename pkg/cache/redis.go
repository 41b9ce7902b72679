package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// defaultOpTimeout bounds individual Redis operations so a slow or
// unreachable backend degrades to a miss instead of stalling requests.
const defaultOpTimeout = 5 * time.Second

// redisStore is the distributed Store backend. Each entry is a Redis hash
// with fields v (msgpack payload), l (level), and c (created-at unix);
// expiry rides on the key's TTL.
type redisStore struct {
	client    *redis.Client
	ttls      TTLs
	prefix    string
	opTimeout time.Duration
	logger    *zap.Logger
}

var _ Store = (*redisStore)(nil)

// RedisOption configures the Redis store.
type RedisOption func(*redisStore)

// WithPrefix namespaces every key. Useful when sharing a Redis instance.
func WithPrefix(prefix string) RedisOption {
	return func(s *redisStore) { s.prefix = prefix }
}

// WithOpTimeout sets the per-operation timeout. Defaults to 5 seconds.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(s *redisStore) { s.opTimeout = d }
}

// NewRedis returns a Store backed by Redis. The caller owns the client
// lifecycle; Close does not close it.
func NewRedis(client *redis.Client, ttls TTLs, logger *zap.Logger, opts ...RedisOption) Store {
	s := &redisStore{
		client:    client,
		ttls:      ttls,
		opTimeout: defaultOpTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *redisStore) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.opTimeout)
}

func (s *redisStore) prefixed(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *redisStore) unprefixed(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+":")
}

func (s *redisStore) match() string {
	if s.prefix == "" {
		return "*"
	}
	return s.prefix + ":*"
}

func (s *redisStore) Get(ctx context.Context, key string) (any, bool) {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	data, err := s.client.HGet(qctx, s.prefixed(key), "v").Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("Redis get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return data, true
}

func (s *redisStore) Set(ctx context.Context, key string, val any, level Level) {
	ttl := s.ttls.ForLevel(level)
	if ttl <= 0 {
		return
	}

	data, err := msgpack.Marshal(val)
	if err != nil {
		s.logger.Warn("Redis set skipped, value not serializable", zap.String("key", key), zap.Error(err))
		return
	}

	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	k := s.prefixed(key)
	pipe := s.client.Pipeline()
	pipe.HSet(qctx, k, "v", data, "l", string(level), "c", time.Now().Unix())
	pipe.Expire(qctx, k, ttl)
	if _, err := pipe.Exec(qctx); err != nil {
		s.logger.Warn("Redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *redisStore) Delete(ctx context.Context, key string) bool {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	removed, err := s.client.Del(qctx, s.prefixed(key)).Result()
	if err != nil {
		s.logger.Warn("Redis delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return removed > 0
}

// scanKeys iterates every key under the store's prefix.
func (s *redisStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.match(), 200).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *redisStore) InvalidatePattern(ctx context.Context, substr string) int {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	keys, err := s.scanKeys(qctx)
	if err != nil {
		s.logger.Warn("Redis scan failed during pattern invalidation", zap.Error(err))
		return 0
	}

	var doomed []string
	for _, k := range keys {
		if strings.Contains(s.unprefixed(k), substr) {
			doomed = append(doomed, k)
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	removed, err := s.client.Del(qctx, doomed...).Result()
	if err != nil {
		s.logger.Warn("Redis delete failed during pattern invalidation", zap.Error(err))
		return 0
	}
	return int(removed)
}

func (s *redisStore) InvalidateLevel(ctx context.Context, level Level) int {
	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	keys, err := s.scanKeys(qctx)
	if err != nil {
		s.logger.Warn("Redis scan failed during level invalidation", zap.Error(err))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGet(qctx, k, "l")
	}
	if _, err := pipe.Exec(qctx); err != nil && err != redis.Nil {
		s.logger.Warn("Redis level lookup failed during level invalidation", zap.Error(err))
		return 0
	}

	var doomed []string
	for i, cmd := range cmds {
		if cmd.Err() != nil {
			continue
		}
		if Level(cmd.Val()) == level {
			doomed = append(doomed, keys[i])
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	removed, err := s.client.Del(qctx, doomed...).Result()
	if err != nil {
		s.logger.Warn("Redis delete failed during level invalidation", zap.Error(err))
		return 0
	}
	return int(removed)
}

func (s *redisStore) Stats(ctx context.Context) Stats {
	stats := Stats{CountsByLevel: make(map[Level]int)}

	qctx, cancel := s.opCtx(ctx)
	defer cancel()

	keys, err := s.scanKeys(qctx)
	if err != nil {
		s.logger.Warn("Redis scan failed during stats", zap.Error(err))
		return stats
	}
	if len(keys) == 0 {
		return stats
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(qctx, k, "l", "v")
	}
	if _, err := pipe.Exec(qctx); err != nil && err != redis.Nil {
		s.logger.Warn("Redis stats lookup failed", zap.Error(err))
		return stats
	}

	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 || vals[0] == nil {
			continue
		}
		levelStr, _ := vals[0].(string)
		stats.EntryCount++
		stats.CountsByLevel[Level(levelStr)]++
		if payload, ok := vals[1].(string); ok {
			stats.BytesApprox += int64(len(payload))
		}
	}
	return stats
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *redisStore) Close() {}
