// Package cache is the tiered cache shared by the counter store, the
// feature computer, and the drift detector: an in-process layer in front
// of Redis, exactly the shape the teacher's tiered cache takes, adapted
// from a sentinel-backed failover client to a plain single-endpoint one
// since this system has no sentinel addresses to configure (only
// REDIS_HOST/REDIS_PORT, per the recognised environment variables).
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// hotTTL is how long a value stays in the in-process tier once fetched
// from Redis. Kept short: the in-process tier exists to absorb bursts of
// repeated reads within a single batch, not to diverge from Redis for
// long.
const hotTTL = 5 * time.Second

// Cache wraps a Redis client with an in-process hot tier. All methods
// degrade to a treat-as-miss / no-op policy when Redis is unavailable —
// callers see a miss, never an error, matching the "cache fault: degrade
// to miss path, continue" failure semantics.
type Cache struct {
	rdb *redis.Client
	hot *gocache.Cache
}

// Options configures a Redis connection.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New connects to Redis and builds the tiered cache. It does not fail if
// Redis is unreachable at construction time — Available() and every
// operation below tolerate that, since a transient Redis outage must not
// be fatal to the pipeline.
func New(opts Options) *Cache {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	return &Cache{
		rdb: rdb,
		hot: gocache.New(hotTTL, 2*hotTTL),
	}
}

// Available pings Redis with a bounded timeout.
func (c *Cache) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		zap.S().Debugw("redis unavailable", "error", err)
		return false
	}
	return true
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// GetString reads key, checking the hot tier first. A Redis fault or a
// genuine miss are both reported as (_, false) — callers cannot and need
// not distinguish them.
func (c *Cache) GetString(ctx context.Context, key string) (string, bool) {
	if v, ok := c.hot.Get(key); ok {
		return v.(string), true
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	c.hot.SetDefault(key, val)
	return val, true
}

// SetString writes key to Redis with the given TTL and refreshes the hot
// tier. Redis errors are logged and swallowed: a failed cache write must
// not fail the pipeline.
func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	c.hot.SetDefault(key, value)
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		zap.S().Debugw("cache set failed", "key", key, "error", err)
	}
}

// Incr increments key by 1, creating it at 1 if absent, and (re)sets its
// TTL on every call. Returns the post-increment value and whether the
// Redis round trip succeeded.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.S().Debugw("cache incr failed", "key", key, "error", err)
		return 0, false
	}
	c.hot.Delete(key)
	return incr.Val(), true
}

// GetInt reads key as an integer counter, without incrementing it.
func (c *Cache) GetInt(ctx context.Context, key string) (int64, bool) {
	val, err := c.rdb.Get(ctx, key).Int64()
	if err != nil {
		return 0, false
	}
	return val, true
}

// HGetAll reads a hash, returning (nil, false) on miss or fault.
func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, bool) {
	val, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil || len(val) == 0 {
		return nil, false
	}
	return val, true
}

// HSetAll writes every field of fields into the hash at key and refreshes
// its TTL.
func (c *Cache) HSetAll(ctx context.Context, key string, fields map[string]interface{}, ttl time.Duration) {
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		zap.S().Debugw("cache hset failed", "key", key, "error", err)
	}
}

// ZAdd appends a scored member to a sorted set and trims members scored
// below minScore, in one round trip.
func (c *Cache) ZAdd(ctx context.Context, key string, score float64, member string, minScore float64) {
	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: score, Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", formatScore(minScore))
	if _, err := pipe.Exec(ctx); err != nil {
		zap.S().Debugw("cache zadd failed", "key", key, "error", err)
	}
}

func formatScore(f float64) string {
	return redisFloat(f)
}
