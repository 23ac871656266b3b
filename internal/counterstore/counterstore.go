// Package counterstore implements the windowed counter store (C2):
// per-user rolling counts over fixed windows and per-(user, event_type)
// 24h frequencies, backed by a cache with a database fallback.
package counterstore

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/featurepipeline/featurepipeline/internal/metrics"
)

// cacheClient is the slice of *cache.Cache the counter store needs.
type cacheClient interface {
	GetString(ctx context.Context, key string) (string, bool)
	SetString(ctx context.Context, key, value string, ttl time.Duration)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, bool)
	GetInt(ctx context.Context, key string) (int64, bool)
}

// activityReader is the historical fallback the store queries on a cache
// miss for a window count.
type activityReader interface {
	ActivityCountSince(ctx context.Context, userID string, windowSeconds int) (int64, error)
}

const eventFreqTTL = 24 * time.Hour

// Store is the windowed counter store.
type Store struct {
	cache cacheClient
	db    activityReader
}

// New builds a Store over the shared cache and the feature store's
// historical read path.
func New(cache cacheClient, db activityReader) *Store {
	return &Store{cache: cache, db: db}
}

// BumpWindow returns the new count for user_id within window, per §4.2:
// a cache hit is incremented and its TTL refreshed; a cache miss falls
// back to a database count of raw events in the window, plus one, and a
// database fault is treated as a historical count of zero.
func (s *Store) BumpWindow(ctx context.Context, userID string, window time.Duration, ttl time.Duration) int64 {
	key := "activity:" + userID + ":" + strconv.Itoa(int(window.Seconds()))

	if cached, ok := s.cache.GetString(ctx, key); ok {
		metrics.CacheHits.Inc()
		count, _ := strconv.ParseInt(cached, 10, 64)
		next := count + 1
		s.cache.SetString(ctx, key, strconv.FormatInt(next, 10), ttl)
		return next
	}

	metrics.CacheMisses.Inc()
	historical, err := s.db.ActivityCountSince(ctx, userID, int(window.Seconds()))
	if err != nil {
		zap.S().Warnw("activity count fallback failed, treating as zero", "user_id", userID, "error", err)
		historical = 0
	}
	next := historical + 1
	s.cache.SetString(ctx, key, strconv.FormatInt(next, 10), ttl)
	return next
}

// BumpEventTypeFreq increments the 24h per-(user, event_type) frequency
// counter and returns its post-increment value. A cache fault degrades to
// zero, matching "cache unavailable → treat every lookup as miss".
func (s *Store) BumpEventTypeFreq(ctx context.Context, userID, eventType string) int64 {
	key := "event_freq:" + userID + ":" + eventType + ":24h"
	val, ok := s.cache.Incr(ctx, key, eventFreqTTL)
	if !ok {
		return 0
	}
	return val
}

// ReadEventTypeFreq reads the 24h frequency counter without incrementing
// it, for ratio features that consume but do not bump this counter.
func (s *Store) ReadEventTypeFreq(ctx context.Context, userID, eventType string) int64 {
	key := "event_freq:" + userID + ":" + eventType + ":24h"
	val, ok := s.cache.GetInt(ctx, key)
	if !ok {
		return 0
	}
	return val
}
