// Package cache implements an optional Redis-backed read-through cache in
// front of the status store, coalescing concurrent reads with singleflight.
// It adapts the teacher's internal/usecase.cachedVideoService decorator —
// cache-aside reads, singleflight-coalesced fetches, and an explicit
// invalidation hook called on write — to a record store instead of a video
// service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/streamcast/internal/metrics"
	"github.com/hszk-dev/streamcast/internal/model"
	"github.com/hszk-dev/streamcast/internal/statusstore"
)

const keyPrefix = "status:"

// Delegate is the subset of statusstore.Store the cache reads through to.
type Delegate interface {
	Get(videoID string) (*model.Record, error)
}

// CachedStore wraps a status store with an optional Redis read cache. When
// no Redis client is configured it is a transparent pass-through — callers
// don't need to branch on whether caching is enabled.
type CachedStore struct {
	delegate Delegate
	redis    *redis.Client
	ttl      time.Duration
	sf       singleflight.Group
	log      *slog.Logger
}

// New creates a CachedStore. Pass a nil redisClient to disable caching
// entirely; Get then delegates directly with no singleflight coalescing
// overhead.
func New(delegate Delegate, redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{delegate: delegate, redis: redisClient, ttl: ttl, log: logger}
}

// Get returns the record for videoID, preferring a cached copy when caching
// is enabled.
func (c *CachedStore) Get(ctx context.Context, videoID string) (*model.Record, error) {
	if c.redis == nil {
		return c.delegate.Get(videoID)
	}

	result, err, shared := c.sf.Do(videoID, func() (any, error) {
		return c.getWithCache(ctx, videoID)
	})
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}
	if err != nil {
		return nil, err
	}
	return result.(*model.Record), nil
}

func (c *CachedStore) getWithCache(ctx context.Context, videoID string) (*model.Record, error) {
	if rec, err := c.readRedis(ctx, videoID); err != nil {
		c.log.Warn("status cache read failed, falling back to status store", slog.String("video_id", videoID), slog.String("error", err.Error()))
	} else if rec != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.StatusHit).Inc()
		return rec, nil
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.StatusMiss).Inc()

	rec, err := c.delegate.Get(videoID)
	if err != nil {
		return nil, err
	}

	if err := c.writeRedis(ctx, videoID, rec); err != nil {
		c.log.Warn("failed to populate status cache", slog.String("video_id", videoID), slog.String("error", err.Error()))
	}
	return rec, nil
}

// Invalidate drops videoID's cached entry, if any. The pipeline calls this
// on every terminal transition so a subsequent read observes the fresh
// record rather than a stale in-flight snapshot.
func (c *CachedStore) Invalidate(ctx context.Context, videoID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, keyPrefix+videoID).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpInvalidate, metrics.StatusError).Inc()
		c.log.Warn("failed to invalidate status cache entry", slog.String("video_id", videoID), slog.String("error", err.Error()))
		return
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpInvalidate, metrics.StatusSuccess).Inc()
}

func (c *CachedStore) readRedis(ctx context.Context, videoID string) (*model.Record, error) {
	data, err := c.redis.Get(ctx, keyPrefix+videoID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("deserialize cached record: %w", err)
	}
	return &rec, nil
}

func (c *CachedStore) writeRedis(ctx context.Context, videoID string, rec *model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize record: %w", err)
	}
	if err := c.redis.Set(ctx, keyPrefix+videoID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.StatusSuccess).Inc()
	return nil
}
