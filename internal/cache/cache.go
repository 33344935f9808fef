// Package cache is the layered result cache in front of the search engine.
// A broken cache backend must never fail a caller: reads degrade to misses,
// writes and invalidations become logged no-ops.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/db"
)

// tagTTLSlack keeps a tag's member set alive at least as long as any key it
// references, so invalidation can always find the full member list.
const tagTTLSlack = 5 * time.Minute

// store is the consumer interface for the cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMulti(ctx context.Context, items []db.KVItem) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Entry is one preloaded key for WarmUp.
type Entry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Service is a TTL key-value cache with tag-based bulk invalidation.
type Service struct {
	store      store
	prefix     string
	cacheTotal *prometheus.CounterVec
	warmupFail prometheus.Counter
	logger     *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache service.
// cacheTotal is a counter vec with label "result" ("hit"/"miss");
// warmupFail counts warm-up batches that could not be loaded. Both may be nil.
func New(
	s store,
	prefix string,
	cacheTotal *prometheus.CounterVec,
	warmupFail prometheus.Counter,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:      s,
		prefix:     prefix,
		cacheTotal: cacheTotal,
		warmupFail: warmupFail,
		logger:     logger,
	}
}

// Get returns the cached value, or (nil, false) on miss or backend failure.
func (c *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		c.miss()
		return nil, false
	}
	c.hit()
	return data, true
}

// Set stores a value with a TTL. Backend failures are logged, not returned.
func (c *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.store.SetWithTTL(ctx, c.prefix+key, value, ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes a key. Backend failures are logged, not returned.
func (c *Service) Delete(ctx context.Context, key string) {
	if err := c.store.Del(ctx, c.prefix+key); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// SetTagged stores a value and records its key under each tag's member set.
// Tag sets expire later than their members (tagTTLSlack), never earlier.
func (c *Service) SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) {
	full := c.prefix + key
	if err := c.store.SetWithTTL(ctx, full, value, ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	for _, tag := range tags {
		tk := c.tagKey(tag)
		if err := c.store.SAdd(ctx, tk, full); err != nil {
			c.logger.Warn("cache tag add failed", zap.String("tag", tag), zap.Error(err))
			continue
		}
		if err := c.store.Expire(ctx, tk, ttl+tagTTLSlack); err != nil {
			c.logger.Warn("cache tag expire failed", zap.String("tag", tag), zap.Error(err))
		}
	}
}

// InvalidateTag deletes every key recorded under the tag plus the tag set.
func (c *Service) InvalidateTag(ctx context.Context, tag string) {
	tk := c.tagKey(tag)
	members, err := c.store.SMembers(ctx, tk)
	if err != nil {
		c.logger.Warn("cache tag lookup failed", zap.String("tag", tag), zap.Error(err))
		return
	}
	if err := c.store.Del(ctx, append(members, tk)...); err != nil {
		c.logger.Warn("cache tag invalidation failed", zap.String("tag", tag), zap.Error(err))
	}
}

// ClearWorkspace deletes every cached key containing the workspace id.
// Called after every mutating index operation so a write is immediately
// visible to subsequent searches.
func (c *Service) ClearWorkspace(ctx context.Context, workspaceID string) {
	if workspaceID == "" {
		return
	}
	keys, err := c.store.Scan(ctx, c.prefix+"*"+workspaceID+"*")
	if err != nil {
		c.logger.Warn("cache workspace scan failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		return
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		c.logger.Warn("cache workspace clear failed", zap.String("workspace_id", workspaceID), zap.Error(err))
	}
}

// WarmUp bulk-preloads keys at startup. Not required for correctness:
// failures are counted and logged, never surfaced.
func (c *Service) WarmUp(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	items := make([]db.KVItem, len(entries))
	for i, e := range entries {
		items[i] = db.KVItem{Key: c.prefix + e.Key, Value: e.Value, TTL: e.TTL}
	}
	if err := c.store.SetMulti(ctx, items); err != nil {
		if c.warmupFail != nil {
			c.warmupFail.Inc()
		}
		c.logger.Warn("cache warm-up failed", zap.Int("entries", len(entries)), zap.Error(err))
	}
}

// Hits returns the hit count since process start.
func (c *Service) Hits() int64 { return c.hits.Load() }

// Misses returns the miss count since process start.
func (c *Service) Misses() int64 { return c.misses.Load() }

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *Service) HitRate() float64 {
	h, m := c.hits.Load(), c.misses.Load()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

func (c *Service) hit() {
	c.hits.Add(1)
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("hit").Inc()
	}
}

func (c *Service) miss() {
	c.misses.Add(1)
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("miss").Inc()
	}
}

func (c *Service) tagKey(tag string) string {
	return c.prefix + "tag:" + tag
}
