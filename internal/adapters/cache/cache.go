// Package cache memoizes computed metrics in an external key-value store.
//
// Entries are keyed by scope, entity, accumulator tail, query window and the
// entity's store fingerprint. Any admitted event changes the fingerprint, so stale entries
// are never read back; they simply expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/shiftmetrics/internal/adapters/repository"
	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/logger"
	"github.com/okian/shiftmetrics/pkg/metrics"
)

const (
	keyPrefix  = "shiftmetrics"
	defaultTTL = 5 * time.Minute
)

// MetricsCache reads and writes metric snapshots through a KVStore.
type MetricsCache struct {
	kv     KVStore
	ttl    time.Duration
	logger logger.Logger
}

// Option configures a MetricsCache.
type Option func(*MetricsCache)

// WithTTL sets how long entries live. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *MetricsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l logger.Logger) Option {
	return func(c *MetricsCache) {
		c.logger = l
	}
}

// New creates a MetricsCache over kv.
func New(kv KVStore, opts ...Option) *MetricsCache {
	c := &MetricsCache{
		kv:     kv,
		ttl:    defaultTTL,
		logger: logger.Get().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the cache key for one snapshot. tail is the accumulator tail the
// snapshot was computed with, so processes configured differently never share
// entries.
func Key(scope repository.Scope, id string, tail time.Duration, w model.Window, fp repository.Fingerprint) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s:%d:%d",
		keyPrefix, scope, id, tail,
		boundString(w.From), boundString(w.To),
		fp.Count, fp.LastReceivedAt.UnixNano())
}

func boundString(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

// Get decodes the snapshot stored under key into dst. It reports false on a
// miss; backend and decode failures are logged and also treated as misses.
func (c *MetricsCache) Get(ctx context.Context, scope repository.Scope, key string, dst any) bool {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn(ctx, "cache read failed", logger.String("key", key), logger.Error(err))
		}
		metrics.RecordCacheLookup(string(scope), "miss")
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.logger.Warn(ctx, "cache entry undecodable", logger.String("key", key), logger.Error(err))
		metrics.RecordCacheLookup(string(scope), "miss")
		return false
	}
	metrics.RecordCacheLookup(string(scope), "hit")
	return true
}

// Put stores v under key. Failures are logged, never returned.
func (c *MetricsCache) Put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn(ctx, "cache entry unencodable", logger.String("key", key), logger.Error(err))
		return
	}
	if err := c.kv.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.logger.Warn(ctx, "cache write failed", logger.String("key", key), logger.Error(err))
	}
}
