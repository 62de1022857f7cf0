/*
cache.go - Redis cache for due lists and status responses

PURPOSE:
  Due lists and status are recomputed from the stores on every engine
  call. The API caches the rendered responses per member in Redis.

KEY SCHEME:
  dues:<epoch>:<member>:<member version>:<parts...>

  The member version is bumped by SettlementChanged (registered with the
  engine) and by profile writes. The epoch is bumped by scenario loads and
  resets. Old keys are never deleted; they expire with the TTL.

NIL SAFETY:
  A nil *Cache, or one without a client, calls the loader directly. The
  server runs without Redis when DUES_REDIS_ADDR is empty.

SEE ALSO:
  - dues/store.go: SettlementListener
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/metrics"
)

const (
	cacheEpochKey    = "dues:epoch"
	memberVersionKey = "dues:version:"
	defaultCacheTTL  = 10 * time.Minute
)

// Cache wraps Redis based caching with per-member versioning.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

func (c *Cache) counter(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// BuildKey composes the cache key with the current epoch and member version.
func (c *Cache) BuildKey(ctx context.Context, id dues.MemberID, parts ...string) (string, error) {
	suffix := strings.Join(parts, ":")
	if !c.enabled() {
		return fmt.Sprintf("dues:%s:%s", id, suffix), nil
	}
	epoch, err := c.counter(ctx, cacheEpochKey)
	if err != nil {
		return "", err
	}
	ver, err := c.counter(ctx, memberVersionKey+string(id))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("dues:%d:%s:%d:%s", epoch, id, ver, suffix), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if !c.enabled() {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate drops every cached response of a member.
func (c *Cache) Invalidate(ctx context.Context, id dues.MemberID) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, memberVersionKey+string(id)).Err()
}

// InvalidateAll drops every cached response.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, cacheEpochKey).Err()
}

// SettlementChanged implements dues.SettlementListener.
func (c *Cache) SettlementChanged(ctx context.Context, id dues.MemberID) {
	if err := c.Invalidate(ctx, id); err != nil {
		c.logger.Warn("cache invalidation failed",
			zap.String("member_id", string(id)),
			zap.Error(err),
		)
	}
}
