package ingress

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupKeyPrefix namespaces dedup keys in Redis, grounded on
// wisbric-nightowl's pkg/alert.Deduplicator redisKeyPrefix convention.
const dedupKeyPrefix = "ingress:dedup:"

// Deduplicator answers whether a (platform, platform_message_id) pair has
// been seen within the configured TTL, Redis-first with an in-process
// LRU+TTL fallback when Redis is unset — grounded on wisbric-nightowl's
// pkg/alert.Deduplicator Redis-first/fallback shape, generalized since this
// cache has no backing database row to fall back to.
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration

	local *lruTTLCache
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration, maxEntries int) *Deduplicator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Deduplicator{rdb: rdb, ttl: ttl, local: newLRUTTLCache(maxEntries)}
}

func dedupKey(platform, platformMessageID string) string {
	return dedupKeyPrefix + platform + ":" + platformMessageID
}

// SeenBefore records the key as seen and reports whether it had already
// been recorded within the TTL window — an atomic check-and-set, not a
// separate Check/Record pair, so two concurrent deliveries of the same
// message can't both observe "not seen".
func (d *Deduplicator) SeenBefore(ctx context.Context, platform, platformMessageID string) (bool, error) {
	key := dedupKey(platform, platformMessageID)

	if d.rdb != nil {
		ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
		if err == nil {
			return !ok, nil
		}
		// Redis error: fall through to the in-process cache rather than
		// fail the request outright.
	}

	return d.local.seenBefore(key, d.ttl), nil
}

// lruTTLCache is a bounded, TTL-expiring set used as the in-process dedup
// fallback and as the sole cache when Redis is not configured.
type lruTTLCache struct {
	mu       sync.Mutex
	max      int
	order    *list.List
	elements map[string]*list.Element
}

type lruEntry struct {
	key       string
	expiresAt time.Time
}

func newLRUTTLCache(max int) *lruTTLCache {
	if max <= 0 {
		max = 100_000
	}
	return &lruTTLCache{max: max, order: list.New(), elements: make(map[string]*list.Element)}
}

func (c *lruTTLCache) seenBefore(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.elements[key]; ok {
		entry := el.Value.(*lruEntry)
		if entry.expiresAt.After(now) {
			c.order.MoveToFront(el)
			return true
		}
		// Expired: treat as unseen, refresh below.
		c.order.Remove(el)
		delete(c.elements, key)
	}

	c.elements[key] = c.order.PushFront(&lruEntry{key: key, expiresAt: now.Add(ttl)})
	for c.order.Len() > c.max {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.elements, back.Value.(*lruEntry).key)
	}
	return false
}
