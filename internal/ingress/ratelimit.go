package ingress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// maxTrackedKeys bounds in-process limiter state the same way goclaw's
// WebhookRateLimiter bounds its tracked-key map: rotating keys must not be
// able to exhaust memory.
const maxTrackedKeys = 4096

// RateLimiter decides whether a (source_ip, user_id) key may proceed, and
// reports how many rate-limit events that key has accrued in the last
// hour so the caller can promote it to the blocklist at the configured
// threshold.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, eventsInLastHour int, err error)
}

// InProcessRateLimiter is a map of token buckets, one per key, all guarded
// by a single mutex (the map is not striped or sharded), grounded on goclaw's internal/channels.WebhookRateLimiter bounded
// sliding-window map with hard eviction at a tracked-key cap.
type InProcessRateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*rate.Limiter
	lastSeen    map[string]time.Time
	violations  map[string][]time.Time
	perMinute   int
}

func NewInProcessRateLimiter(perMinute int) *InProcessRateLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	return &InProcessRateLimiter{
		buckets:    make(map[string]*rate.Limiter),
		lastSeen:   make(map[string]time.Time),
		violations: make(map[string][]time.Time),
		perMinute:  perMinute,
	}
}

func (r *InProcessRateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.evictLocked(now)

	b, ok := r.buckets[key]
	if !ok {
		// perMinute tokens per 60s window, burst equal to the full window
		// allowance, matching the default 100-tokens-per-60s-window shape.
		b = rate.NewLimiter(rate.Limit(float64(r.perMinute)/60.0), r.perMinute)
		r.buckets[key] = b
	}
	r.lastSeen[key] = now

	if b.Allow() {
		return true, len(r.recentViolationsLocked(key, now)), nil
	}

	violations := append(r.violations[key], now)
	r.violations[key] = pruneOlderThan(violations, now.Add(-time.Hour))
	return false, len(r.violations[key]), nil
}

func (r *InProcessRateLimiter) recentViolationsLocked(key string, now time.Time) []time.Time {
	v := pruneOlderThan(r.violations[key], now.Add(-time.Hour))
	r.violations[key] = v
	return v
}

func pruneOlderThan(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// evictLocked prunes keys untouched for over an hour, then hard-evicts
// arbitrarily if still at the cap — goclaw's same two-phase approach.
func (r *InProcessRateLimiter) evictLocked(now time.Time) {
	if len(r.buckets) < maxTrackedKeys {
		return
	}
	for k, seen := range r.lastSeen {
		if now.Sub(seen) >= time.Hour {
			delete(r.buckets, k)
			delete(r.lastSeen, k)
			delete(r.violations, k)
		}
	}
	for len(r.buckets) >= maxTrackedKeys {
		for k := range r.buckets {
			delete(r.buckets, k)
			delete(r.lastSeen, k)
			delete(r.violations, k)
			break
		}
	}
}

// RedisRateLimiter shares rate-limit state across replicas and survives
// restarts via Redis INCR+EXPIRE, grounded on wisbric-nightowl's
// internal/auth.RateLimiter.
type RedisRateLimiter struct {
	rdb       *redis.Client
	perMinute int
}

func NewRedisRateLimiter(rdb *redis.Client, perMinute int) *RedisRateLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	return &RedisRateLimiter{rdb: rdb, perMinute: perMinute}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	windowKey := fmt.Sprintf("ingress:ratelimit:%s", key)
	violationsKey := fmt.Sprintf("ingress:ratelimit:violations:%s", key)

	pipe := r.rdb.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, 60*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("ingress: redis rate limit incr: %w", err)
	}

	if incr.Val() <= int64(r.perMinute) {
		return true, 0, nil
	}

	vpipe := r.rdb.Pipeline()
	vincr := vpipe.Incr(ctx, violationsKey)
	vpipe.Expire(ctx, violationsKey, time.Hour)
	if _, err := vpipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("ingress: redis rate limit violation incr: %w", err)
	}
	return false, int(vincr.Val()), nil
}
