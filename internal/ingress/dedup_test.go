package ingress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicator_SecondDeliveryWithinTTLIsSeen(t *testing.T) {
	d := NewDeduplicator(nil, 50*time.Millisecond, 100)
	ctx := context.Background()

	seen, err := d.SeenBefore(ctx, "discord", "msg-1")
	require.NoError(t, err)
	assert.False(t, seen, "first delivery is never a duplicate")

	seen, err = d.SeenBefore(ctx, "discord", "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDeduplicator_ExpiresAfterTTL(t *testing.T) {
	d := NewDeduplicator(nil, 20*time.Millisecond, 100)
	ctx := context.Background()

	_, _ = d.SeenBefore(ctx, "discord", "msg-2")
	time.Sleep(30 * time.Millisecond)

	seen, err := d.SeenBefore(ctx, "discord", "msg-2")
	require.NoError(t, err)
	assert.False(t, seen, "entry should have expired out of the TTL window")
}

func TestDeduplicator_DifferentPlatformsDoNotCollide(t *testing.T) {
	d := NewDeduplicator(nil, time.Minute, 100)
	ctx := context.Background()

	_, _ = d.SeenBefore(ctx, "discord", "same-id")
	seen, err := d.SeenBefore(ctx, "telegram", "same-id")
	require.NoError(t, err)
	assert.False(t, seen, "dedup key is scoped per platform")
}

func TestLRUTTLCache_EvictsOldestWhenOverCapacity(t *testing.T) {
	c := newLRUTTLCache(2)
	c.seenBefore("a", time.Minute)
	c.seenBefore("b", time.Minute)
	c.seenBefore("c", time.Minute) // cache is now at capacity 2: [c, b]; "a" evicted

	assert.True(t, c.seenBefore("c", time.Minute), "c is still tracked")
	assert.False(t, c.seenBefore("a", time.Minute), "a should have been evicted to make room for c")
}
