package ingress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessRateLimiter_AllowsUpToBurstThenRejects(t *testing.T) {
	rl := NewInProcessRateLimiter(5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, _, err := rl.Allow(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, allowed, "call %d should be within burst", i)
	}

	allowed, violations, err := rl.Allow(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 1, violations)
}

func TestInProcessRateLimiter_TracksKeysIndependently(t *testing.T) {
	rl := NewInProcessRateLimiter(1)
	ctx := context.Background()

	allowed1, _, _ := rl.Allow(ctx, "a")
	allowed2, _, _ := rl.Allow(ctx, "b")
	assert.True(t, allowed1)
	assert.True(t, allowed2)
}
