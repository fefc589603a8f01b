package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocklist_LoadReplacesContentsFromJSON5(t *testing.T) {
	b := NewBlocklist()
	b.Add("stale-key")

	err := b.Load([]byte(`[
		"1.2.3.4:u1", // trailing comment allowed by json5
		"5.6.7.8:u2",
	]`))
	require.NoError(t, err)

	assert.False(t, b.Contains("stale-key"), "Load replaces the set rather than merging")
	assert.True(t, b.Contains("1.2.3.4:u1"))
	assert.True(t, b.Contains("5.6.7.8:u2"))
}

func TestBlocklist_AddIsImmediatelyVisible(t *testing.T) {
	b := NewBlocklist()
	assert.False(t, b.Contains("k"))
	b.Add("k")
	assert.True(t, b.Contains("k"))
}
