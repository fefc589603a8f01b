package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, float32(0), cosineSimilarity(nil, nil))
}

func TestNoopEmbedder_AlwaysFails(t *testing.T) {
	e := NoopEmbedder{Dim: 1536}
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 1536, e.Dimension())
}

func TestEmbedOnWriteAllowList(t *testing.T) {
	assert.True(t, embedOnWrite[KindConversationTurn])
	assert.True(t, embedOnWrite[KindSummary])
	assert.True(t, embedOnWrite[KindFact])
	assert.False(t, embedOnWrite[KindRaidEvent])
}

func TestStore_PlaceholderStyle(t *testing.T) {
	pg := &Store{backend: BackendPostgres}
	assert.Equal(t, "$1", pg.ph(1))
	assert.Equal(t, "$3", pg.ph(3))

	lite := &Store{backend: BackendSQLite}
	assert.Equal(t, "?", lite.ph(1))
	assert.Equal(t, "?", lite.ph(3))
}
