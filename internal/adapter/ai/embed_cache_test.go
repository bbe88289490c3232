package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

type countingEmbedder struct {
	calls int
	texts []string
}

func (c *countingEmbedder) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestEmbedCache_HitsSkipBase(t *testing.T) {
	t.Parallel()
	base := &countingEmbedder{}
	c := NewEmbedCache(base, 16)

	first, err := c.Embed(context.Background(), []string{"go developer", "berlin"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, base.calls)

	second, err := c.Embed(context.Background(), []string{"go developer", "berlin"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, base.calls, "cached texts must not reach the base embedder")
}

func TestEmbedCache_PartialMissFetchesOnlyMisses(t *testing.T) {
	t.Parallel()
	base := &countingEmbedder{}
	c := NewEmbedCache(base, 16)

	_, err := c.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)

	out, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2, base.calls)
	assert.Equal(t, []string{"alpha", "beta"}, base.texts, "only beta on the second call")
	assert.Equal(t, []float32{5}, out[0])
	assert.Equal(t, []float32{4}, out[1])
}

func TestEmbedCache_EvictsOldest(t *testing.T) {
	t.Parallel()
	base := &countingEmbedder{}
	c := NewEmbedCache(base, 2)

	_, err := c.Embed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"three"})
	require.NoError(t, err)
	// "one" is evicted; re-requesting it costs a base call.
	_, err = c.Embed(context.Background(), []string{"one"})
	require.NoError(t, err)
	assert.Equal(t, 3, base.calls)
	// "three" is still resident.
	_, err = c.Embed(context.Background(), []string{"three"})
	require.NoError(t, err)
	assert.Equal(t, 3, base.calls)
}

func TestNewEmbedCache_ZeroCapacityPassesThrough(t *testing.T) {
	t.Parallel()
	base := &countingEmbedder{}
	assert.Equal(t, domain.Embedder(base), NewEmbedCache(base, 0))
}
