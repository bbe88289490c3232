package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"gpt-4o-mini", "gpt-4"},
		{"openai/gpt-3.5-turbo", "gpt-3.5-turbo"},
		{"deepseek/deepseek-chat-v3-0324:free", "gpt-4"},
		{"llama-3.3-70b-versatile", "gpt-4"},
		{"qwen/qwen-2.5-72b-instruct:free", "gpt-4"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizeModelName(tc.in), tc.in)
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()
	c := NewCounter()
	n, err := c.CountTokens("hello world", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.Less(t, n, 10)

	empty, err := c.CountTokens("", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestEstimateUsage_SumsPromptAndCompletion(t *testing.T) {
	t.Parallel()
	c := NewCounter()
	p, err := c.CountTokens("tailor this cv", "llama-3.3-70b-versatile")
	require.NoError(t, err)
	q, err := c.CountTokens("done", "llama-3.3-70b-versatile")
	require.NoError(t, err)
	assert.Equal(t, p+q, c.EstimateUsage("tailor this cv", "done", "llama-3.3-70b-versatile"))
}

func TestCounter_CachesEncodings(t *testing.T) {
	t.Parallel()
	c := NewCounter()
	_, err := c.CountTokens("a", "gpt-4o-mini")
	require.NoError(t, err)
	_, err = c.CountTokens("b", "gpt-4")
	require.NoError(t, err)
	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.encodingCache, 1, "both ids normalize to one cached encoding")
}
