// Package tokencount estimates token usage for LLM API calls.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken, so tpm quota
// accounting tracks what providers actually bill. Models outside the
// OpenAI family map onto the closest known encoding.
package tokencount

import (
	"strings"
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting with cached encodings.
type Counter struct {
	mu            sync.RWMutex
	encodingCache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName maps pool model ids onto tiktoken-known names.
// OpenRouter ids carry provider prefixes and a :free suffix.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")

	switch {
	case strings.Contains(model, "gpt-4"):
		return "gpt-4"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// Llama, Qwen, DeepSeek and friends tokenize close enough to
		// cl100k_base for quota purposes.
		return "gpt-4"
	}
}

// CountTokens counts tokens in text for a model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// EstimateUsage returns prompt+completion tokens for one chat call,
// falling back to a chars/4 estimate when the encoder is unavailable.
// The small per-message framing overhead is ignored; tpm accounting
// does not need to be exact to the token.
func (c *Counter) EstimateUsage(prompt, completion, model string) int {
	p, err := c.CountTokens(prompt, model)
	if err != nil {
		p = len(prompt) / 4
	}
	q, err := c.CountTokens(completion, model)
	if err != nil {
		q = len(completion) / 4
	}
	return p + q
}
