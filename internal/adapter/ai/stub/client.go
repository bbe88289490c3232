// Package stub provides a deterministic LLM client for tests and
// provider-less development runs.
package stub

import (
	"fmt"
	"sync"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Client returns scripted responses keyed by task label. Responses for
// a task are served in order; the last one repeats. Unknown tasks get
// the Default response. The zero value errors on every call, which is
// handy for exercising fallback paths.
type Client struct {
	mu        sync.Mutex
	responses map[string][]string
	served    map[string]int
	calls     []Call
	Default   string
	Err       error
}

// Call records one Invoke for assertions.
type Call struct {
	Task        string
	Messages    []domain.ChatMessage
	Temperature float64
}

// New builds a stub with per-task scripted responses.
func New(responses map[string][]string) *Client {
	return &Client{responses: responses, served: make(map[string]int)}
}

// Invoke implements domain.LLMClient deterministically.
func (c *Client) Invoke(_ domain.Context, task string, msgs []domain.ChatMessage, temperature float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Task: task, Messages: msgs, Temperature: temperature})
	if c.Err != nil {
		return "", c.Err
	}
	script, ok := c.responses[task]
	if !ok || len(script) == 0 {
		if c.Default != "" {
			return c.Default, nil
		}
		return "", fmt.Errorf("stub: no scripted response for task %q: %w", task, domain.ErrNotFound)
	}
	i := c.served[task]
	if i >= len(script) {
		i = len(script) - 1
	}
	c.served[task]++
	return script[i], nil
}

// Calls returns a copy of every recorded call.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount reports how many times task was invoked.
func (c *Client) CallCount(task string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Task == task {
			n++
		}
	}
	return n
}

// Embedder returns fixed-dimension deterministic vectors derived from
// text length, sufficient for exercising vector plumbing in tests.
type Embedder struct{ Dim int }

// Embed implements domain.Embedder.
func (e Embedder) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = 8
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32((len(t)+i+j)%17) / 17
		}
		out[i] = v
	}
	return out, nil
}
