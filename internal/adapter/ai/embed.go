package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Embedder calls the OpenAI embeddings endpoint. Unlike chat, embedding
// calls have no fallback chain, so transient failures are retried here
// with exponential backoff.
type Embedder struct {
	cfg config.Config
	hc  *http.Client
}

// NewEmbedder builds the embeddings client.
func NewEmbedder(cfg config.Config) *Embedder {
	return &Embedder{cfg: cfg, hc: &http.Client{Timeout: 30 * time.Second}}
}

// Configured reports whether embedding calls can be made.
func (e *Embedder) Configured() bool {
	return e.cfg.OpenAIAPIKey != "" && e.cfg.EmbeddingsModel != ""
}

// Embed returns one vector per input text.
func (e *Embedder) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if !e.Configured() {
		return nil, fmt.Errorf("op=ai.embed: OPENAI_API_KEY or EMBEDDINGS_MODEL missing: %w", domain.ErrProviderDisabled)
	}
	body, _ := json.Marshal(map[string]any{
		"model": e.cfg.EmbeddingsModel,
		"input": texts,
	})

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	op := func() error {
		start := time.Now()
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.OpenAIBaseURL+"/embeddings", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+e.cfg.OpenAIAPIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.hc.Do(req)
		observability.AIRequestsTotal.WithLabelValues("openai", "embed").Inc()
		observability.AIRequestDuration.WithLabelValues("openai", "embed").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("embeddings rate limited", slog.String("provider", "openai"))
			return fmt.Errorf("embed status 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			slog.Warn("embeddings 4xx",
				slog.Int("status", resp.StatusCode),
				slog.String("body", string(raw)))
			return backoff.Permanent(fmt.Errorf("embed status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("embed status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime, expo.InitialInterval, expo.MaxInterval, expo.Multiplier = e.cfg.GetAIBackoffConfig()
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		observability.RecordAPIUsage("openai", "embed", false)
		return nil, fmt.Errorf("op=ai.embed: %w", err)
	}
	if len(out.Data) == 0 {
		observability.RecordAPIUsage("openai", "embed", false)
		return nil, errors.New("op=ai.embed: empty data")
	}

	observability.RecordAPIUsage("openai", "embed", true)
	res := make([][]float32, len(out.Data))
	for i := range out.Data {
		v := make([]float32, len(out.Data[i].Embedding))
		for j := range out.Data[i].Embedding {
			v[j] = float32(out.Data[i].Embedding[j])
		}
		res[i] = v
	}
	return res, nil
}
