// Package ai routes chat completions across a ranked pool of LLM
// providers with per-model quotas and a fixed fallback chain.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// CallError is the structured outcome of one failed provider call. The
// router matches on Transient to decide whether the chain continues.
type CallError struct {
	Provider string
	Model    string
	Status   int
	Err      error
}

func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s/%s: status %d: %v", e.Provider, e.Model, e.Status, e.Err)
	}
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Transient reports whether the next chain model should be tried:
// network errors, timeouts, 429 and 5xx. Any other 4xx is a malformed
// request and aborts the chain.
func (e *CallError) Transient() bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	if e.Status >= 500 {
		return true
	}
	if e.Status >= 400 {
		return false
	}
	return true
}

// Provider is one OpenAI-compatible chat-completions endpoint.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	headers map[string]string
	hc      *http.Client
}

// NewProvider builds a provider adapter. timeout bounds a single call;
// the router passes its per-call deadline through the context as well.
func NewProvider(name, baseURL, apiKey string, headers map[string]string, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("LLM %s %s", r.Method, r.URL.Host)
		}),
	)
	return &Provider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		headers: headers,
		hc:      &http.Client{Timeout: timeout, Transport: transport},
	}
}

// Name returns the provider id used in the model pool.
func (p *Provider) Name() string { return p.name }

// Configured reports whether a credential is present. Unconfigured
// providers are filtered out of the chain instead of erroring.
func (p *Provider) Configured() bool { return p.apiKey != "" }

type chatRequest struct {
	Model       string               `json:"model"`
	Temperature float64              `json:"temperature"`
	Messages    []domain.ChatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat performs exactly one chat-completion attempt. Retrying is the
// router's job; this method never loops.
func (p *Provider) Chat(ctx context.Context, model string, msgs []domain.ChatMessage, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{Model: model, Temperature: temperature, Messages: msgs})
	if err != nil {
		return "", &CallError{Provider: p.name, Model: model, Status: http.StatusBadRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &CallError{Provider: p.name, Model: model, Status: http.StatusBadRequest, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.hc.Do(req)
	observability.AIRequestsTotal.WithLabelValues(p.name, "chat").Inc()
	observability.AIRequestDuration.WithLabelValues(p.name, "chat").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RecordAPIUsage(p.name, "chat", false)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return "", &CallError{Provider: p.name, Model: model, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		observability.RecordAPIUsage(p.name, "chat", false)
		return "", &CallError{Provider: p.name, Model: model, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		observability.RecordAPIUsage(p.name, "chat", false)
		slog.Warn("ai provider rate limited",
			slog.String("provider", p.name),
			slog.String("model", model),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
		return "", &CallError{Provider: p.name, Model: model, Status: resp.StatusCode, Err: domain.ErrUpstreamRateLimit}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.RecordAPIUsage(p.name, "chat", false)
		snippet := string(raw)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		slog.Warn("ai provider non-2xx",
			slog.String("provider", p.name),
			slog.String("model", model),
			slog.Int("status", resp.StatusCode),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return "", &CallError{Provider: p.name, Model: model, Status: resp.StatusCode, Err: fmt.Errorf("chat status %d", resp.StatusCode)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		observability.RecordAPIUsage(p.name, "chat", false)
		return "", &CallError{Provider: p.name, Model: model, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(out.Choices) == 0 {
		observability.RecordAPIUsage(p.name, "chat", false)
		// Some gateways return 200 with an empty choice list under
		// load; treat it like a 5xx so the chain moves on.
		return "", &CallError{Provider: p.name, Model: model, Status: http.StatusBadGateway, Err: errors.New("empty choices")}
	}
	if out.Model != "" && out.Model != model {
		slog.Warn("model substitution detected",
			slog.String("provider", p.name),
			slog.String("requested_model", model),
			slog.String("actual_model", out.Model))
	}

	observability.RecordAPIUsage(p.name, "chat", true)
	return out.Choices[0].Message.Content, nil
}

// BuildProviders constructs every provider with a configured
// credential, keyed by pool provider id. The client timeout is the
// long-task budget; the router narrows it per call through the context.
func BuildProviders(cfg config.Config) map[string]*Provider {
	clientCap := cfg.LLMLongTimeout
	if clientCap < cfg.LLMChatTimeout {
		clientCap = cfg.LLMChatTimeout
	}
	out := make(map[string]*Provider)
	if cfg.OpenRouterEnabled() {
		headers := map[string]string{}
		if cfg.OpenRouterReferer != "" {
			headers["HTTP-Referer"] = cfg.OpenRouterReferer
		}
		if cfg.OpenRouterTitle != "" {
			headers["X-Title"] = cfg.OpenRouterTitle
		}
		out["openrouter"] = NewProvider("openrouter", cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, headers, clientCap)
	}
	if cfg.GroqEnabled() {
		out["groq"] = NewProvider("groq", cfg.GroqBaseURL, cfg.GroqAPIKey, nil, clientCap)
	}
	if cfg.OpenAIEnabled() {
		out["openai"] = NewProvider("openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, nil, clientCap)
	}
	return out
}
