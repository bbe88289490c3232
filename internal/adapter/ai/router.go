package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// ChatCaller is the single-attempt provider contract the router drives.
type ChatCaller interface {
	Name() string
	Configured() bool
	Chat(ctx context.Context, model string, msgs []domain.ChatMessage, temperature float64) (string, error)
}

// PreferredModelSource resolves a user's preferred model; the zero
// string means "follow the chain". The router consults it per call so
// settings changes apply immediately.
type PreferredModelSource interface {
	PreferredModel(ctx domain.Context, userID string) string
}

// Router implements domain.LLMClient over a ranked model pool. For a
// turn it resolves the chain, filters unconfigured providers and
// exhausted daily quotas, then walks the chain one attempt per model.
// Transient failures advance the chain; a malformed-request 4xx aborts
// immediately; running out of models is reported as quota exhaustion.
type Router struct {
	pool      config.ModelPool
	providers map[string]ChatCaller
	ledger    domain.QuotaLedger
	prefs     PreferredModelSource
	counter   *tokencount.Counter
	timeout   func(task string) time.Duration

	mu        sync.RWMutex
	lastModel string
}

// longTasks are task labels that get the long-generation timeout.
var longTasks = map[string]bool{
	"cv_tailor":      true,
	"cover_letter":   true,
	"interview_prep": true,
}

// NewRouter wires the router. prefs may be nil when no per-user
// preference store exists (the worker binary).
func NewRouter(cfg config.Config, pool config.ModelPool, providers map[string]*Provider, ledger domain.QuotaLedger, prefs PreferredModelSource) *Router {
	callers := make(map[string]ChatCaller, len(providers))
	for name, p := range providers {
		callers[name] = p
	}
	return newRouter(cfg, pool, callers, ledger, prefs)
}

func newRouter(cfg config.Config, pool config.ModelPool, providers map[string]ChatCaller, ledger domain.QuotaLedger, prefs PreferredModelSource) *Router {
	chat, long := cfg.LLMChatTimeout, cfg.LLMLongTimeout
	if chat <= 0 {
		chat = 60 * time.Second
	}
	if long <= 0 {
		long = 90 * time.Second
	}
	return &Router{
		pool:      pool,
		providers: providers,
		ledger:    ledger,
		prefs:     prefs,
		counter:   tokencount.NewCounter(),
		timeout: func(task string) time.Duration {
			if longTasks[task] {
				return long
			}
			return chat
		},
	}
}

// Invoke runs one chat completion through the fallback chain. The task
// label is used for logging, timeout class and preferred-model lookup;
// it never reaches the provider.
func (r *Router) Invoke(ctx domain.Context, task string, msgs []domain.ChatMessage, temperature float64) (string, error) {
	chain := r.resolveChain(ctx)
	if len(chain) == 0 {
		return "", fmt.Errorf("op=ai.invoke task=%s: no models in pool: %w", task, domain.ErrProviderDisabled)
	}

	var lastErr error
	tried := 0
	for _, spec := range chain {
		provider, ok := r.providers[spec.Provider]
		if !ok || !provider.Configured() {
			continue
		}
		if r.dailyExhausted(ctx, spec) {
			slog.Debug("model skipped, daily quota exhausted",
				slog.String("task", task),
				slog.String("model", spec.Model))
			continue
		}
		tried++

		callCtx, cancel := context.WithTimeout(ctx, r.timeout(task))
		start := time.Now()
		text, err := provider.Chat(callCtx, spec.Model, msgs, temperature)
		cancel()

		if err == nil {
			r.recordSuccess(ctx, spec, msgs, text)
			slog.Info("llm call succeeded",
				slog.String("task", task),
				slog.String("provider", spec.Provider),
				slog.String("model", spec.Model),
				slog.Duration("took", time.Since(start)))
			return text, nil
		}

		lastErr = err
		var ce *CallError
		if errors.As(err, &ce) && !ce.Transient() {
			slog.Error("llm call aborted, non-transient failure",
				slog.String("task", task),
				slog.String("provider", spec.Provider),
				slog.String("model", spec.Model),
				slog.Int("status", ce.Status),
				slog.Any("error", err))
			return "", fmt.Errorf("op=ai.invoke task=%s: %w", task, err)
		}
		if ctx.Err() != nil {
			// The turn itself was cancelled; do not burn the rest of
			// the chain on a dead request.
			return "", fmt.Errorf("op=ai.invoke task=%s: %w", task, ctx.Err())
		}
		slog.Warn("llm call failed, trying next model",
			slog.String("task", task),
			slog.String("provider", spec.Provider),
			slog.String("model", spec.Model),
			slog.Any("error", err))
	}

	if tried == 0 {
		return "", fmt.Errorf("op=ai.invoke task=%s: no configured model available: %w", task, domain.ErrProviderDisabled)
	}
	if lastErr != nil {
		return "", fmt.Errorf("op=ai.invoke task=%s: all %d models exhausted: %v: %w", task, tried, lastErr, domain.ErrQuotaExceeded)
	}
	return "", fmt.Errorf("op=ai.invoke task=%s: all models exhausted: %w", task, domain.ErrQuotaExceeded)
}

// LastModel reports the model of the most recent successful call, for
// the execution log.
func (r *Router) LastModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastModel
}

// resolveChain orders the pool for this call: the user's preferred
// model first, then the declared fallback chain, duplicates removed.
func (r *Router) resolveChain(ctx domain.Context) []domain.ModelSpec {
	var names []string
	if r.prefs != nil {
		if userID := domain.UserIDFromContext(ctx); userID != "" {
			if preferred := r.prefs.PreferredModel(ctx, userID); preferred != "" {
				if resolved, err := r.pool.ResolveModel(preferred); err == nil {
					names = append(names, resolved)
				}
			}
		}
	}
	names = append(names, r.pool.FallbackChain...)
	if len(names) == 0 {
		for _, m := range r.pool.Models {
			names = append(names, m.Model)
		}
	}

	seen := make(map[string]bool, len(names))
	chain := make([]domain.ModelSpec, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if spec, ok := r.pool.Spec(name); ok {
			chain = append(chain, spec)
		}
	}
	return chain
}

func (r *Router) dailyExhausted(ctx domain.Context, spec domain.ModelSpec) bool {
	if spec.RPD <= 0 || r.ledger == nil {
		return false
	}
	st, err := r.ledger.Status(ctx, domain.QuotaKey{Provider: spec.Provider, Model: spec.Model, Period: domain.QuotaRPD})
	if err != nil {
		return false
	}
	return st.Limit > 0 && st.Used >= st.Limit
}

func (r *Router) recordSuccess(ctx domain.Context, spec domain.ModelSpec, msgs []domain.ChatMessage, completion string) {
	r.mu.Lock()
	r.lastModel = spec.Model
	r.mu.Unlock()

	if r.ledger == nil {
		return
	}
	if err := r.ledger.Increment(ctx, domain.QuotaKey{Provider: spec.Provider, Model: spec.Model, Period: domain.QuotaRPD}, 1); err != nil {
		slog.Warn("quota increment failed", slog.String("model", spec.Model), slog.Any("error", err))
	}
	_ = r.ledger.Increment(ctx, domain.QuotaKey{Provider: spec.Provider, Model: spec.Model, Period: domain.QuotaRPM}, 1)

	var prompt strings.Builder
	for _, m := range msgs {
		prompt.WriteString(m.Content)
		prompt.WriteByte('\n')
	}
	tokens := r.counter.EstimateUsage(prompt.String(), completion, spec.Model)
	if tokens > 0 {
		_ = r.ledger.Increment(ctx, domain.QuotaKey{Provider: spec.Provider, Model: spec.Model, Period: domain.QuotaTPM}, int64(tokens))
		observability.AITokensTotal.WithLabelValues(spec.Provider, spec.Model).Add(float64(tokens))
	}
}
