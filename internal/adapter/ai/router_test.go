package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/quota"
)

type fakeCaller struct {
	name       string
	configured bool
	// responses maps model id to a scripted outcome.
	responses map[string]fakeOutcome
	calls     []string
}

type fakeOutcome struct {
	text   string
	status int
	err    error
}

func (f *fakeCaller) Name() string     { return f.name }
func (f *fakeCaller) Configured() bool { return f.configured }

func (f *fakeCaller) Chat(_ context.Context, model string, _ []domain.ChatMessage, _ float64) (string, error) {
	f.calls = append(f.calls, model)
	out, ok := f.responses[model]
	if !ok {
		return "", &CallError{Provider: f.name, Model: model, Err: errors.New("unscripted")}
	}
	if out.err != nil || out.status != 0 {
		return "", &CallError{Provider: f.name, Model: model, Status: out.status, Err: out.err}
	}
	return out.text, nil
}

func threeModelPool() config.ModelPool {
	return config.ModelPool{
		Models: []domain.ModelSpec{
			{Provider: "p1", Model: "m1", RPD: 10},
			{Provider: "p1", Model: "m2", RPD: 10},
			{Provider: "p2", Model: "m3", RPD: 10},
		},
		FallbackChain: []string{"m1", "m2", "m3"},
	}
}

func newTestRouter(pool config.ModelPool, callers map[string]ChatCaller, ledger domain.QuotaLedger, prefs PreferredModelSource) *Router {
	cfg := config.Config{LLMChatTimeout: time.Second, LLMLongTimeout: 2 * time.Second}
	return newRouter(cfg, pool, callers, ledger, prefs)
}

func TestRouter_FallbackOnRateLimit(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	ledger := quota.NewLedger(pool.Models, time.UTC)
	p1 := &fakeCaller{name: "p1", configured: true, responses: map[string]fakeOutcome{
		"m1": {status: http.StatusTooManyRequests, err: domain.ErrUpstreamRateLimit},
		"m2": {text: "from m2"},
	}}
	p2 := &fakeCaller{name: "p2", configured: true}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, ledger, nil)

	out, err := r.Invoke(context.Background(), "chat", []domain.ChatMessage{{Role: "user", Content: "hi"}}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "from m2", out)
	assert.Equal(t, []string{"m1", "m2"}, p1.calls)
	assert.Empty(t, p2.calls, "chain stops at the first success")

	// Only the succeeding model's rpd counter moves.
	st, _ := ledger.Status(context.Background(), domain.QuotaKey{Provider: "p1", Model: "m2", Period: domain.QuotaRPD})
	assert.Equal(t, int64(1), st.Used)
	st, _ = ledger.Status(context.Background(), domain.QuotaKey{Provider: "p1", Model: "m1", Period: domain.QuotaRPD})
	assert.Zero(t, st.Used)
}

func TestRouter_NonTransientAbortsChain(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	p1 := &fakeCaller{name: "p1", configured: true, responses: map[string]fakeOutcome{
		"m1": {status: http.StatusBadRequest, err: errors.New("malformed request")},
		"m2": {text: "never reached"},
	}}
	p2 := &fakeCaller{name: "p2", configured: true}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, quota.NewLedger(pool.Models, time.UTC), nil)

	_, err := r.Invoke(context.Background(), "chat", nil, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, []string{"m1"}, p1.calls)
	assert.Empty(t, p2.calls)
}

func TestRouter_AllModelsExhaustedIsQuotaExceeded(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	p1 := &fakeCaller{name: "p1", configured: true, responses: map[string]fakeOutcome{
		"m1": {status: http.StatusInternalServerError, err: errors.New("boom")},
		"m2": {status: http.StatusBadGateway, err: errors.New("boom")},
	}}
	p2 := &fakeCaller{name: "p2", configured: true, responses: map[string]fakeOutcome{
		"m3": {status: http.StatusServiceUnavailable, err: errors.New("boom")},
	}}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, quota.NewLedger(pool.Models, time.UTC), nil)

	_, err := r.Invoke(context.Background(), "chat", nil, 0)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, []string{"m1", "m2"}, p1.calls)
	assert.Equal(t, []string{"m3"}, p2.calls)
}

func TestRouter_SkipsUnconfiguredProviders(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	p1 := &fakeCaller{name: "p1", configured: false}
	p2 := &fakeCaller{name: "p2", configured: true, responses: map[string]fakeOutcome{
		"m3": {text: "only configured"},
	}}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, quota.NewLedger(pool.Models, time.UTC), nil)

	out, err := r.Invoke(context.Background(), "chat", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "only configured", out)
	assert.Empty(t, p1.calls)
}

func TestRouter_SkipsDailyExhaustedModels(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	ledger := quota.NewLedger(pool.Models, time.UTC)
	// Burn m1's whole daily budget.
	require.NoError(t, ledger.Increment(context.Background(),
		domain.QuotaKey{Provider: "p1", Model: "m1", Period: domain.QuotaRPD}, 10))

	p1 := &fakeCaller{name: "p1", configured: true, responses: map[string]fakeOutcome{
		"m2": {text: "from m2"},
	}}
	p2 := &fakeCaller{name: "p2", configured: true}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, ledger, nil)

	out, err := r.Invoke(context.Background(), "chat", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "from m2", out)
	assert.Equal(t, []string{"m2"}, p1.calls, "m1 must be filtered before any attempt")
}

func TestRouter_NoConfiguredProviders(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	p1 := &fakeCaller{name: "p1"}
	p2 := &fakeCaller{name: "p2"}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, quota.NewLedger(pool.Models, time.UTC), nil)

	_, err := r.Invoke(context.Background(), "chat", nil, 0)
	require.ErrorIs(t, err, domain.ErrProviderDisabled)
}

type fixedPrefs struct{ model string }

func (f fixedPrefs) PreferredModel(domain.Context, string) string { return f.model }

func TestRouter_PreferredModelLeadsChain(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	p1 := &fakeCaller{name: "p1", configured: true, responses: map[string]fakeOutcome{
		"m2": {text: "preferred"},
	}}
	p2 := &fakeCaller{name: "p2", configured: true}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, quota.NewLedger(pool.Models, time.UTC), fixedPrefs{model: "m2"})

	ctx := domain.ContextWithUserID(context.Background(), "u1")
	out, err := r.Invoke(ctx, "chat", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "preferred", out)
	assert.Equal(t, []string{"m2"}, p1.calls, "preferred model goes first, no duplicate later")
}

func TestRouter_PreferredAutoFollowsChainHead(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	p1 := &fakeCaller{name: "p1", configured: true, responses: map[string]fakeOutcome{
		"m1": {text: "head"},
	}}
	p2 := &fakeCaller{name: "p2", configured: true}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, quota.NewLedger(pool.Models, time.UTC), fixedPrefs{model: "auto"})

	ctx := domain.ContextWithUserID(context.Background(), "u1")
	out, err := r.Invoke(ctx, "chat", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "head", out)
	assert.Equal(t, []string{"m1"}, p1.calls)
}

func TestRouter_DeterministicForSameInput(t *testing.T) {
	t.Parallel()
	pool := threeModelPool()
	p1 := &fakeCaller{name: "p1", configured: true, responses: map[string]fakeOutcome{
		"m1": {text: "stable"},
	}}
	p2 := &fakeCaller{name: "p2", configured: true}
	r := newTestRouter(pool, map[string]ChatCaller{"p1": p1, "p2": p2}, quota.NewLedger(pool.Models, time.UTC), nil)

	msgs := []domain.ChatMessage{{Role: "user", Content: "classify this"}}
	a, err := r.Invoke(context.Background(), "intent", msgs, 0)
	require.NoError(t, err)
	b, err := r.Invoke(context.Background(), "intent", msgs, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
