package observability

import (
	"sort"
	"sync"
	"time"
)

// ProviderUsage is one row of the external API usage report.
type ProviderUsage struct {
	Provider  string    `json:"provider"`
	Operation string    `json:"operation"`
	Calls     int64     `json:"calls"`
	Failures  int64     `json:"failures"`
	LastCall  time.Time `json:"last_call"`
}

type usageKey struct {
	provider  string
	operation string
}

type usageEntry struct {
	calls    int64
	failures int64
	lastCall time.Time
}

// usageTracker tallies outbound API calls per provider and operation.
// It backs the observability API and resets only on process restart;
// long-term series live in Prometheus.
type usageTracker struct {
	mu      sync.Mutex
	entries map[usageKey]*usageEntry
	now     func() time.Time
}

var usage = &usageTracker{
	entries: make(map[usageKey]*usageEntry),
	now:     time.Now,
}

// RecordAPIUsage counts one outbound call to an external provider.
func RecordAPIUsage(provider, operation string, ok bool) {
	usage.record(provider, operation, ok)
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
}

func (t *usageTracker) record(provider, operation string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := usageKey{provider: provider, operation: operation}
	e := t.entries[k]
	if e == nil {
		e = &usageEntry{}
		t.entries[k] = e
	}
	e.calls++
	if !ok {
		e.failures++
	}
	e.lastCall = t.now()
}

// UsageSnapshot returns the tally since process start, sorted by
// provider then operation for stable output.
func UsageSnapshot() []ProviderUsage {
	usage.mu.Lock()
	defer usage.mu.Unlock()
	out := make([]ProviderUsage, 0, len(usage.entries))
	for k, e := range usage.entries {
		out = append(out, ProviderUsage{
			Provider:  k.provider,
			Operation: k.operation,
			Calls:     e.calls,
			Failures:  e.failures,
			LastCall:  e.lastCall,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Operation < out[j].Operation
	})
	return out
}

// ResetUsage clears the tally. Tests only.
func ResetUsage() {
	usage.mu.Lock()
	defer usage.mu.Unlock()
	usage.entries = make(map[usageKey]*usageEntry)
}
