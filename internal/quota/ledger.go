// Package quota tracks per-model usage counters for the LLM router.
package quota

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

type entry struct {
	used   int64
	window string
}

// Ledger is the in-memory quota store: counters keyed by
// (provider, model, period) with lazy window roll-over plus a scheduled
// sweep of daily counters at midnight of the configured timezone.
// All methods are safe for concurrent use.
type Ledger struct {
	mu     sync.Mutex
	counts map[domain.QuotaKey]*entry
	limits map[domain.QuotaKey]int64
	loc    *time.Location
	cron   *cron.Cron
	now    func() time.Time
}

// NewLedger builds a ledger with limits taken from the model pool.
// Specs with a zero limit for a period register no limit for it.
func NewLedger(specs []domain.ModelSpec, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	limits := make(map[domain.QuotaKey]int64)
	for _, s := range specs {
		for _, p := range []domain.QuotaPeriod{domain.QuotaRPD, domain.QuotaRPM, domain.QuotaTPM} {
			if lim := s.Limit(p); lim > 0 {
				limits[domain.QuotaKey{Provider: s.Provider, Model: s.Model, Period: p}] = lim
			}
		}
	}
	return &Ledger{
		counts: make(map[domain.QuotaKey]*entry),
		limits: limits,
		loc:    loc,
		now:    time.Now,
	}
}

// windowID buckets a timestamp: calendar day (ledger timezone) for rpd,
// UTC minute for rpm and tpm.
func (l *Ledger) windowID(key domain.QuotaKey, t time.Time) string {
	if key.Period == domain.QuotaRPD {
		return t.In(l.loc).Format("20060102")
	}
	return t.UTC().Format("200601021504")
}

// Increment atomically adds n to the counter, rolling the window first
// if it has lapsed.
func (l *Ledger) Increment(_ domain.Context, key domain.QuotaKey, n int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.windowID(key, l.now())
	e := l.counts[key]
	if e == nil || e.window != w {
		e = &entry{window: w}
		l.counts[key] = e
	}
	e.used += n
	return nil
}

// Status returns the counter's current usage against its limit. Unknown
// keys read as zero usage with no limit.
func (l *Ledger) Status(_ domain.Context, key domain.QuotaKey) (domain.QuotaStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(key), nil
}

func (l *Ledger) statusLocked(key domain.QuotaKey) domain.QuotaStatus {
	st := domain.QuotaStatus{Limit: l.limits[key]}
	if e := l.counts[key]; e != nil && e.window == l.windowID(key, l.now()) {
		st.Used = e.used
	}
	if st.Limit > 0 {
		st.Pct = float64(st.Used) / float64(st.Limit) * 100
	}
	return st
}

// Snapshot lists every key with a declared limit or recorded usage,
// sorted for stable output.
func (l *Ledger) Snapshot(_ domain.Context) ([]domain.QuotaEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make(map[domain.QuotaKey]struct{}, len(l.limits)+len(l.counts))
	for k := range l.limits {
		keys[k] = struct{}{}
	}
	for k := range l.counts {
		keys[k] = struct{}{}
	}

	out := make([]domain.QuotaEntry, 0, len(keys))
	for k := range keys {
		out = append(out, domain.QuotaEntry{
			Provider:    k.Provider,
			Model:       k.Model,
			Period:      k.Period,
			QuotaStatus: l.statusLocked(k),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].Period < out[j].Period
	})
	return out, nil
}

// ResetDailyCounters drops every rpd counter. The cron schedule calls
// this at midnight; it is also safe to call manually.
func (l *Ledger) ResetDailyCounters() {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k := range l.counts {
		if k.Period == domain.QuotaRPD {
			delete(l.counts, k)
			n++
		}
	}
	slog.Info("daily quota counters reset", slog.Int("counters", n), slog.String("tz", l.loc.String()))
}

// Start schedules the midnight reset. Calling Start twice is a no-op.
func (l *Ledger) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cron != nil {
		return
	}
	l.cron = cron.New(cron.WithLocation(l.loc))
	// 00:00 every day in the ledger timezone.
	if _, err := l.cron.AddFunc("0 0 * * *", l.ResetDailyCounters); err != nil {
		slog.Error("schedule quota reset", slog.Any("error", err))
		l.cron = nil
		return
	}
	l.cron.Start()
}

// Stop halts the scheduler. Stopping an unstarted or stopped ledger is
// a no-op.
func (l *Ledger) Stop() {
	l.mu.Lock()
	c := l.cron
	l.cron = nil
	l.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
