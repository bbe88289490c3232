package quota

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// luaWindowIncr adds n to a windowed counter and pins the key's expiry
// on first touch, atomically. Returns the new count.
const luaWindowIncr = `
local used = redis.call("INCRBY", KEYS[1], ARGV[1])
if used == tonumber(ARGV[1]) then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return used
`

// RedisLedger mirrors quota counters in a shared Redis so several
// replicas observe one counter set. Windows expire on their own; the
// midnight cron reset is unnecessary here. On Redis errors reads fail
// open (zero usage) so a cache outage never blocks LLM traffic.
type RedisLedger struct {
	rdb    *redis.Client
	limits map[domain.QuotaKey]int64
	loc    *time.Location
	script *redis.Script
	now    func() time.Time
}

// NewRedisLedger builds a shared ledger with limits from the model pool.
func NewRedisLedger(rdb *redis.Client, specs []domain.ModelSpec, loc *time.Location) *RedisLedger {
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
	return &RedisLedger{
		rdb:    rdb,
		limits: limits,
		loc:    loc,
		script: redis.NewScript(luaWindowIncr),
		now:    time.Now,
	}
}

func (l *RedisLedger) redisKey(key domain.QuotaKey) string {
	var window string
	if key.Period == domain.QuotaRPD {
		window = l.now().In(l.loc).Format("20060102")
	} else {
		window = l.now().UTC().Format("200601021504")
	}
	return strings.Join([]string{"quota", key.Provider, key.Model, string(key.Period), window}, ":")
}

func windowTTL(p domain.QuotaPeriod) int64 {
	if p == domain.QuotaRPD {
		// A calendar day plus slack for timezone-shifted windows.
		return int64((26 * time.Hour).Seconds())
	}
	return int64((2 * time.Minute).Seconds())
}

// Increment atomically adds n to the shared counter.
func (l *RedisLedger) Increment(ctx domain.Context, key domain.QuotaKey, n int64) error {
	_, err := l.script.Run(ctx, l.rdb, []string{l.redisKey(key)}, n, windowTTL(key.Period)).Result()
	if err != nil {
		return fmt.Errorf("op=quota.redis.increment: %w", err)
	}
	return nil
}

// Status reads the shared counter against the declared limit.
func (l *RedisLedger) Status(ctx domain.Context, key domain.QuotaKey) (domain.QuotaStatus, error) {
	st := domain.QuotaStatus{Limit: l.limits[key]}
	used, err := l.rdb.Get(ctx, l.redisKey(key)).Int64()
	switch {
	case err == redis.Nil:
		// untouched window
	case err != nil:
		slog.Warn("quota read failed, failing open",
			slog.String("provider", key.Provider),
			slog.String("model", key.Model),
			slog.Any("error", err))
	default:
		st.Used = used
	}
	if st.Limit > 0 {
		st.Pct = float64(st.Used) / float64(st.Limit) * 100
	}
	return st, nil
}

// Snapshot lists the status of every key with a declared limit.
func (l *RedisLedger) Snapshot(ctx domain.Context) ([]domain.QuotaEntry, error) {
	out := make([]domain.QuotaEntry, 0, len(l.limits))
	for k := range l.limits {
		st, _ := l.Status(ctx, k)
		out = append(out, domain.QuotaEntry{
			Provider:    k.Provider,
			Model:       k.Model,
			Period:      k.Period,
			QuotaStatus: st,
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
