package hrlookup

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// Cache stores resolved contacts in Redis with a TTL, so repeated
// pipelines against the same company skip the paid lookup APIs. Errors
// fail open: a cache outage degrades to fresh lookups.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache builds the contact cache. ttl <= 0 falls back to 24h.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func cacheKey(company string) string {
	k := strings.ToLower(strings.TrimSpace(company))
	k = strings.Join(strings.Fields(k), "_")
	return "hr:contact:" + k
}

// Get returns the cached contact for a company, if any.
func (c *Cache) Get(ctx domain.Context, company string) (domain.HRContact, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(company)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("contact cache read failed", slog.String("company", company), slog.Any("error", err))
		}
		return domain.HRContact{}, false
	}
	var contact domain.HRContact
	if err := json.Unmarshal(raw, &contact); err != nil {
		return domain.HRContact{}, false
	}
	return contact, true
}

// Put stores a resolved contact for the cache TTL.
func (c *Cache) Put(ctx domain.Context, company string, contact domain.HRContact) {
	raw, err := json.Marshal(contact)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(company), raw, c.ttl).Err(); err != nil {
		slog.Warn("contact cache write failed", slog.String("company", company), slog.Any("error", err))
	}
}
