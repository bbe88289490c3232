package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/ai-job-agent/internal/config"
)

// Pinger is the minimal surface of a client able to verify its
// connection. Both *pgxpool.Pool and the queue producer satisfy it.
type Pinger interface{ Ping(ctx context.Context) error }

// ReadinessChecks bundles the per-dependency probes behind /readyz.
type ReadinessChecks struct {
	DB        func(ctx context.Context) error
	Redpanda  func(ctx context.Context) error
	Qdrant    func(ctx context.Context) error
	Tika      func(ctx context.Context) error
	Gotenberg func(ctx context.Context) error
}

// BuildReadinessChecks returns the probes for the five hard
// dependencies. A nil client yields a failing check, not a panic.
func BuildReadinessChecks(cfg config.Config, db, broker Pinger) ReadinessChecks {
	return ReadinessChecks{
		DB: func(ctx context.Context) error {
			if db == nil {
				return fmt.Errorf("db not configured")
			}
			return db.Ping(ctx)
		},
		Redpanda: func(ctx context.Context) error {
			if broker == nil {
				return fmt.Errorf("queue not configured")
			}
			return broker.Ping(ctx)
		},
		Qdrant: httpProbe(cfg.QdrantURL, "/collections", map[string]string{"api-key": cfg.QdrantAPIKey}),
		Tika:   httpProbe(cfg.TikaURL, "/version", nil),
		// Gotenberg exposes a liveness route on /health.
		Gotenberg: httpProbe(cfg.GotenbergURL, "/health", nil),
	}
}

// httpProbe builds a check that GETs base+path and accepts any 2xx.
func httpProbe(base, path string, headers map[string]string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if base == "" {
			return fmt.Errorf("url not configured")
		}
		client := &http.Client{Timeout: 2 * time.Second}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return err
		}
		for k, v := range headers {
			if v != "" {
				req.Header.Set(k, v)
			}
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
}
