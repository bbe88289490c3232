// Command worker consumes queued CV parse tasks: it extracts text with
// Tika, structures it through the LLM router and stores the result.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/repo/postgres"
	tikaext "github.com/fairyhunter13/ai-job-agent/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-job-agent/internal/app"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/quota"
	"github.com/fairyhunter13/ai-job-agent/internal/usecase"
)

// sweeperMaxAge must exceed the longest legitimate parse: Tika plus one
// full walk of the LLM fallback chain.
const sweeperMaxAge = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// The worker exposes its own /metrics so queue and parse
	// instrumentation is scrapeable separately from the API server.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	cvs := postgres.NewCVRepo(pool)

	mpool := config.DefaultModelPool()
	if cfg.ModelPoolFile != "" {
		mpool, err = config.LoadModelPool(cfg.ModelPoolFile)
		if err != nil {
			slog.Error("model pool load failed", slog.String("path", cfg.ModelPoolFile), slog.Any("error", err))
			os.Exit(1)
		}
	}

	loc, err := time.LoadLocation(cfg.QuotaResetTZ)
	if err != nil {
		slog.Error("invalid quota reset timezone", slog.String("tz", cfg.QuotaResetTZ), slog.Any("error", err))
		os.Exit(1)
	}

	// Without Redis each process counts quota usage alone, so worker
	// parses and server turns could together overrun a model's budget.
	var ledger domain.QuotaLedger
	if cfg.RedisEnabled() {
		opts, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			slog.Error("redis url parse failed", slog.Any("error", perr))
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		ledger = quota.NewRedisLedger(rdb, mpool.Models, loc)
		slog.Info("quota ledger backed by redis")
	} else {
		local := quota.NewLedger(mpool.Models, loc)
		local.Start()
		defer local.Stop()
		ledger = local
		slog.Warn("quota ledger is process-local; set REDIS_URL to share budgets with the server")
	}

	// No per-user preference source in the worker: parse tasks follow
	// the chain.
	llm := ai.NewRouter(cfg, mpool, ai.BuildProviders(cfg), ledger, nil)

	// Extraction is confined to the upload dir; queue payloads carry
	// paths, not file bytes.
	extractor := tikaext.New(cfg.TikaURL, cfg.UploadDir)

	// Parse progress events only reach websocket subscribers when the
	// worker runs inside the server process; standalone, upload polling
	// covers completion, so no event sink is wired here.
	handler := usecase.NewParseCVWorker(cvs, extractor, llm, nil)

	// Producer for retry re-enqueues and dead-letter parking. Its
	// transactional id must differ from the server producer's.
	producer, err := redpanda.NewProducerWithTransactionalID(cfg.KafkaBrokers, "ai-job-agent-worker-producer")
	if err != nil {
		slog.Error("queue producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	retryManager := redpanda.NewRetryManager(producer, cvs, cfg.GetRetryConfig())

	workers := cfg.ConsumerMaxConcurrency
	if workers < 1 {
		workers = 1
	}
	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, "ai-job-agent-workers", handler, retryManager, workers)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Error("failed to close consumer", slog.Any("error", err))
		}
	}()

	// Fail parses orphaned by a crashed worker so uploads do not sit in
	// processing forever.
	sweeper := app.NewStuckCVSweeper(cvs, sweeperMaxAge, time.Minute)
	go sweeper.Run(ctx)

	slog.Info("starting redpanda consumer", slog.Int("workers", workers))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}
