// Command server starts the AI job agent HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-job-agent/internal/adapter/ai"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/hrlookup"
	httpserver "github.com/fairyhunter13/ai-job-agent/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/jobboard"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/mailer/gmail"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/pdfrender/gotenberg"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/repo/postgres"
	qdrantcli "github.com/fairyhunter13/ai-job-agent/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-job-agent/internal/app"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
	"github.com/fairyhunter13/ai-job-agent/internal/domain"
	"github.com/fairyhunter13/ai-job-agent/internal/eventbus"
	execlog "github.com/fairyhunter13/ai-job-agent/internal/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/quota"
	"github.com/fairyhunter13/ai-job-agent/internal/usecase"
)

// embedDim is the vector width of text-embedding-3-small, the default
// embeddings model. The prep service re-ensures lazily with the real
// width, so a custom model only costs one extra round trip.
const embedDim = 1536

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	sessions := postgres.NewSessionRepo(pool)
	cvs := postgres.NewCVRepo(pool)
	tailored := postgres.NewTailoredRepo(pool)
	postings := postgres.NewPostingRepo(pool)
	apps := postgres.NewApplicationRepo(pool)
	creds := postgres.NewMailCredentialRepo(pool)
	profiles := postgres.NewProfileRepo(pool)

	if cfg.DataRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(postgres.PoolBeginner{Pool: pool}, cfg.DataRetentionDays)
		go cleanup.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	// Model pool: file override or the compiled-in free-tier chain.
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

	// Quota ledger: counters shared through Redis when configured so
	// replicas and the worker see one budget, otherwise process-local
	// with a midnight cron reset.
	var rdb *redis.Client
	var ledger domain.QuotaLedger
	if cfg.RedisEnabled() {
		opts, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			slog.Error("redis url parse failed", slog.Any("error", perr))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		ledger = quota.NewRedisLedger(rdb, mpool.Models, loc)
		slog.Info("quota ledger backed by redis")
	} else {
		local := quota.NewLedger(mpool.Models, loc)
		local.Start()
		defer local.Stop()
		ledger = local
	}

	settingsSvc := usecase.NewSettingsService(profiles, mpool)
	llm := ai.NewRouter(cfg, mpool, ai.BuildProviders(cfg), ledger, settingsSvc)
	embedder := ai.NewEmbedCache(ai.NewEmbedder(cfg), cfg.EmbedCacheSize)

	bus := eventbus.New(0)
	defer bus.Shutdown()

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	var boards []domain.JobBoard
	if cfg.AdzunaEnabled() {
		boards = append(boards, jobboard.NewAdzuna(cfg, ""))
	}
	if cfg.JSearchEnabled() {
		boards = append(boards, jobboard.NewJSearch(cfg, ""))
	}
	if cfg.RemotiveEnabled {
		boards = append(boards, jobboard.NewRemotive(cfg, ""))
	}
	slog.Info("job boards configured", slog.Int("count", len(boards)))

	var finders []domain.ContactFinder
	if cfg.HunterEnabled() {
		finders = append(finders, hrlookup.NewHunter(cfg, ""))
	}
	if cfg.SnovEnabled() {
		finders = append(finders, hrlookup.NewSnov(cfg, ""))
	}
	if cfg.ApolloEnabled() {
		finders = append(finders, hrlookup.NewApollo(cfg, ""))
	}
	var contactCache usecase.ContactCache
	if rdb != nil {
		contactCache = hrlookup.NewCache(rdb, cfg.HRCacheTTL)
	}
	contacts := usecase.NewContactService(finders, contactCache, cfg.HRProviderTimeout)

	renderer := gotenberg.New(cfg.GotenbergURL)
	mailer := gmail.New(cfg, creds, "", "")

	var qcli *qdrantcli.Client
	var index domain.VectorIndex
	if cfg.QdrantURL != "" {
		qcli = qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
		index = qcli
	}
	app.EnsureInterviewCollection(ctx, qcli, embedDim)

	searchSvc := usecase.NewSearchService(llm, boards, contacts, postings, bus, cfg.SearchProviderTimeout, cfg.SearchPrefilterWorkers)
	tailorSvc := usecase.NewTailorService(llm)
	composeSvc := usecase.NewComposeService(llm)
	pipeline := usecase.NewPipelineService(cvs, tailored, postings, apps, contacts, tailorSvc, composeSvc, renderer, mailer, creds, bus, cfg.GeneratedDir)
	cvSvc := usecase.NewCVService(cvs, tailored, producer, renderer, cfg.UploadDir, cfg.MaxUploadMB)
	analysisSvc := usecase.NewAnalysisService(llm, cvs)
	prepSvc := usecase.NewInterviewPrepService(llm, postings, cvs, embedder, index, bus)

	watcher := usecase.NewReplyWatcher(apps, mailer, bus, cfg.ReplyWatchInterval)
	if cfg.GmailEnabled() {
		watcher.Start()
		defer watcher.Stop()
	}

	supervisor := &usecase.Supervisor{
		LLM:      llm,
		Sessions: sessions,
		Pipeline: pipeline,
		Search:   searchSvc,
		Prep:     prepSvc,
		Analysis: analysisSvc,
		CVs:      cvs,
		Postings: postings,
		Apps:     apps,
		Events:   bus,
	}

	checks := app.BuildReadinessChecks(cfg, pool, producer)

	srv := &httpserver.Server{
		Cfg:        cfg,
		Tokens:     httpserver.NewTokenIssuer(cfg.SecretKey, cfg.AuthTokenTTL),
		Supervisor: supervisor,
		Sessions:   usecase.NewSessionService(sessions),
		CVs:        cvSvc,
		Search:     searchSvc,
		Pipeline:   pipeline,
		Settings:   settingsSvc,
		Watcher:    watcher,
		Quota:      ledger,
		Bus:        bus,
		Executions: execlog.NewExecutionLog(0),

		Postings: postings,
		Apps:     apps,
		Creds:    creds,

		DBCheck:        checks.DB,
		RedpandaCheck:  checks.Redpanda,
		QdrantCheck:    checks.Qdrant,
		TikaCheck:      checks.Tika,
		GotenbergCheck: checks.Gotenberg,
	}

	handler := app.BuildRouter(cfg, srv)

	// No server-wide read or write deadline: body reads are bounded per
	// handler, the websocket is long-lived, and chat turns run minutes.
	// Per-route budgets are applied in the router.
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
