package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"

	"github.com/DjordjeVuckovic/news-ingest/internal/api"
	"github.com/DjordjeVuckovic/news-ingest/internal/dedup"
	"github.com/DjordjeVuckovic/news-ingest/internal/events"
	"github.com/DjordjeVuckovic/news-ingest/internal/fetch"
	"github.com/DjordjeVuckovic/news-ingest/internal/ingest"
	"github.com/DjordjeVuckovic/news-ingest/internal/locks"
	"github.com/DjordjeVuckovic/news-ingest/internal/scheduler"
	"github.com/DjordjeVuckovic/news-ingest/internal/seed"
	"github.com/DjordjeVuckovic/news-ingest/internal/server"
	"github.com/DjordjeVuckovic/news-ingest/internal/settings"
	"github.com/DjordjeVuckovic/news-ingest/internal/storage/pg"
	"github.com/DjordjeVuckovic/news-ingest/internal/translate"
)

func main() {
	appCfg := NewAppConfig()
	cfg, err := appCfg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.NewConnectionPool(ctx, pg.PoolConfig{ConnStr: cfg.DatabaseURL})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := pg.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	settingsStore := settings.NewStore(store, settings.Thresholds{
		Strict:    float64(cfg.Dedup.StrictThreshold),
		Ambiguous: float64(cfg.Dedup.AmbiguousThreshold),
		MaxChecks: cfg.MaxLLMChecks,
	})

	creds := resolveCredentials(ctx, settingsStore, cfg.Translation)
	engine := translate.NewEngine(creds)

	emitter := events.NewEmitter(store, events.Config{})
	go emitter.Run(ctx)

	lockMgr := locks.NewManager()
	fetcher := fetch.New(fetch.Config{Timeout: cfg.FetchTimeout})
	judge := dedup.NewJudge(cfg.Dedup)

	ingestEngine := ingest.NewEngine(
		store, judge, engine, settingsStore, engine, emitter,
		ingest.Config{ArbiterTimeout: cfg.ArbiterTimeout},
	)
	sched := scheduler.New(store, fetcher, ingestEngine, lockMgr, emitter, cfg.Scheduler)

	if cfg.SeedFeedsFile != "" {
		seeds, err := seed.Load(cfg.SeedFeedsFile)
		if err != nil {
			slog.Error("failed to load seed feeds", "error", err)
			os.Exit(1)
		}
		if err := seed.Apply(ctx, store, seeds); err != nil {
			slog.Error("failed to seed feeds", "error", err)
			os.Exit(1)
		}
	}

	go sched.Run(ctx)

	maintenance := startMaintenance(ctx, store, engine, cfg)
	defer maintenance.Stop()

	sCfg, err := server.LoadConfig()
	if err != nil {
		slog.Error("failed to load server config", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	srv := server.NewServer(e, sCfg, pg.NewHealthChecker(pool), emitter)

	api.NewFeedRouter(e, store, sched, fetcher, lockMgr, emitter).Bind()
	api.NewArticleRouter(e, store).Bind()
	api.NewSettingsRouter(e, settingsStore, engine).Bind()

	slog.Info("news ingest started", "port", sCfg.Port)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server stopped with error", "error", err)
	}

	stop()
	<-emitter.Done()
	slog.Info("shutdown complete")
}

// resolveCredentials layers persisted translation settings over env
// defaults; the database wins for anything an operator saved there.
func resolveCredentials(ctx context.Context, store *settings.Store, fromEnv translate.Credentials) translate.Credentials {
	stored, err := store.LoadTranslation(ctx)
	if err != nil {
		slog.Warn("failed to load persisted translation settings, using env", "error", err)
		return fromEnv
	}

	creds := fromEnv
	if stored.Provider != "" {
		creds.Provider = stored.Provider
	}
	if stored.DeepseekAPIKey != "" {
		creds.DeepseekAPIKey = stored.DeepseekAPIKey
	}
	if stored.DeepseekBaseURL != "" {
		creds.DeepseekBaseURL = stored.DeepseekBaseURL
	}
	if stored.DeepseekModel != "" {
		creds.DeepseekModel = stored.DeepseekModel
	}
	if stored.OllamaBaseURL != "" {
		creds.OllamaBaseURL = stored.OllamaBaseURL
	}
	if stored.OllamaModel != "" {
		creds.OllamaModel = stored.OllamaModel
	}
	if stored.TargetLanguage != "" {
		creds.TargetLanguage = stored.TargetLanguage
	}
	if stored.TranslateDescriptions {
		creds.TranslateDescriptions = true
	}
	return creds
}

// startMaintenance schedules retention pruning and provider revalidation.
func startMaintenance(ctx context.Context, store *pg.Store, engine *translate.Engine, cfg *IngestConfig) *cron.Cron {
	c := cron.New()

	_, _ = c.AddFunc("@daily", func() {
		cutoff := time.Now().Add(-cfg.ArticleRetention)
		if removed, err := store.PruneArticles(ctx, cutoff); err != nil {
			slog.Error("article retention pass failed", "error", err)
		} else if removed > 0 {
			slog.Info("pruned old articles", "removed", removed)
		}

		cutoff = time.Now().Add(-cfg.EventRetention)
		if removed, err := store.PruneEvents(ctx, cutoff); err != nil {
			slog.Error("event retention pass failed", "error", err)
		} else if removed > 0 {
			slog.Info("pruned old events", "removed", removed)
		}
	})

	_, _ = c.AddFunc("@every 5m", func() {
		engine.RevalidatePending(ctx)
	})

	c.Start()
	return c
}
