package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/DjordjeVuckovic/news-ingest/internal/dedup"
	"github.com/DjordjeVuckovic/news-ingest/internal/scheduler"
	"github.com/DjordjeVuckovic/news-ingest/internal/translate"
	"github.com/DjordjeVuckovic/news-ingest/pkg/config/env"
)

type AppConfig struct {
	ENV string
}

func NewAppConfig() *AppConfig {
	return &AppConfig{
		ENV: os.Getenv("ENV"),
	}
}

type IngestConfig struct {
	DatabaseURL string

	Scheduler scheduler.Config
	Dedup     dedup.Config

	FetchTimeout   time.Duration
	ArbiterTimeout time.Duration
	MaxLLMChecks   int

	Translation translate.Credentials

	SeedFeedsFile string

	ArticleRetention time.Duration
	EventRetention   time.Duration

	LogLevel slog.Level
}

func (ac *AppConfig) Load() (*IngestConfig, error) {
	if err := env.LoadDotEnv(ac.ENV, "cmd/news_ingest/.env"); err != nil {
		slog.Info("continuing with process environment", "error", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &IngestConfig{
		DatabaseURL: dbURL,
		Scheduler: scheduler.Config{
			Interval:           envDuration("FETCH_INTERVAL_SECS", 300),
			BatchSize:          envInt("FETCH_BATCH_SIZE", 8),
			Concurrency:        int64(envInt("FETCH_CONCURRENCY", 4)),
			QuickRetryAttempts: envInt("QUICK_RETRY_ATTEMPTS", 1),
			QuickRetryDelay:    envDuration("QUICK_RETRY_DELAY_SECS", 3),
		},
		Dedup: dedup.Config{
			StrictThreshold:    envFloat32("DEDUP_STRICT_THRESHOLD", dedup.DefaultStrictThreshold),
			AmbiguousThreshold: envFloat32("DEDUP_AMBIGUOUS_THRESHOLD", dedup.DefaultAmbiguousThreshold),
			Window:             time.Duration(envInt("DEDUP_WINDOW_HOURS", 48)) * time.Hour,
			RecentLimit:        envInt("DEDUP_RECENT_LIMIT", dedup.DefaultRecentLimit),
		},
		FetchTimeout:   envDuration("FETCH_TIMEOUT_SECS", 15),
		ArbiterTimeout: envDuration("ARBITER_TIMEOUT_SECS", 10),
		MaxLLMChecks:   envInt("DEDUP_MAX_LLM_CHECKS", 3),
		Translation: translate.Credentials{
			Provider:              os.Getenv("TRANSLATE_PROVIDER"),
			DeepseekAPIKey:        os.Getenv("DEEPSEEK_API_KEY"),
			DeepseekBaseURL:       os.Getenv("DEEPSEEK_BASE_URL"),
			DeepseekModel:         os.Getenv("DEEPSEEK_MODEL"),
			OllamaBaseURL:         os.Getenv("OLLAMA_BASE_URL"),
			OllamaModel:           os.Getenv("OLLAMA_MODEL"),
			TranslateDescriptions: envBool("TRANSLATE_DESCRIPTIONS", false),
			TargetLanguage:        os.Getenv("TRANSLATE_TARGET_LANG"),
		},
		SeedFeedsFile:    os.Getenv("SEED_FEEDS_FILE"),
		ArticleRetention: time.Duration(envInt("ARTICLE_RETENTION_DAYS", 30)) * 24 * time.Hour,
		EventRetention:   time.Duration(envInt("EVENT_RETENTION_DAYS", 14)) * 24 * time.Hour,
		LogLevel:         parseLogLevel(os.Getenv("LOG_LEVEL")),
	}
	return cfg, nil
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return n
}

func envDuration(key string, defSecs int) time.Duration {
	return time.Duration(envInt(key, defSecs)) * time.Second
}

func envFloat32(key string, def float32) float32 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		slog.Warn("invalid float env var, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return float32(f)
}

func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
