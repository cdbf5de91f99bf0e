package pg

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS news`,

	`CREATE TABLE IF NOT EXISTS news.feeds (
		id                     BIGSERIAL PRIMARY KEY,
		url                    TEXT NOT NULL UNIQUE,
		title                  TEXT,
		site_url               TEXT,
		source_domain          TEXT NOT NULL,
		language               TEXT,
		enabled                BOOLEAN NOT NULL DEFAULT TRUE,
		fetch_interval_seconds INTEGER NOT NULL DEFAULT 600 CHECK (fetch_interval_seconds > 0),
		last_etag              TEXT,
		last_modified          TIMESTAMPTZ,
		last_fetch_at          TIMESTAMPTZ,
		last_fetch_status      SMALLINT,
		fail_count             INTEGER NOT NULL DEFAULT 0,
		filter_condition       TEXT,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_feeds_enabled ON news.feeds(enabled)`,

	`CREATE TABLE IF NOT EXISTS news.articles (
		id            BIGSERIAL PRIMARY KEY,
		feed_id       BIGINT REFERENCES news.feeds(id) ON DELETE SET NULL,
		title         TEXT NOT NULL,
		url           TEXT NOT NULL,
		description   TEXT,
		language      TEXT,
		source_domain TEXT NOT NULL,
		published_at  TIMESTAMPTZ NOT NULL,
		fetched_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		canonical_id  BIGINT NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON news.articles(published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_source_domain ON news.articles(source_domain)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_canonical_id ON news.articles(canonical_id)`,

	`CREATE TABLE IF NOT EXISTS news.article_sources (
		id           BIGSERIAL PRIMARY KEY,
		article_id   BIGINT NOT NULL REFERENCES news.articles(id) ON DELETE CASCADE,
		feed_id      BIGINT REFERENCES news.feeds(id) ON DELETE SET NULL,
		source_name  TEXT,
		source_url   TEXT NOT NULL,
		published_at TIMESTAMPTZ NOT NULL,
		inserted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		decision     TEXT,
		confidence   REAL,
		UNIQUE (article_id, source_url)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_article_sources_source_url ON news.article_sources(source_url)`,
	`CREATE INDEX IF NOT EXISTS idx_article_sources_feed_id ON news.article_sources(feed_id)`,

	`CREATE TABLE IF NOT EXISTS news.settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS news.events (
		id            BIGSERIAL PRIMARY KEY,
		ts            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		severity      TEXT NOT NULL,
		code          TEXT NOT NULL,
		title         TEXT NOT NULL,
		message       TEXT,
		feed_id       BIGINT,
		url           TEXT,
		provider      TEXT,
		http_status   INTEGER,
		trace_id      UUID
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_ts ON news.events(ts DESC)`,
}

// EnsureSchema creates the news schema and tables when missing. Statements
// are idempotent so startup can run them every time.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return tx.Commit(ctx)
}
