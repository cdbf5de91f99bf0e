package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
)

const feedColumns = `id, url, title, site_url, source_domain, language, enabled,
	fetch_interval_seconds, last_etag, last_modified, last_fetch_at,
	last_fetch_status, fail_count, filter_condition`

func scanFeed(row pgx.Row) (domain.Feed, error) {
	var (
		f      domain.Feed
		status *int16
	)
	err := row.Scan(
		&f.ID, &f.URL, &f.Title, &f.SiteURL, &f.SourceDomain, &f.Language,
		&f.Enabled, &f.FetchIntervalSeconds, &f.LastETag, &f.LastModified,
		&f.LastFetchAt, &status, &f.FailCount, &f.FilterCondition,
	)
	if err != nil {
		return domain.Feed{}, err
	}
	if status != nil {
		v := int(*status)
		f.LastFetchStatus = &v
	}
	return f, nil
}

func (s *Store) ListFeeds(ctx context.Context) ([]domain.Feed, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM news.feeds
		ORDER BY id DESC`, feedColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []domain.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (s *Store) GetFeed(ctx context.Context, id int64) (domain.Feed, error) {
	f, err := scanFeed(s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s
		FROM news.feeds
		WHERE id = $1`, feedColumns), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Feed{}, apperr.NewNotFound(fmt.Sprintf("feed %d not found", id))
	}
	if err != nil {
		return domain.Feed{}, fmt.Errorf("failed to get feed %d: %w", id, err)
	}
	return f, nil
}

// ListDueFeeds selects enabled feeds whose fetch interval has elapsed,
// oldest fetch first, never-fetched feeds ahead of everything.
func (s *Store) ListDueFeeds(ctx context.Context, limit int) ([]domain.Feed, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM news.feeds
		WHERE enabled = TRUE
		  AND (
		      last_fetch_at IS NULL OR
		      last_fetch_at <= NOW() - make_interval(secs => fetch_interval_seconds)
		  )
		ORDER BY last_fetch_at NULLS FIRST
		LIMIT $1`, feedColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due feeds: %w", err)
	}
	defer rows.Close()

	var feeds []domain.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (s *Store) UpsertFeed(ctx context.Context, record domain.FeedUpsert) (domain.Feed, error) {
	f, err := scanFeed(s.db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO news.feeds (
			url, title, site_url, source_domain, language, enabled,
			fetch_interval_seconds, filter_condition
		)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, TRUE), COALESCE($7, 600), $8)
		ON CONFLICT (url) DO UPDATE SET
			title = COALESCE(EXCLUDED.title, news.feeds.title),
			site_url = COALESCE(EXCLUDED.site_url, news.feeds.site_url),
			source_domain = EXCLUDED.source_domain,
			language = COALESCE(EXCLUDED.language, news.feeds.language),
			enabled = COALESCE($6, news.feeds.enabled),
			fetch_interval_seconds = COALESCE($7, news.feeds.fetch_interval_seconds),
			filter_condition = COALESCE(EXCLUDED.filter_condition, news.feeds.filter_condition),
			updated_at = NOW()
		RETURNING %s`, feedColumns),
		record.URL, record.Title, record.SiteURL, record.SourceDomain,
		record.Language, record.Enabled, record.FetchIntervalSeconds,
		record.FilterCondition,
	))
	if err != nil {
		return domain.Feed{}, fmt.Errorf("failed to upsert feed: %w", err)
	}
	return f, nil
}

// DeleteFeedCascade removes the feed, its source rows, and articles that
// belong to it and are referenced by no other source. Runs in one
// transaction; callers must hold the feed's lock.
func (s *Store) DeleteFeedCascade(ctx context.Context, id int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM news.article_sources
		WHERE feed_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete sources for feed %d: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM news.articles a
		WHERE a.feed_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM news.article_sources s WHERE s.article_id = a.id
		  )`, id); err != nil {
		return fmt.Errorf("failed to delete orphan articles for feed %d: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM news.feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feed %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFound(fmt.Sprintf("feed %d not found", id))
	}

	return tx.Commit(ctx)
}

// MarkFeedSuccess records a successful cycle: bookkeeping refreshed, failure
// count reset, and feed metadata updated from the parsed document.
func (s *Store) MarkFeedSuccess(ctx context.Context, id int64, status int, etag *string, lastModified *time.Time, title, siteURL *string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE news.feeds
		SET last_fetch_at = NOW(),
		    last_fetch_status = $2,
		    last_etag = $3,
		    last_modified = COALESCE($4, last_modified),
		    title = COALESCE($5, title),
		    site_url = COALESCE($6, site_url),
		    fail_count = 0,
		    updated_at = NOW()
		WHERE id = $1`, id, status, etag, lastModified, title, siteURL)
	if err != nil {
		return fmt.Errorf("failed to mark feed %d success: %w", id, err)
	}
	return nil
}

// MarkFeedFailure bumps the failure count. Status 0 (no HTTP response)
// leaves the stored status untouched.
func (s *Store) MarkFeedFailure(ctx context.Context, id int64, status int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE news.feeds
		SET last_fetch_at = NOW(),
		    last_fetch_status = COALESCE(NULLIF($2, 0), last_fetch_status),
		    fail_count = fail_count + 1,
		    updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to mark feed %d failure: %w", id, err)
	}
	return nil
}

func (s *Store) MarkFeedNotModified(ctx context.Context, id int64, status int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE news.feeds
		SET last_fetch_at = NOW(),
		    last_fetch_status = $2,
		    fail_count = 0,
		    updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to mark feed %d not modified: %w", id, err)
	}
	return nil
}
