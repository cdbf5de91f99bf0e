package pg

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
)

// ListRecentArticles returns summaries of the newest articles inside the
// similarity window, newest first, for duplicate comparison.
func (s *Store) ListRecentArticles(ctx context.Context, window time.Duration, limit int) ([]domain.ArticleSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, url, description, source_domain, published_at
		FROM news.articles
		WHERE published_at >= NOW() - $1::interval
		ORDER BY published_at DESC
		LIMIT $2`, window, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent articles: %w", err)
	}
	defer rows.Close()

	var summaries []domain.ArticleSummary
	for rows.Next() {
		var a domain.ArticleSummary
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Description, &a.SourceDomain, &a.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent article: %w", err)
		}
		summaries = append(summaries, a)
	}
	return summaries, rows.Err()
}

// InsertArticleWithSource atomically inserts a new canonical article
// (canonical_id = own id) and its primary source row, so a crash can never
// leave a source pointing at a missing article.
func (s *Store) InsertArticleWithSource(ctx context.Context, article domain.NewArticle, sourceName *string) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin insert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO news.articles (
			feed_id, title, url, description, language, source_domain,
			published_at, fetched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id`,
		article.FeedID, article.Title, article.URL, article.Description,
		article.Language, article.SourceDomain, article.PublishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert article: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE news.articles SET canonical_id = id WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("failed to set canonical id: %w", err)
	}

	decision := domain.DecisionPrimary
	if _, err := tx.Exec(ctx, `
		INSERT INTO news.article_sources (
			article_id, feed_id, source_name, source_url, published_at,
			inserted_at, decision, confidence
		)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6, NULL)
		ON CONFLICT (article_id, source_url) DO NOTHING`,
		id, article.FeedID, sourceName, article.URL, article.PublishedAt, decision,
	); err != nil {
		return 0, fmt.Errorf("failed to insert primary source: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit article insert: %w", err)
	}
	return id, nil
}

func (s *Store) ListArticles(ctx context.Context, filter domain.ArticleFilter) ([]domain.Article, int64, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, feed_id, title, url, description, language, source_domain,
		       published_at, fetched_at, canonical_id
		FROM news.articles
		WHERE ($1::timestamptz IS NULL OR published_at >= $1)
		  AND ($2::timestamptz IS NULL OR published_at <= $2)
		ORDER BY published_at DESC
		LIMIT $3
		OFFSET $4`, filter.From, filter.To, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(
			&a.ID, &a.FeedID, &a.Title, &a.URL, &a.Description, &a.Language,
			&a.SourceDomain, &a.PublishedAt, &a.FetchedAt, &a.CanonicalID,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM news.articles
		WHERE ($1::timestamptz IS NULL OR published_at >= $1)
		  AND ($2::timestamptz IS NULL OR published_at <= $2)`,
		filter.From, filter.To,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	return articles, total, nil
}

// filterConditionPattern limits feed filter predicates to simple column
// comparisons; anything else is rejected before reaching the database.
var filterConditionPattern = regexp.MustCompile(`(?i)^[a-z0-9_ .,'%()=<>!]+$`)

// ApplyFilterCondition deletes just-ingested articles matching the feed's
// content filter predicate. Returns the number of rows removed.
func (s *Store) ApplyFilterCondition(ctx context.Context, feedID int64, condition string) (int64, error) {
	if !filterConditionPattern.MatchString(condition) {
		return 0, apperr.NewValidation(fmt.Sprintf("unsafe filter condition for feed %d", feedID))
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
		DELETE FROM news.articles
		WHERE feed_id = $1 AND (%s)`, condition), feedID)
	if err != nil {
		return 0, fmt.Errorf("failed to apply filter condition for feed %d: %w", feedID, err)
	}
	return tag.RowsAffected(), nil
}

// PruneArticles removes articles older than the retention cutoff; dependent
// source rows go with them via ON DELETE CASCADE.
func (s *Store) PruneArticles(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM news.articles
		WHERE published_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}
	return tag.RowsAffected(), nil
}
