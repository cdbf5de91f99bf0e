package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
)

// FindArticleBySourceURL resolves an exact source-URL match to the canonical
// article id. Reports found=false when the URL was never ingested.
func (s *Store) FindArticleBySourceURL(ctx context.Context, sourceURL string) (int64, bool, error) {
	var canonicalID int64
	err := s.db.QueryRow(ctx, `
		SELECT a.canonical_id
		FROM news.article_sources src
		JOIN news.articles a ON a.id = src.article_id
		WHERE src.source_url = $1
		ORDER BY src.inserted_at DESC
		LIMIT 1`, sourceURL).Scan(&canonicalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up source url: %w", err)
	}
	return canonicalID, true, nil
}

// InsertSource records one origin occurrence. The unique constraint on
// (article_id, source_url) makes re-ingesting the same URL a no-op.
func (s *Store) InsertSource(ctx context.Context, record domain.NewSource) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO news.article_sources (
			article_id, feed_id, source_name, source_url, published_at,
			inserted_at, decision, confidence
		)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6, $7)
		ON CONFLICT (article_id, source_url) DO NOTHING`,
		record.ArticleID, record.FeedID, record.SourceName, record.SourceURL,
		record.PublishedAt, record.Decision, record.Confidence,
	)
	if err != nil {
		return fmt.Errorf("failed to insert article source: %w", err)
	}
	return nil
}

// ListSourcesByArticle returns the origin occurrences of a canonical
// article, oldest first.
func (s *Store) ListSourcesByArticle(ctx context.Context, articleID int64) ([]domain.ArticleSource, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, article_id, feed_id, source_name, source_url,
		       published_at, inserted_at, decision, confidence
		FROM news.article_sources
		WHERE article_id = $1
		ORDER BY inserted_at ASC`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.ArticleSource
	for rows.Next() {
		var src domain.ArticleSource
		if err := rows.Scan(
			&src.ID, &src.ArticleID, &src.FeedID, &src.SourceName,
			&src.SourceURL, &src.PublishedAt, &src.InsertedAt,
			&src.Decision, &src.Confidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
