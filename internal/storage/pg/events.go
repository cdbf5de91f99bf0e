package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/DjordjeVuckovic/news-ingest/internal/events"
)

// WriteEvents appends an event batch. Implements events.Sink.
func (s *Store) WriteEvents(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range batch {
		var httpStatus *int
		if ev.HTTPStatus != 0 {
			httpStatus = &ev.HTTPStatus
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO news.events (
				ts, severity, code, title, message, feed_id, url,
				provider, http_status, trace_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)`,
			ev.TS, ev.Severity, ev.Code, ev.Title, ev.Message, ev.FeedID,
			ev.URL, ev.Provider, httpStatus, ev.TraceID,
		); err != nil {
			return fmt.Errorf("failed to insert event %q: %w", ev.Code, err)
		}
	}

	return tx.Commit(ctx)
}

// PruneEvents removes events older than the retention cutoff.
func (s *Store) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM news.events
		WHERE ts < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return tag.RowsAffected(), nil
}
