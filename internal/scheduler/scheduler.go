// Package scheduler drives the periodic fetch loop: it selects due feeds,
// dispatches them to a bounded worker pool, and records per-feed bookkeeping
// after every cycle.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
	"github.com/DjordjeVuckovic/news-ingest/internal/events"
	"github.com/DjordjeVuckovic/news-ingest/internal/fetch"
	"github.com/DjordjeVuckovic/news-ingest/internal/ingest"
)

// FeedStore is the persistence surface the scheduler needs.
type FeedStore interface {
	ListDueFeeds(ctx context.Context, limit int) ([]domain.Feed, error)
	MarkFeedSuccess(ctx context.Context, id int64, status int, etag *string, lastModified *time.Time, title, siteURL *string) error
	MarkFeedFailure(ctx context.Context, id int64, status int) error
	MarkFeedNotModified(ctx context.Context, id int64, status int) error
}

// Fetcher retrieves one feed document with conditional headers.
type Fetcher interface {
	Fetch(ctx context.Context, feed domain.Feed) fetch.Outcome
}

// Ingestor runs a fetched document through the dedup pipeline.
type Ingestor interface {
	ProcessFeedDocument(ctx context.Context, feed domain.Feed, body []byte) (*ingest.Summary, error)
}

// LockManager hands out per-feed locks; busy feeds are skipped, not queued.
type LockManager interface {
	TryAcquire(feedID int64) (release func(), ok bool)
}

// EventEmitter is the best-effort operational event channel.
type EventEmitter interface {
	Emit(ev events.Event)
}

type Config struct {
	// Interval between scheduling cycles.
	Interval time.Duration
	// BatchSize caps how many due feeds one cycle picks up.
	BatchSize int
	// Concurrency bounds feeds processed in parallel.
	Concurrency int64
	// QuickRetryAttempts is how many immediate retries a failed fetch gets
	// before the failure is persisted.
	QuickRetryAttempts int
	// QuickRetryDelay separates quick-retry attempts.
	QuickRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 300 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 8
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.QuickRetryAttempts < 0 {
		c.QuickRetryAttempts = 0
	}
	if c.QuickRetryDelay <= 0 {
		c.QuickRetryDelay = 3 * time.Second
	}
	return c
}

type Scheduler struct {
	store    FeedStore
	fetcher  Fetcher
	ingestor Ingestor
	locks    LockManager
	emitter  EventEmitter
	cfg      Config
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

func New(
	store FeedStore,
	fetcher Fetcher,
	ingestor Ingestor,
	locks LockManager,
	emitter EventEmitter,
	cfg Config,
) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		store:    store,
		fetcher:  fetcher,
		ingestor: ingestor,
		locks:    locks,
		emitter:  emitter,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
	}
}

// Run executes scheduling cycles until ctx is cancelled. The first cycle
// starts immediately. In-flight feeds are waited out before returning.
func (s *Scheduler) Run(ctx context.Context) {
	defer func() {
		severity := events.SeverityCritical
		if ctx.Err() != nil {
			severity = events.SeverityInfo
		}
		s.emitter.Emit(events.Event{
			Severity: severity,
			Code:     events.CodeFeedLoopExit,
			Title:    "feed scheduling loop exited",
		})
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			slog.Info("feed scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	due, err := s.store.ListDueFeeds(ctx, s.cfg.BatchSize)
	if err != nil {
		slog.Error("failed to list due feeds", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	slog.Info("scheduling cycle", "due_feeds", len(due))

	for _, feed := range due {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		s.wg.Add(1)
		go func(feed domain.Feed) {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.processLocked(ctx, feed)
		}(feed)
	}
}

func (s *Scheduler) processLocked(ctx context.Context, feed domain.Feed) {
	release, ok := s.locks.TryAcquire(feed.ID)
	if !ok {
		slog.Debug("feed busy, skipping cycle", "feed_id", feed.ID)
		return
	}
	defer release()

	if err := s.processFeed(ctx, feed); err != nil {
		slog.Warn("feed cycle failed", "feed_id", feed.ID, "url", feed.URL, "error", err)
	}
}

// FetchFeedOnce runs one immediate cycle for a single feed, used after a
// feed is created or updated. Returns an error when the feed is busy.
func (s *Scheduler) FetchFeedOnce(ctx context.Context, feed domain.Feed) error {
	release, ok := s.locks.TryAcquire(feed.ID)
	if !ok {
		return fmt.Errorf("feed %d is already being processed", feed.ID)
	}
	defer release()
	return s.processFeed(ctx, feed)
}

// processFeed fetches, ingests, and records the outcome. Transient failures
// get quick retries inside the same cycle; only the final attempt's failure
// is persisted.
func (s *Scheduler) processFeed(ctx context.Context, feed domain.Feed) error {
	attempts := s.cfg.QuickRetryAttempts + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		outcome := s.fetcher.Fetch(ctx, feed)

		switch outcome.Status {
		case fetch.StatusNotModified:
			if err := s.store.MarkFeedNotModified(ctx, feed.ID, outcome.HTTPStatus); err != nil {
				return err
			}
			slog.Debug("feed not modified", "feed_id", feed.ID)
			return nil

		case fetch.StatusModified:
			summary, err := s.ingestor.ProcessFeedDocument(ctx, feed, outcome.Body)
			if err != nil {
				lastErr = err
				break
			}
			if err := s.store.MarkFeedSuccess(
				ctx, feed.ID, outcome.HTTPStatus, outcome.ETag,
				outcome.LastModified, summary.FeedTitle, summary.SiteURL,
			); err != nil {
				return err
			}
			slog.Info("feed cycle complete",
				"feed_id", feed.ID,
				"entries", summary.Entries,
				"new", summary.NewArticles,
				"linked", summary.Linked,
				"known", summary.AlreadyKnown,
				"skipped", summary.SkippedInvalid,
				"failed", summary.Failed)
			return nil

		default:
			lastErr = outcome.Err
		}

		if attempt < attempts {
			slog.Debug("quick retry", "feed_id", feed.ID, "attempt", attempt, "error", lastErr)
			if !sleepCtx(ctx, s.cfg.QuickRetryDelay) {
				break
			}
			continue
		}

		// An ingest failure after a 2xx response still records the real
		// status; transport errors leave it at zero.
		httpStatus := outcome.HTTPStatus
		if err := s.store.MarkFeedFailure(ctx, feed.ID, httpStatus); err != nil {
			return err
		}
		message := ""
		if lastErr != nil {
			message = lastErr.Error()
		}
		s.emitter.Emit(events.Event{
			Severity:   events.SeverityWarning,
			Code:       events.CodeFetchFailureMarked,
			Title:      "feed fetch failed",
			Message:    message,
			FeedID:     &feed.ID,
			URL:        feed.URL,
			HTTPStatus: httpStatus,
		})
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
