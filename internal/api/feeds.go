// Package api binds the admin HTTP routes: feed management, article
// listings, and runtime settings.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
	"github.com/DjordjeVuckovic/news-ingest/internal/events"
	"github.com/DjordjeVuckovic/news-ingest/internal/fetch"
	"github.com/DjordjeVuckovic/news-ingest/internal/feedparse"
	"github.com/DjordjeVuckovic/news-ingest/internal/urlnorm"
)

// FeedStore is the persistence surface of the feed routes.
type FeedStore interface {
	ListFeeds(ctx context.Context) ([]domain.Feed, error)
	GetFeed(ctx context.Context, id int64) (domain.Feed, error)
	UpsertFeed(ctx context.Context, record domain.FeedUpsert) (domain.Feed, error)
	DeleteFeedCascade(ctx context.Context, id int64) error
}

// ImmediateFetcher runs one out-of-band cycle for a just-saved feed.
type ImmediateFetcher interface {
	FetchFeedOnce(ctx context.Context, feed domain.Feed) error
}

// DeletionLocks serializes feed deletion against in-flight ingestion.
type DeletionLocks interface {
	Acquire(ctx context.Context, feedID int64) (release func(), err error)
}

// TestFetcher retrieves a candidate URL for the dry-run endpoint.
type TestFetcher interface {
	FetchURL(ctx context.Context, url string, etag *string, lastModified *time.Time) fetch.Outcome
}

// EventEmitter is the best-effort operational event channel.
type EventEmitter interface {
	Emit(ev events.Event)
}

const immediateFetchTimeout = 60 * time.Second

type FeedRouter struct {
	e       *echo.Echo
	store   FeedStore
	fetcher ImmediateFetcher
	tester  TestFetcher
	locks   DeletionLocks
	emitter EventEmitter
}

func NewFeedRouter(
	e *echo.Echo,
	store FeedStore,
	fetcher ImmediateFetcher,
	tester TestFetcher,
	locks DeletionLocks,
	emitter EventEmitter,
) *FeedRouter {
	return &FeedRouter{
		e:       e,
		store:   store,
		fetcher: fetcher,
		tester:  tester,
		locks:   locks,
		emitter: emitter,
	}
}

func (r *FeedRouter) Bind() {
	r.e.GET("/api/feeds", r.listHandler)
	r.e.POST("/api/feeds", r.upsertHandler)
	r.e.DELETE("/api/feeds/:id", r.deleteHandler)
	r.e.POST("/api/feeds/test", r.testHandler)
}

func (r *FeedRouter) listHandler(c echo.Context) error {
	feeds, err := r.store.ListFeeds(c.Request().Context())
	if err != nil {
		return err
	}
	if feeds == nil {
		feeds = []domain.Feed{}
	}
	return c.JSON(http.StatusOK, feeds)
}

func (r *FeedRouter) upsertHandler(c echo.Context) error {
	var record domain.FeedUpsert
	if err := c.Bind(&record); err != nil {
		return apperr.NewValidationWrap("invalid feed payload", err)
	}
	if record.URL == "" {
		return apperr.NewValidation("feed url is required")
	}
	if record.FetchIntervalSeconds != nil && *record.FetchIntervalSeconds <= 0 {
		return apperr.NewValidation("fetch interval must be positive")
	}

	canonical, sourceDomain, err := urlnorm.Normalize(record.URL)
	if err != nil {
		return err
	}
	record.URL = canonical
	record.SourceDomain = sourceDomain

	feed, err := r.store.UpsertFeed(c.Request().Context(), record)
	if err != nil {
		return err
	}

	// First content should appear without waiting for the next cycle.
	go r.fetchImmediately(feed)

	return c.JSON(http.StatusOK, feed)
}

func (r *FeedRouter) fetchImmediately(feed domain.Feed) {
	ctx, cancel := context.WithTimeout(context.Background(), immediateFetchTimeout)
	defer cancel()

	if err := r.fetcher.FetchFeedOnce(ctx, feed); err != nil {
		slog.Warn("immediate fetch failed", "feed_id", feed.ID, "error", err)
		r.emitter.Emit(events.Event{
			Severity: events.SeverityWarning,
			Code:     events.CodeImmediateFetchFail,
			Title:    "immediate fetch after save failed",
			Message:  err.Error(),
			FeedID:   &feed.ID,
			URL:      feed.URL,
		})
	}
}

func (r *FeedRouter) deleteHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apperr.NewValidation("feed id must be an integer")
	}

	ctx := c.Request().Context()

	// Wait out any in-flight ingestion cycle before removing rows.
	release, err := r.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := r.store.DeleteFeedCascade(ctx, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type testFeedRequest struct {
	URL string `json:"url"`
}

func (r *FeedRouter) testHandler(c echo.Context) error {
	var req testFeedRequest
	if err := c.Bind(&req); err != nil {
		return apperr.NewValidationWrap("invalid test payload", err)
	}
	if req.URL == "" {
		return apperr.NewValidation("url is required")
	}
	canonical, _, err := urlnorm.Normalize(req.URL)
	if err != nil {
		return err
	}

	outcome := r.tester.FetchURL(c.Request().Context(), canonical, nil, nil)
	result := domain.FeedTestResult{Status: outcome.HTTPStatus}

	if outcome.Status != fetch.StatusModified {
		return c.JSON(http.StatusOK, result)
	}

	doc, err := feedparse.Parse(outcome.Body)
	if err != nil {
		return apperr.NewValidationWrap("url does not serve a parseable feed", err)
	}
	result.Title = doc.Title
	result.SiteURL = doc.SiteURL
	result.EntryCount = len(doc.Entries)
	return c.JSON(http.StatusOK, result)
}
