package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
	"github.com/DjordjeVuckovic/news-ingest/internal/events"
	"github.com/DjordjeVuckovic/news-ingest/internal/fetch"
	"github.com/DjordjeVuckovic/news-ingest/internal/locks"
)

type fakeFeedStore struct {
	mu       sync.Mutex
	feeds    []domain.Feed
	upserted []domain.FeedUpsert
	deleted  []int64
}

func (f *fakeFeedStore) ListFeeds(context.Context) ([]domain.Feed, error) {
	return f.feeds, nil
}

func (f *fakeFeedStore) GetFeed(_ context.Context, id int64) (domain.Feed, error) {
	for _, feed := range f.feeds {
		if feed.ID == id {
			return feed, nil
		}
	}
	return domain.Feed{}, apperr.NewNotFound("feed not found")
}

func (f *fakeFeedStore) UpsertFeed(_ context.Context, record domain.FeedUpsert) (domain.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, record)
	return domain.Feed{ID: 1, URL: record.URL, SourceDomain: record.SourceDomain}, nil
}

func (f *fakeFeedStore) DeleteFeedCascade(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, feed := range f.feeds {
		if feed.ID == id {
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return apperr.NewNotFound("feed not found")
}

type fakeImmediateFetcher struct {
	mu    sync.Mutex
	calls []int64
	done  chan struct{}
}

func (f *fakeImmediateFetcher) FetchFeedOnce(_ context.Context, feed domain.Feed) error {
	f.mu.Lock()
	f.calls = append(f.calls, feed.ID)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

type fakeTester struct {
	outcome fetch.Outcome
}

func (f *fakeTester) FetchURL(context.Context, string, *string, *time.Time) fetch.Outcome {
	return f.outcome
}

type nopEmitter struct{}

func (nopEmitter) Emit(events.Event) {}

func newTestRouter(store *fakeFeedStore, fetcher *fakeImmediateFetcher, tester *fakeTester) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.GlobalErrorHandler(nil)
	if fetcher == nil {
		fetcher = &fakeImmediateFetcher{}
	}
	if tester == nil {
		tester = &fakeTester{}
	}
	NewFeedRouter(e, store, fetcher, tester, locks.NewManager(), nopEmitter{}).Bind()
	return e
}

func TestListFeeds(t *testing.T) {
	title := "Wire"
	store := &fakeFeedStore{feeds: []domain.Feed{{ID: 1, URL: "https://a.example.com/rss", Title: &title}}}
	e := newTestRouter(store, nil, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feeds", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var feeds []domain.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, "https://a.example.com/rss", feeds[0].URL)
}

func TestUpsertFeed_RequiresURL(t *testing.T) {
	e := newTestRouter(&fakeFeedStore{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/feeds", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertFeed_NormalizesAndFetches(t *testing.T) {
	store := &fakeFeedStore{}
	fetcher := &fakeImmediateFetcher{done: make(chan struct{})}
	e := newTestRouter(store, fetcher, nil)

	body := `{"url": "https://Wire.Example.com/rss?utm_source=x", "fetchIntervalSeconds": 300}`
	req := httptest.NewRequest(http.MethodPost, "/api/feeds", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "https://wire.example.com/rss", store.upserted[0].URL)
	assert.Equal(t, "wire.example.com", store.upserted[0].SourceDomain)

	select {
	case <-fetcher.done:
	case <-time.After(time.Second):
		t.Fatal("immediate fetch was not triggered")
	}
}

func TestUpsertFeed_RejectsNonPositiveInterval(t *testing.T) {
	e := newTestRouter(&fakeFeedStore{}, nil, nil)

	body := `{"url": "https://wire.example.com/rss", "fetchIntervalSeconds": 0}`
	req := httptest.NewRequest(http.MethodPost, "/api/feeds", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteFeed(t *testing.T) {
	store := &fakeFeedStore{feeds: []domain.Feed{{ID: 5}}}
	e := newTestRouter(store, nil, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/feeds/5", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{5}, store.deleted)
}

func TestDeleteFeed_NotFound(t *testing.T) {
	e := newTestRouter(&fakeFeedStore{}, nil, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/feeds/99", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteFeed_BadID(t *testing.T) {
	e := newTestRouter(&fakeFeedStore{}, nil, nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/feeds/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestFeed_ParsesDocument(t *testing.T) {
	rss := `<?xml version="1.0"?><rss version="2.0"><channel>` +
		`<title>Wire</title><link>https://wire.example.com</link>` +
		`<item><title>One</title><link>https://wire.example.com/1</link></item>` +
		`<item><title>Two</title><link>https://wire.example.com/2</link></item>` +
		`</channel></rss>`
	tester := &fakeTester{outcome: fetch.Outcome{
		Status:     fetch.StatusModified,
		HTTPStatus: 200,
		Body:       []byte(rss),
	}}
	e := newTestRouter(&fakeFeedStore{}, nil, tester)

	req := httptest.NewRequest(http.MethodPost, "/api/feeds/test",
		strings.NewReader(`{"url": "https://wire.example.com/rss"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.FeedTestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, 2, result.EntryCount)
	require.NotNil(t, result.Title)
	assert.Equal(t, "Wire", *result.Title)
}

func TestTestFeed_FailedFetchReportsStatus(t *testing.T) {
	tester := &fakeTester{outcome: fetch.Outcome{Status: fetch.StatusFailed, HTTPStatus: 503}}
	e := newTestRouter(&fakeFeedStore{}, nil, tester)

	req := httptest.NewRequest(http.MethodPost, "/api/feeds/test",
		strings.NewReader(`{"url": "https://down.example.com/rss"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.FeedTestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 503, result.Status)
	assert.Zero(t, result.EntryCount)
}
