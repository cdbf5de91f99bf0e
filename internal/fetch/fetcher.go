// Package fetch retrieves feed documents over HTTP with conditional-request
// etiquette. Failures are returned as a discriminated outcome, never as a
// panic or an error that crosses the ingestion boundary.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
)

const userAgent = "NewsIngestFetcher/0.1"

// Status discriminates the fetch outcome.
type Status int

const (
	// StatusModified means a fresh document body was retrieved.
	StatusModified Status = iota
	// StatusNotModified means the server answered 304 to our validators.
	StatusNotModified
	// StatusFailed covers network errors, timeouts and non-2xx statuses.
	StatusFailed
)

// Outcome is the result of one fetch attempt. HTTPStatus is 0 when the
// request never reached a response.
type Outcome struct {
	Status       Status
	HTTPStatus   int
	Body         []byte
	ETag         *string
	LastModified *time.Time
	Err          error
}

type Config struct {
	Timeout time.Duration
}

type Fetcher struct {
	client *http.Client
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client, e.g. for proxy setups or tests.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

func New(cfg Config, opts ...Option) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	f := &Fetcher{
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the feed's document, sending stored ETag/Last-Modified as
// conditional headers.
func (f *Fetcher) Fetch(ctx context.Context, feed domain.Feed) Outcome {
	return f.FetchURL(ctx, feed.URL, feed.LastETag, feed.LastModified)
}

// FetchURL is the feed-independent form, also used by the admin test-fetch
// endpoint.
func (f *Fetcher) FetchURL(ctx context.Context, url string, etag *string, lastModified *time.Time) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if etag != nil && *etag != "" {
		req.Header.Set("If-None-Match", *etag)
	}
	if lastModified != nil {
		req.Header.Set("If-Modified-Since", lastModified.UTC().Format(http.TimeFormat))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return Outcome{Status: StatusNotModified, HTTPStatus: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Outcome{
			Status:     StatusFailed,
			HTTPStatus: resp.StatusCode,
			Err:        &StatusError{Code: resp.StatusCode},
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Status: StatusFailed, HTTPStatus: resp.StatusCode, Err: err}
	}

	outcome := Outcome{Status: StatusModified, HTTPStatus: resp.StatusCode, Body: body}
	if v := strings.TrimSpace(resp.Header.Get("ETag")); v != "" {
		outcome.ETag = &v
	}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		if ts, err := http.ParseTime(v); err == nil {
			utc := ts.UTC()
			outcome.LastModified = &utc
		}
	}
	return outcome
}

// StatusError reports a non-2xx, non-304 HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}
