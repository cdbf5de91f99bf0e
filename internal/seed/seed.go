// Package seed upserts an operator-maintained list of feeds at startup, so a
// fresh deployment starts polling without manual API calls.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
	"github.com/DjordjeVuckovic/news-ingest/internal/urlnorm"
)

// FeedStore is the persistence surface seeding needs.
type FeedStore interface {
	UpsertFeed(ctx context.Context, record domain.FeedUpsert) (domain.Feed, error)
}

type Feed struct {
	URL                  string  `yaml:"url"`
	Title                *string `yaml:"title,omitempty"`
	Language             *string `yaml:"language,omitempty"`
	Enabled              *bool   `yaml:"enabled,omitempty"`
	FetchIntervalSeconds *int    `yaml:"fetch_interval_seconds,omitempty"`
	FilterCondition      *string `yaml:"filter_condition,omitempty"`
}

type file struct {
	Feeds []Feed `yaml:"feeds"`
}

// Load reads the seed file. A missing path is not an error; seeding is
// optional.
func Load(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("no seed feeds file, skipping", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return f.Feeds, nil
}

// Apply upserts every seed feed. A bad entry is logged and skipped; the rest
// still get seeded.
func Apply(ctx context.Context, store FeedStore, feeds []Feed) error {
	for _, f := range feeds {
		if f.URL == "" {
			slog.Warn("seed feed without url, skipping")
			continue
		}
		canonical, sourceDomain, err := urlnorm.Normalize(f.URL)
		if err != nil {
			slog.Warn("seed feed has invalid url, skipping", "url", f.URL, "error", err)
			continue
		}

		record := domain.FeedUpsert{
			URL:                  canonical,
			Title:                f.Title,
			SourceDomain:         sourceDomain,
			Language:             f.Language,
			Enabled:              f.Enabled,
			FetchIntervalSeconds: f.FetchIntervalSeconds,
			FilterCondition:      f.FilterCondition,
		}
		if _, err := store.UpsertFeed(ctx, record); err != nil {
			return fmt.Errorf("failed to seed feed %s: %w", canonical, err)
		}
		slog.Info("seeded feed", "url", canonical)
	}
	return nil
}
