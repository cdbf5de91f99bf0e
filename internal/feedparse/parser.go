// Package feedparse converts raw RSS/Atom bytes into normalized entries.
package feedparse

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
)

// Parse converts a feed document into normalized entries. A document that
// parses to zero entries is an empty batch, not an error. Entries without a
// usable title or link are dropped.
func Parse(data []byte) (*domain.FeedDocument, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed document: %w", err)
	}

	doc := &domain.FeedDocument{}
	if title := strings.TrimSpace(parsed.Title); title != "" {
		doc.Title = &title
	}
	if link := strings.TrimSpace(parsed.Link); link != "" {
		doc.SiteURL = &link
	}

	for _, item := range parsed.Items {
		entry, ok := convertItem(parsed, item)
		if !ok {
			continue
		}
		doc.Entries = append(doc.Entries, entry)
	}

	return doc, nil
}

func convertItem(feed *gofeed.Feed, item *gofeed.Item) (domain.RawEntry, bool) {
	title := html.UnescapeString(strings.TrimSpace(item.Title))
	if title == "" {
		return domain.RawEntry{}, false
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if link == "" {
		return domain.RawEntry{}, false
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	summary = html.UnescapeString(StripHTML(strings.TrimSpace(summary)))

	// published first, updated second, fetch time as the last resort,
	// always in UTC.
	publishedAt := time.Now().UTC()
	switch {
	case item.PublishedParsed != nil:
		publishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		publishedAt = item.UpdatedParsed.UTC()
	}

	return domain.RawEntry{
		Title:       title,
		Link:        link,
		Summary:     summary,
		Language:    strings.TrimSpace(feed.Language),
		GUID:        strings.TrimSpace(item.GUID),
		PublishedAt: publishedAt,
	}, true
}
