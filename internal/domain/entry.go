package domain

import "time"

// RawEntry is a single normalized entry parsed out of a feed document.
type RawEntry struct {
	Title       string
	Link        string
	Summary     string
	Language    string
	GUID        string
	PublishedAt time.Time
}

// FeedDocument is the parsed feed plus the metadata used to refresh the
// owning feed's title and site URL after a successful fetch.
type FeedDocument struct {
	Title   *string
	SiteURL *string
	Entries []RawEntry
}
