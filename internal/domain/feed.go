package domain

import "time"

// Feed is a syndication source the scheduler polls.
type Feed struct {
	ID                   int64      `json:"id"`
	URL                  string     `json:"url"`
	Title                *string    `json:"title,omitempty"`
	SiteURL              *string    `json:"siteUrl,omitempty"`
	SourceDomain         string     `json:"sourceDomain"`
	Language             *string    `json:"language,omitempty"`
	Enabled              bool       `json:"enabled"`
	FetchIntervalSeconds int        `json:"fetchIntervalSeconds"`
	LastETag             *string    `json:"lastEtag,omitempty"`
	LastModified         *time.Time `json:"lastModified,omitempty"`
	LastFetchAt          *time.Time `json:"lastFetchAt,omitempty"`
	LastFetchStatus      *int       `json:"lastFetchStatus,omitempty"`
	FailCount            int        `json:"failCount"`
	FilterCondition      *string    `json:"filterCondition,omitempty"`
}

// FeedUpsert carries the admin-supplied fields of a feed. Nil fields keep
// the stored value on conflict.
type FeedUpsert struct {
	URL                  string  `json:"url"`
	Title                *string `json:"title,omitempty"`
	SiteURL              *string `json:"siteUrl,omitempty"`
	SourceDomain         string  `json:"sourceDomain"`
	Language             *string `json:"language,omitempty"`
	Enabled              *bool   `json:"enabled,omitempty"`
	FetchIntervalSeconds *int    `json:"fetchIntervalSeconds,omitempty"`
	FilterCondition      *string `json:"filterCondition,omitempty"`
}

// FeedTestResult is what a dry-run fetch of a candidate feed URL reports.
type FeedTestResult struct {
	Status     int     `json:"status"`
	Title      *string `json:"title,omitempty"`
	SiteURL    *string `json:"siteUrl,omitempty"`
	EntryCount int     `json:"entryCount"`
}
