package domain

import "time"

// Decision tags recorded on article source rows.
const (
	DecisionPrimary       = "primary"
	DecisionRecentJaccard = "recent_jaccard"
)

// Article is a canonical, de-duplicated news item. CanonicalID equals the
// article's own ID unless the row was merged into a duplicate cluster.
type Article struct {
	ID           int64     `json:"id"`
	FeedID       *int64    `json:"feedId,omitempty"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Description  *string   `json:"description,omitempty"`
	Language     *string   `json:"language,omitempty"`
	SourceDomain string    `json:"sourceDomain"`
	PublishedAt  time.Time `json:"publishedAt"`
	FetchedAt    time.Time `json:"fetchedAt"`
	CanonicalID  int64     `json:"canonicalId"`
}

// NewArticle is an article candidate produced by the ingestion pipeline
// before it is persisted.
type NewArticle struct {
	FeedID       *int64
	Title        string
	URL          string
	Description  *string
	Language     *string
	SourceDomain string
	PublishedAt  time.Time
}

// ArticleSummary is the slice of an article the similarity judge compares
// candidates against.
type ArticleSummary struct {
	ID           int64
	Title        string
	URL          string
	Description  *string
	SourceDomain string
	PublishedAt  time.Time
}

// ArticleSource records one origin occurrence of a (possibly duplicate)
// article. (ArticleID, SourceURL) is unique.
type ArticleSource struct {
	ID          int64     `json:"id"`
	ArticleID   int64     `json:"articleId"`
	FeedID      *int64    `json:"feedId,omitempty"`
	SourceName  *string   `json:"sourceName,omitempty"`
	SourceURL   string    `json:"sourceUrl"`
	PublishedAt time.Time `json:"publishedAt"`
	InsertedAt  time.Time `json:"insertedAt"`
	Decision    *string   `json:"decision,omitempty"`
	Confidence  *float32  `json:"confidence,omitempty"`
}

// NewSource is an article source row before insertion.
type NewSource struct {
	ArticleID   int64
	FeedID      *int64
	SourceName  *string
	SourceURL   string
	PublishedAt time.Time
	Decision    *string
	Confidence  *float32
}

// ArticleFilter narrows article listings for the admin boundary.
type ArticleFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int64
	Offset int64
}
