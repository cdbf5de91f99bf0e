// Package events is the best-effort operational event channel. Emission
// never blocks or fails the originating operation: a full buffer drops the
// event with a local log line.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Stable event codes consumed by the notification collaborator.
const (
	CodeFeedLoopExit        = "feed_loop_exit"
	CodeFeedProcessFailed   = "feed_process_failed"
	CodeFetchFailureMarked  = "fetch_failure_marked"
	CodeImmediateFetchFail  = "immediate_fetch_failed"
	CodeProviderUnavailable = "provider_unavailable"
	CodeURLNormalizeFailed  = "url_normalize_failed"
	CodeInternalError       = "internal_error"
)

// Severity levels, low to high.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is one structured operational occurrence.
type Event struct {
	TS         time.Time
	Severity   string
	Code       string
	Title      string
	Message    string
	FeedID     *int64
	URL        string
	Provider   string
	HTTPStatus int
	TraceID    uuid.UUID
}
