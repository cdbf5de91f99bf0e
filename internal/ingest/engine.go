// Package ingest turns one fetched feed document into canonical articles and
// duplicate links. Entries are processed independently: one bad entry never
// fails the rest of the document.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DjordjeVuckovic/news-ingest/internal/arbiter"
	"github.com/DjordjeVuckovic/news-ingest/internal/dedup"
	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
	"github.com/DjordjeVuckovic/news-ingest/internal/events"
	"github.com/DjordjeVuckovic/news-ingest/internal/feedparse"
	"github.com/DjordjeVuckovic/news-ingest/internal/settings"
	"github.com/DjordjeVuckovic/news-ingest/internal/translate"
	"github.com/DjordjeVuckovic/news-ingest/internal/urlnorm"
)

// Store is the persistence surface the engine needs.
type Store interface {
	FindArticleBySourceURL(ctx context.Context, sourceURL string) (int64, bool, error)
	ListRecentArticles(ctx context.Context, window time.Duration, limit int) ([]domain.ArticleSummary, error)
	InsertArticleWithSource(ctx context.Context, article domain.NewArticle, sourceName *string) (int64, error)
	InsertSource(ctx context.Context, record domain.NewSource) error
	ApplyFilterCondition(ctx context.Context, feedID int64, condition string) (int64, error)
}

// Translator renders entry text into the target language; a nil result means
// translation was skipped.
type Translator interface {
	Translate(ctx context.Context, title, description string) (*translate.Result, error)
}

// AISettings exposes the runtime AI-dedup configuration.
type AISettings interface {
	AIDedup(ctx context.Context) (settings.AIDedup, error)
}

// ArbiterFactory builds a similarity arbiter for the configured provider.
type ArbiterFactory interface {
	ArbiterFor(provider string) (arbiter.Client, error)
}

// EventEmitter is the best-effort operational event channel.
type EventEmitter interface {
	Emit(ev events.Event)
}

const defaultArbiterTimeout = 10 * time.Second

type Config struct {
	// ArbiterTimeout bounds each model arbitration call.
	ArbiterTimeout time.Duration
}

// Summary reports what happened to one processed feed document.
type Summary struct {
	FeedTitle      *string
	SiteURL        *string
	Entries        int
	NewArticles    int
	Linked         int
	AlreadyKnown   int
	IntraBatchDups int
	SkippedInvalid int
	Failed         int
}

type Engine struct {
	store      Store
	judge      *dedup.Judge
	translator Translator
	aiSettings AISettings
	arbiters   ArbiterFactory
	emitter    EventEmitter
	cfg        Config
}

func NewEngine(
	store Store,
	judge *dedup.Judge,
	translator Translator,
	aiSettings AISettings,
	arbiters ArbiterFactory,
	emitter EventEmitter,
	cfg Config,
) *Engine {
	if cfg.ArbiterTimeout <= 0 {
		cfg.ArbiterTimeout = defaultArbiterTimeout
	}
	return &Engine{
		store:      store,
		judge:      judge,
		translator: translator,
		aiSettings: aiSettings,
		arbiters:   arbiters,
		emitter:    emitter,
		cfg:        cfg,
	}
}

// batchState tracks what this document has already produced, so a feed that
// repeats an item inside one fetch does not produce duplicates.
type batchState struct {
	seenURLs   map[string]struct{}
	seenTitles map[string]struct{}
}

// ProcessFeedDocument parses the fetched body and runs every entry through
// the dedup pipeline. A parse failure is the only error that fails the whole
// document.
func (e *Engine) ProcessFeedDocument(ctx context.Context, feed domain.Feed, body []byte) (*Summary, error) {
	doc, err := feedparse.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %d: %w", feed.ID, err)
	}

	summary := &Summary{
		FeedTitle: doc.Title,
		SiteURL:   doc.SiteURL,
		Entries:   len(doc.Entries),
	}
	if len(doc.Entries) == 0 {
		return summary, nil
	}

	ai := e.loadAISettings(ctx)

	judgeCfg := e.judge.Config()
	recent, err := e.store.ListRecentArticles(ctx, judgeCfg.Window, judgeCfg.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent articles for feed %d: %w", feed.ID, err)
	}
	candidates := e.judge.Prepare(recent)

	batch := &batchState{
		seenURLs:   make(map[string]struct{}),
		seenTitles: make(map[string]struct{}),
	}

	for _, entry := range doc.Entries {
		added, err := e.processEntry(ctx, feed, entry, ai, candidates, batch, summary)
		if err != nil {
			summary.Failed++
			slog.Error("entry processing failed",
				"feed_id", feed.ID, "url", entry.Link, "error", err)
			e.emitter.Emit(events.Event{
				Severity: events.SeverityWarning,
				Code:     events.CodeFeedProcessFailed,
				Title:    "entry processing failed",
				Message:  err.Error(),
				FeedID:   &feed.ID,
				URL:      entry.Link,
			})
			continue
		}
		if added != nil {
			candidates = append(candidates, *added)
		}
	}

	e.applyFilter(ctx, feed)
	return summary, nil
}

// loadAISettings degrades to disabled when the settings read fails; dedup
// falls back to the deterministic thresholds alone.
func (e *Engine) loadAISettings(ctx context.Context) settings.AIDedup {
	ai, err := e.aiSettings.AIDedup(ctx)
	if err != nil {
		slog.Warn("failed to load ai dedup settings, arbitration disabled", "error", err)
		return settings.AIDedup{}
	}
	return ai
}

func (e *Engine) processEntry(
	ctx context.Context,
	feed domain.Feed,
	entry domain.RawEntry,
	ai settings.AIDedup,
	candidates []dedup.Candidate,
	batch *batchState,
	summary *Summary,
) (*dedup.Candidate, error) {
	title := strings.TrimSpace(entry.Title)
	if title == "" || entry.Link == "" {
		summary.SkippedInvalid++
		return nil, nil
	}

	canonicalURL, sourceDomain, err := urlnorm.Normalize(entry.Link)
	if err != nil {
		summary.SkippedInvalid++
		e.emitter.Emit(events.Event{
			Severity: events.SeverityWarning,
			Code:     events.CodeURLNormalizeFailed,
			Title:    "url normalization failed",
			Message:  err.Error(),
			FeedID:   &feed.ID,
			URL:      entry.Link,
		})
		return nil, nil
	}

	if _, dup := batch.seenURLs[canonicalURL]; dup {
		summary.IntraBatchDups++
		return nil, nil
	}
	batch.seenURLs[canonicalURL] = struct{}{}

	description := strings.TrimSpace(entry.Summary)
	title, description = e.translateEntry(ctx, title, description)

	signature, tokens := dedup.TitleSignature(title)
	if signature != "" {
		if _, dup := batch.seenTitles[signature]; dup {
			summary.IntraBatchDups++
			return nil, nil
		}
		batch.seenTitles[signature] = struct{}{}
	}

	// Exact URL match: the article is already known, re-linking the same
	// source row would be a no-op anyway.
	if _, found, err := e.store.FindArticleBySourceURL(ctx, canonicalURL); err != nil {
		return nil, err
	} else if found {
		summary.AlreadyKnown++
		return nil, nil
	}

	var matches []dedup.Classification
	if len(tokens) > 0 {
		matches = e.judge.Matches(tokens, candidates)
	}

	if len(matches) > 0 && matches[0].Verdict == dedup.VerdictLikelyDuplicate {
		score := matches[0].Score
		decision := domain.DecisionRecentJaccard
		if err := e.linkDuplicate(ctx, feed, entry, canonicalURL, matches[0].ArticleID, decision, &score); err != nil {
			return nil, err
		}
		summary.Linked++
		return nil, nil
	}

	if len(matches) > 0 && ai.Enabled && ai.Provider != "" {
		linked, err := e.arbitrate(ctx, feed, entry, title, description, canonicalURL, ai, matches, candidates)
		if err != nil {
			return nil, err
		}
		if linked {
			summary.Linked++
			return nil, nil
		}
	}

	return e.insertNew(ctx, feed, entry, title, description, canonicalURL, sourceDomain, tokens, summary)
}

// translateEntry is best-effort: any failure keeps the original text.
func (e *Engine) translateEntry(ctx context.Context, title, description string) (string, string) {
	res, err := e.translator.Translate(ctx, title, description)
	if err != nil {
		slog.Warn("translation failed, keeping original text", "error", err)
		return title, description
	}
	if res == nil {
		return title, description
	}
	out := res.Title
	if strings.TrimSpace(out) == "" {
		out = title
	}
	desc := description
	if res.Description != "" {
		desc = res.Description
	}
	return out, desc
}

// arbitrate asks the model about ambiguous matches, best first, capped at the
// configured number of checks. Any provider failure degrades to Unique:
// a duplicate article is recoverable, a silently dropped one is not.
func (e *Engine) arbitrate(
	ctx context.Context,
	feed domain.Feed,
	entry domain.RawEntry,
	title, description, canonicalURL string,
	ai settings.AIDedup,
	matches []dedup.Classification,
	candidates []dedup.Candidate,
) (bool, error) {
	client, err := e.arbiters.ArbiterFor(ai.Provider)
	if err != nil {
		e.emitProviderUnavailable(feed.ID, ai.Provider, err)
		return false, nil
	}

	checks := ai.Thresholds.MaxChecks
	if checks <= 0 {
		checks = 3
	}
	if checks > len(matches) {
		checks = len(matches)
	}

	newSnippet := arbiter.Snippet{
		Title:       title,
		Source:      feed.SourceDomain,
		URL:         canonicalURL,
		PublishedAt: entry.PublishedAt.Format(time.RFC3339),
		Summary:     description,
	}

	for _, match := range matches[:checks] {
		existing := dedup.CandidateByID(candidates, match.ArticleID)
		if existing == nil {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.ArbiterTimeout)
		decision, err := client.JudgeSimilarity(callCtx, newSnippet, snippetFor(existing))
		cancel()
		if err != nil {
			e.emitProviderUnavailable(feed.ID, ai.Provider, err)
			return false, nil
		}
		if !decision.IsDuplicate {
			continue
		}

		reason := strings.TrimSpace(decision.Reason)
		if reason == "" {
			reason = "llm_" + ai.Provider
		}
		if err := e.linkDuplicate(ctx, feed, entry, canonicalURL, match.ArticleID, reason, decision.Confidence); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func snippetFor(c *dedup.Candidate) arbiter.Snippet {
	s := arbiter.Snippet{
		Title:       c.Title,
		Source:      c.Domain,
		URL:         c.URL,
		PublishedAt: c.PublishedAt.Format(time.RFC3339),
	}
	if c.Description != nil {
		s.Summary = *c.Description
	}
	return s
}

func (e *Engine) linkDuplicate(
	ctx context.Context,
	feed domain.Feed,
	entry domain.RawEntry,
	canonicalURL string,
	articleID int64,
	decision string,
	confidence *float32,
) error {
	return e.store.InsertSource(ctx, domain.NewSource{
		ArticleID:   articleID,
		FeedID:      &feed.ID,
		SourceName:  feed.Title,
		SourceURL:   canonicalURL,
		PublishedAt: entry.PublishedAt,
		Decision:    &decision,
		Confidence:  confidence,
	})
}

func (e *Engine) insertNew(
	ctx context.Context,
	feed domain.Feed,
	entry domain.RawEntry,
	title, description, canonicalURL, sourceDomain string,
	tokens map[string]struct{},
	summary *Summary,
) (*dedup.Candidate, error) {
	article := domain.NewArticle{
		FeedID:       &feed.ID,
		Title:        title,
		URL:          canonicalURL,
		SourceDomain: sourceDomain,
		PublishedAt:  entry.PublishedAt,
	}
	if description != "" {
		article.Description = &description
	}
	if entry.Language != "" {
		article.Language = &entry.Language
	} else if feed.Language != nil {
		article.Language = feed.Language
	}

	id, err := e.store.InsertArticleWithSource(ctx, article, feed.Title)
	if err != nil {
		return nil, err
	}
	summary.NewArticles++

	if len(tokens) == 0 {
		return nil, nil
	}
	return &dedup.Candidate{
		ID:          id,
		Title:       title,
		URL:         canonicalURL,
		Description: article.Description,
		Domain:      sourceDomain,
		Tokens:      tokens,
		PublishedAt: entry.PublishedAt,
	}, nil
}

// applyFilter runs the feed's content filter predicate over the just-inserted
// articles. Failures are logged, never fatal to the cycle.
func (e *Engine) applyFilter(ctx context.Context, feed domain.Feed) {
	if feed.FilterCondition == nil || strings.TrimSpace(*feed.FilterCondition) == "" {
		return
	}
	removed, err := e.store.ApplyFilterCondition(ctx, feed.ID, *feed.FilterCondition)
	if err != nil {
		slog.Warn("filter condition failed", "feed_id", feed.ID, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("filter condition removed articles", "feed_id", feed.ID, "removed", removed)
	}
}

func (e *Engine) emitProviderUnavailable(feedID int64, provider string, err error) {
	slog.Warn("arbiter unavailable, treating entry as unique",
		"feed_id", feedID, "provider", provider, "error", err)
	e.emitter.Emit(events.Event{
		Severity: events.SeverityWarning,
		Code:     events.CodeProviderUnavailable,
		Title:    "similarity arbiter unavailable",
		Message:  err.Error(),
		FeedID:   &feedID,
		Provider: provider,
	})
}
