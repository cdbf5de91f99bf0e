package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DjordjeVuckovic/news-ingest/internal/arbiter"
	"github.com/DjordjeVuckovic/news-ingest/internal/dedup"
	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
	"github.com/DjordjeVuckovic/news-ingest/internal/events"
	"github.com/DjordjeVuckovic/news-ingest/internal/settings"
	"github.com/DjordjeVuckovic/news-ingest/internal/translate"
)

type fakeStore struct {
	recent      []domain.ArticleSummary
	knownURLs   map[string]int64
	nextID      int64
	articles    []domain.NewArticle
	sources     []domain.NewSource
	insertErrOn string
}

func newFakeStore() *fakeStore {
	return &fakeStore{knownURLs: map[string]int64{}, nextID: 1000}
}

func (f *fakeStore) FindArticleBySourceURL(_ context.Context, sourceURL string) (int64, bool, error) {
	id, ok := f.knownURLs[sourceURL]
	return id, ok, nil
}

func (f *fakeStore) ListRecentArticles(_ context.Context, _ time.Duration, _ int) ([]domain.ArticleSummary, error) {
	return f.recent, nil
}

func (f *fakeStore) InsertArticleWithSource(_ context.Context, article domain.NewArticle, _ *string) (int64, error) {
	if f.insertErrOn != "" && strings.Contains(article.URL, f.insertErrOn) {
		return 0, errors.New("insert boom")
	}
	f.nextID++
	f.articles = append(f.articles, article)
	f.knownURLs[article.URL] = f.nextID
	return f.nextID, nil
}

func (f *fakeStore) InsertSource(_ context.Context, record domain.NewSource) error {
	f.sources = append(f.sources, record)
	f.knownURLs[record.SourceURL] = record.ArticleID
	return nil
}

func (f *fakeStore) ApplyFilterCondition(_ context.Context, _ int64, _ string) (int64, error) {
	return 0, nil
}

type noTranslator struct{}

func (noTranslator) Translate(context.Context, string, string) (*translate.Result, error) {
	return nil, nil
}

type fixedAISettings struct {
	ai  settings.AIDedup
	err error
}

func (f fixedAISettings) AIDedup(context.Context) (settings.AIDedup, error) {
	return f.ai, f.err
}

type scriptedArbiter struct {
	decisions []*arbiter.Decision
	err       error
	calls     int
}

func (s *scriptedArbiter) JudgeSimilarity(context.Context, arbiter.Snippet, arbiter.Snippet) (*arbiter.Decision, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	d := s.decisions[0]
	if len(s.decisions) > 1 {
		s.decisions = s.decisions[1:]
	}
	return d, nil
}

func (s *scriptedArbiter) Probe(context.Context) error { return s.err }
func (s *scriptedArbiter) Name() string                { return "scripted" }

type fixedArbiters struct {
	client arbiter.Client
	err    error
}

func (f fixedArbiters) ArbiterFor(string) (arbiter.Client, error) {
	return f.client, f.err
}

type captureEmitter struct {
	emitted []events.Event
}

func (c *captureEmitter) Emit(ev events.Event) {
	c.emitted = append(c.emitted, ev)
}

func (c *captureEmitter) codes() []string {
	var out []string
	for _, ev := range c.emitted {
		out = append(out, ev.Code)
	}
	return out
}

func rssBody(items ...string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<rss version="2.0"><channel><title>Wire</title><link>https://wire.example.com</link>`)
	for _, item := range items {
		b.WriteString(item)
	}
	b.WriteString(`</channel></rss>`)
	return []byte(b.String())
}

func rssItem(title, link string) string {
	return fmt.Sprintf(
		`<item><title>%s</title><link>%s</link><pubDate>Mon, 17 Aug 2026 09:00:00 +0000</pubDate></item>`,
		title, link)
}

func testFeed() domain.Feed {
	title := "Wire"
	return domain.Feed{ID: 7, URL: "https://wire.example.com/rss", Title: &title, SourceDomain: "wire.example.com"}
}

func newTestEngine(store Store, ai settings.AIDedup, arbiters ArbiterFactory, emitter EventEmitter) *Engine {
	if arbiters == nil {
		arbiters = fixedArbiters{err: errors.New("no arbiter configured")}
	}
	if emitter == nil {
		emitter = &captureEmitter{}
	}
	return NewEngine(
		store,
		dedup.NewJudge(dedup.Config{}),
		noTranslator{},
		fixedAISettings{ai: ai},
		arbiters,
		emitter,
		Config{},
	)
}

func recentSummary(id int64, title string) domain.ArticleSummary {
	return domain.ArticleSummary{
		ID:           id,
		Title:        title,
		URL:          fmt.Sprintf("https://old.example.com/%d", id),
		SourceDomain: "old.example.com",
		PublishedAt:  time.Now().Add(-2 * time.Hour),
	}
}

func TestProcess_NewUniqueArticle(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Volcano erupts in Iceland overnight", "https://wire.example.com/volcano?utm_source=rss")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Entries)
	assert.Equal(t, 1, summary.NewArticles)
	require.Len(t, store.articles, 1)
	assert.Equal(t, "https://wire.example.com/volcano", store.articles[0].URL,
		"tracking params must be stripped before persisting")
	assert.Equal(t, "wire.example.com", store.articles[0].SourceDomain)
}

func TestProcess_ExactURLAlreadyKnown(t *testing.T) {
	store := newFakeStore()
	store.knownURLs["https://wire.example.com/volcano"] = 42
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Volcano erupts in Iceland overnight", "https://wire.example.com/volcano")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AlreadyKnown)
	assert.Zero(t, summary.NewArticles)
	assert.Empty(t, store.articles)
	assert.Empty(t, store.sources)
}

func TestProcess_StrictDuplicateLinksSource(t *testing.T) {
	store := newFakeStore()
	store.recent = []domain.ArticleSummary{recentSummary(42, "Volcano erupts in Iceland overnight")}
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Volcano Erupts in Iceland Overnight!", "https://wire.example.com/volcano")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Linked)
	assert.Zero(t, summary.NewArticles)
	require.Len(t, store.sources, 1)
	assert.Equal(t, int64(42), store.sources[0].ArticleID)
	require.NotNil(t, store.sources[0].Decision)
	assert.Equal(t, domain.DecisionRecentJaccard, *store.sources[0].Decision)
	require.NotNil(t, store.sources[0].Confidence)
	assert.InDelta(t, 1.0, *store.sources[0].Confidence, 0.001)
}

func TestProcess_AmbiguousWithoutAIInsertsNew(t *testing.T) {
	store := newFakeStore()
	store.recent = []domain.ArticleSummary{recentSummary(42, "Fed raises interest rates today")}
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Fed raises interest rates again", "https://wire.example.com/fed")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewArticles, "ambiguous without an arbiter must stay unique")
	assert.Empty(t, store.sources)
}

func TestProcess_AmbiguousArbiterSaysDuplicate(t *testing.T) {
	store := newFakeStore()
	store.recent = []domain.ArticleSummary{recentSummary(42, "Fed raises interest rates today")}

	conf := float32(0.85)
	arb := &scriptedArbiter{decisions: []*arbiter.Decision{
		{IsDuplicate: true, Reason: "same rate decision", Confidence: &conf},
	}}
	ai := settings.AIDedup{
		Enabled:    true,
		Provider:   arbiter.ProviderOllama,
		Thresholds: settings.Thresholds{MaxChecks: 3},
	}
	engine := newTestEngine(store, ai, fixedArbiters{client: arb}, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Fed raises interest rates again", "https://wire.example.com/fed")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Linked)
	assert.Zero(t, summary.NewArticles)
	require.Len(t, store.sources, 1)
	require.NotNil(t, store.sources[0].Decision)
	assert.Equal(t, "same rate decision", *store.sources[0].Decision)
	assert.Equal(t, 1, arb.calls)
}

func TestProcess_AmbiguousArbiterSaysUnique(t *testing.T) {
	store := newFakeStore()
	store.recent = []domain.ArticleSummary{recentSummary(42, "Fed raises interest rates today")}

	arb := &scriptedArbiter{decisions: []*arbiter.Decision{{IsDuplicate: false}}}
	ai := settings.AIDedup{
		Enabled:    true,
		Provider:   arbiter.ProviderOllama,
		Thresholds: settings.Thresholds{MaxChecks: 3},
	}
	engine := newTestEngine(store, ai, fixedArbiters{client: arb}, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Fed raises interest rates again", "https://wire.example.com/fed")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewArticles)
	assert.Empty(t, store.sources)
}

func TestProcess_ArbiterFailureDegradesToUnique(t *testing.T) {
	store := newFakeStore()
	store.recent = []domain.ArticleSummary{recentSummary(42, "Fed raises interest rates today")}

	arb := &scriptedArbiter{err: errors.New("connection refused")}
	ai := settings.AIDedup{
		Enabled:    true,
		Provider:   arbiter.ProviderDeepseek,
		Thresholds: settings.Thresholds{MaxChecks: 3},
	}
	emitter := &captureEmitter{}
	engine := newTestEngine(store, ai, fixedArbiters{client: arb}, emitter)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Fed raises interest rates again", "https://wire.example.com/fed")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewArticles, "a failing arbiter must not drop the entry")
	assert.Contains(t, emitter.codes(), events.CodeProviderUnavailable)
}

func TestProcess_ArbiterCappedAtMaxChecks(t *testing.T) {
	store := newFakeStore()
	store.recent = []domain.ArticleSummary{
		recentSummary(41, "Fed raises interest rates today"),
		recentSummary(42, "Fed raises interest rates slowly"),
		recentSummary(43, "Fed raises interest rates sharply"),
		recentSummary(44, "Fed raises interest rates quietly"),
	}

	arb := &scriptedArbiter{decisions: []*arbiter.Decision{{IsDuplicate: false}}}
	ai := settings.AIDedup{
		Enabled:    true,
		Provider:   arbiter.ProviderOllama,
		Thresholds: settings.Thresholds{MaxChecks: 2},
	}
	engine := newTestEngine(store, ai, fixedArbiters{client: arb}, nil)

	_, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Fed raises interest rates again", "https://wire.example.com/fed")))
	require.NoError(t, err)

	assert.Equal(t, 2, arb.calls)
}

func TestProcess_IntraBatchURLDuplicate(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(
			rssItem("Volcano erupts in Iceland overnight", "https://wire.example.com/volcano"),
			rssItem("Volcano erupts again", "https://wire.example.com/volcano?utm_medium=feed"),
		))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewArticles)
	assert.Equal(t, 1, summary.IntraBatchDups)
}

func TestProcess_IntraBatchTitleDuplicate(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(
			rssItem("Volcano erupts in Iceland overnight", "https://wire.example.com/volcano-1"),
			rssItem("Volcano Erupts In Iceland Overnight", "https://wire.example.com/volcano-2"),
		))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewArticles)
	assert.Equal(t, 1, summary.IntraBatchDups)
}

func TestProcess_NewArticleBecomesCandidate(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)

	// Second title shares 5 of 5 tokens with the first after normalization
	// suffix differences, so it must link against the article inserted
	// moments earlier in the same batch.
	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(
			rssItem("Volcano erupts in southern Iceland overnight", "https://wire.example.com/volcano-1"),
			rssItem("Volcano erupts: in southern Iceland, overnight", "https://wire.example.com/volcano-2"),
		))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewArticles)
	assert.Equal(t, 1, summary.IntraBatchDups+summary.Linked,
		"the near-identical second entry must not create a second article")
}

func TestProcess_InvalidURLSkipped(t *testing.T) {
	store := newFakeStore()
	emitter := &captureEmitter{}
	engine := newTestEngine(store, settings.AIDedup{}, nil, emitter)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(rssItem("Volcano erupts", "ftp://wire.example.com/volcano")))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedInvalid)
	assert.Contains(t, emitter.codes(), events.CodeURLNormalizeFailed)
}

func TestProcess_EntryIsolation(t *testing.T) {
	store := newFakeStore()
	store.insertErrOn = "broken"
	emitter := &captureEmitter{}
	engine := newTestEngine(store, settings.AIDedup{}, nil, emitter)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(),
		rssBody(
			rssItem("Completely unrelated story one", "https://wire.example.com/broken-item"),
			rssItem("Another different headline entirely", "https://wire.example.com/fine-item"),
		))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.NewArticles, "a failing entry must not abort the rest")
	assert.Contains(t, emitter.codes(), events.CodeFeedProcessFailed)
}

func TestProcess_MalformedBodyFails(t *testing.T) {
	engine := newTestEngine(newFakeStore(), settings.AIDedup{}, nil, nil)

	_, err := engine.ProcessFeedDocument(context.Background(), testFeed(), []byte("not a feed"))
	assert.Error(t, err)
}

func TestProcess_EmptyFeed(t *testing.T) {
	engine := newTestEngine(newFakeStore(), settings.AIDedup{}, nil, nil)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(), rssBody())
	require.NoError(t, err)
	assert.Zero(t, summary.Entries)
}

func TestProcess_ReingestIdempotent(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(store, settings.AIDedup{}, nil, nil)
	body := rssBody(rssItem("Volcano erupts in Iceland overnight", "https://wire.example.com/volcano"))

	_, err := engine.ProcessFeedDocument(context.Background(), testFeed(), body)
	require.NoError(t, err)

	summary, err := engine.ProcessFeedDocument(context.Background(), testFeed(), body)
	require.NoError(t, err)

	assert.Zero(t, summary.NewArticles)
	assert.Equal(t, 1, summary.AlreadyKnown)
	assert.Len(t, store.articles, 1, "re-ingesting the same document must not duplicate")
}
