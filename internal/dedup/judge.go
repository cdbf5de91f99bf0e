package dedup

import (
	"sort"
	"time"

	"github.com/DjordjeVuckovic/news-ingest/internal/domain"
)

// Verdict is the outcome band of a similarity classification.
type Verdict int

const (
	// VerdictUnique means no recent article is similar enough to matter.
	VerdictUnique Verdict = iota
	// VerdictLikelyDuplicate means the strict threshold was met.
	VerdictLikelyDuplicate
	// VerdictAmbiguous means the score landed between the two thresholds
	// and a model arbiter may break the tie.
	VerdictAmbiguous
)

// Classification carries the verdict plus the best-matching article when the
// verdict is not Unique.
type Classification struct {
	Verdict   Verdict
	ArticleID int64
	Score     float32
}

// Config holds the operator-tunable knobs of the similarity judge.
type Config struct {
	// StrictThreshold and above is a deterministic duplicate.
	StrictThreshold float32
	// AmbiguousThreshold and above (but below strict) needs arbitration.
	AmbiguousThreshold float32
	// Window bounds how far back candidate articles may have been published.
	Window time.Duration
	// RecentLimit caps the candidate set size.
	RecentLimit int
}

const (
	DefaultStrictThreshold    = 0.9
	DefaultAmbiguousThreshold = 0.6
	DefaultWindow             = 48 * time.Hour
	DefaultRecentLimit        = 100
)

func (c Config) withDefaults() Config {
	if c.StrictThreshold <= 0 {
		c.StrictThreshold = DefaultStrictThreshold
	}
	if c.AmbiguousThreshold <= 0 {
		c.AmbiguousThreshold = DefaultAmbiguousThreshold
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = DefaultRecentLimit
	}
	return c
}

// Candidate is a recent article prepared for comparison.
type Candidate struct {
	ID          int64
	Title       string
	URL         string
	Description *string
	Domain      string
	Tokens      map[string]struct{}
	PublishedAt time.Time
}

// Judge classifies candidate entries against a recent-article window.
type Judge struct {
	cfg Config
}

func NewJudge(cfg Config) *Judge {
	return &Judge{cfg: cfg.withDefaults()}
}

func (j *Judge) Config() Config {
	return j.cfg
}

// Prepare tokenizes recent article summaries; articles whose titles
// normalize to nothing are skipped.
func (j *Judge) Prepare(recent []domain.ArticleSummary) []Candidate {
	candidates := make([]Candidate, 0, len(recent))
	for _, row := range recent {
		_, tokens := TitleSignature(row.Title)
		if len(tokens) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:          row.ID,
			Title:       row.Title,
			URL:         row.URL,
			Description: row.Description,
			Domain:      row.SourceDomain,
			Tokens:      tokens,
			PublishedAt: row.PublishedAt,
		})
	}
	return candidates
}

// Classify compares a candidate token set against the prepared recent set.
// The highest score wins; exact ties prefer the most recently published
// match.
func (j *Judge) Classify(tokens map[string]struct{}, candidates []Candidate) Classification {
	matches := j.Matches(tokens, candidates)
	if len(matches) == 0 {
		return Classification{Verdict: VerdictUnique}
	}
	return matches[0]
}

// Matches returns every candidate scoring at or above the ambiguity
// threshold, best first; exact ties prefer the most recently published
// match. Callers that arbitrate ambiguous entries walk this list.
func (j *Judge) Matches(tokens map[string]struct{}, candidates []Candidate) []Classification {
	type scored struct {
		idx   int
		score float32
	}
	var hits []scored
	for i := range candidates {
		score := Jaccard(tokens, candidates[i].Tokens)
		if score < j.cfg.AmbiguousThreshold {
			continue
		}
		hits = append(hits, scored{idx: i, score: score})
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return candidates[hits[a].idx].PublishedAt.After(candidates[hits[b].idx].PublishedAt)
	})

	matches := make([]Classification, 0, len(hits))
	for _, h := range hits {
		verdict := VerdictAmbiguous
		if h.score >= j.cfg.StrictThreshold {
			verdict = VerdictLikelyDuplicate
		}
		matches = append(matches, Classification{
			Verdict:   verdict,
			ArticleID: candidates[h.idx].ID,
			Score:     h.score,
		})
	}
	return matches
}

// CandidateByID finds a prepared candidate, for building arbiter snippets.
func CandidateByID(candidates []Candidate, id int64) *Candidate {
	for i := range candidates {
		if candidates[i].ID == id {
			return &candidates[i]
		}
	}
	return nil
}
