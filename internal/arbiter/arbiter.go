// Package arbiter asks a language model whether two news items describe the
// same event. It is the tie-breaker for ambiguous similarity scores; callers
// must treat every error as "no opinion" and fall back to Unique.
package arbiter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider names accepted by the settings store.
const (
	ProviderDeepseek = "deepseek"
	ProviderOllama   = "ollama"
)

// Snippet is the compact article view embedded in the judgment prompt.
type Snippet struct {
	Title       string
	Source      string
	URL         string
	PublishedAt string
	Summary     string
}

// Decision is the model's verdict on one candidate/existing pair.
type Decision struct {
	IsDuplicate bool     `json:"is_duplicate"`
	Reason      string   `json:"reason,omitempty"`
	Confidence  *float32 `json:"confidence,omitempty"`
}

// Client is one interchangeable arbiter provider.
type Client interface {
	// JudgeSimilarity compares a new candidate against an existing article.
	JudgeSimilarity(ctx context.Context, candidate, existing Snippet) (*Decision, error)
	// Probe checks connectivity with the provider's cheapest request.
	Probe(ctx context.Context) error
	// Name returns the provider name.
	Name() string
}

const systemPrompt = "You are a news comparison assistant. Decide whether two news items " +
	"report the same event. Respond with JSON only, with fields is_duplicate (bool), " +
	"reason (short string) and confidence (number between 0 and 1)."

func buildPrompt(candidate, existing Snippet) string {
	var b strings.Builder
	b.WriteString("Compare the two news items below and decide whether they describe the same event.\n")
	b.WriteString("Answer with a single JSON object {\"is_duplicate\": bool, \"reason\": string, \"confidence\": number} and nothing else.\n\n")
	writeSnippet(&b, "News A (new)", candidate)
	writeSnippet(&b, "News B (existing)", existing)
	return b.String()
}

func writeSnippet(b *strings.Builder, label string, s Snippet) {
	fmt.Fprintf(b, "%s\nTitle: %s\n", label, s.Title)
	if s.Source != "" {
		fmt.Fprintf(b, "Source: %s\n", s.Source)
	}
	if s.URL != "" {
		fmt.Fprintf(b, "URL: %s\n", s.URL)
	}
	if s.PublishedAt != "" {
		fmt.Fprintf(b, "Published: %s\n", s.PublishedAt)
	}
	if s.Summary != "" {
		fmt.Fprintf(b, "Summary: %s\n", s.Summary)
	}
	b.WriteString("\n")
}

// ParseDecision extracts the JSON decision from model output, tolerating
// markdown code fences around it.
func ParseDecision(content string) (*Decision, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var decision Decision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		return nil, fmt.Errorf("failed to parse arbiter decision from %q: %w", content, err)
	}
	return &decision, nil
}
