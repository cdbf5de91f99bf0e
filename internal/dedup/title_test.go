package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"lowercases", "Fed Raises Rates", "fed raises rates"},
		{"punctuation to spaces", "Fed: raises rates, again!", "fed raises rates again"},
		{"collapses whitespace", "  Fed   raises\trates ", "fed raises rates"},
		{"keeps digits", "Q3 2026 results", "q3 2026 results"},
		{"empty", "—!?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.title))
		})
	}
}

func TestTitleSignature_DropsShortTokens(t *testing.T) {
	normalized, tokens := TitleSignature("A big IPO in the US")

	assert.Equal(t, "a big ipo in the us", normalized)
	assert.Contains(t, tokens, "big")
	assert.Contains(t, tokens, "ipo")
	assert.Contains(t, tokens, "us")
	assert.NotContains(t, tokens, "a")
}

func TestJaccard(t *testing.T) {
	_, a := TitleSignature("fed raises interest rates")
	_, b := TitleSignature("fed raises rates")

	// intersection {fed, raises, rates} = 3, union = 4
	assert.InDelta(t, 0.75, Jaccard(a, b), 1e-6)
	assert.InDelta(t, 1.0, Jaccard(a, a), 1e-6)
	assert.Zero(t, Jaccard(a, map[string]struct{}{}))
	assert.Zero(t, Jaccard(nil, b))
}
