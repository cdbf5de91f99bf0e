// Package dedup decides whether an incoming article duplicates one already
// stored, using normalized-title token overlap with a deterministic strict
// band, an ambiguous middle band, and a unique band below.
package dedup

import (
	"strings"
	"unicode"
)

// NormalizeTitle lowercases a title, replaces punctuation with spaces and
// collapses runs of whitespace.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	spacePending := false

	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			spacePending = false
		} else if !spacePending {
			b.WriteByte(' ')
			spacePending = true
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// TitleSignature returns the normalized title and its comparison token set.
// Single-character tokens carry no signal and are dropped.
func TitleSignature(title string) (string, map[string]struct{}) {
	normalized := NormalizeTitle(title)
	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		if len(token) >= 2 {
			tokens[token] = struct{}{}
		}
	}
	return normalized, tokens
}

// Jaccard computes token-set similarity in [0, 1].
func Jaccard(a, b map[string]struct{}) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float32(intersection) / float32(union)
}
