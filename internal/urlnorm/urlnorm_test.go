package urlnorm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantURL    string
		wantDomain string
	}{
		{
			name:       "strips tracking params and fragment",
			raw:        "https://www.example.com/news/story?utm_source=rss&id=42#comments",
			wantURL:    "https://www.example.com/news/story?id=42",
			wantDomain: "example.com",
		},
		{
			name:       "drops default https port",
			raw:        "https://example.com:443/a",
			wantURL:    "https://example.com/a",
			wantDomain: "example.com",
		},
		{
			name:       "keeps custom port",
			raw:        "http://example.com:8080/a",
			wantURL:    "http://example.com:8080/a",
			wantDomain: "example.com",
		},
		{
			name:       "trims trailing slash",
			raw:        "https://example.com/section/story/",
			wantURL:    "https://example.com/section/story",
			wantDomain: "example.com",
		},
		{
			name:       "root path untouched",
			raw:        "https://example.com/",
			wantURL:    "https://example.com/",
			wantDomain: "example.com",
		},
		{
			name:       "sorts remaining query pairs",
			raw:        "https://example.com/a?b=2&a=1&fbclid=xyz",
			wantURL:    "https://example.com/a?a=1&b=2",
			wantDomain: "example.com",
		},
		{
			name:       "lower-cases host",
			raw:        "https://News.Example.COM/Story",
			wantURL:    "https://news.example.com/Story",
			wantDomain: "news.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, gotDomain, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, gotURL)
			assert.Equal(t, tt.wantDomain, gotDomain)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "https://"} {
		_, _, err := Normalize(raw)
		require.Error(t, err, raw)

		var ve *apperr.ValidationError
		assert.True(t, errors.As(err, &ve), "expected ValidationError for %q", raw)
	}
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "example.com", Domain("WWW.Example.com"))
	assert.Equal(t, "feeds.example.com", Domain("feeds.example.com"))
}
