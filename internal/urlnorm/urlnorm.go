// Package urlnorm canonicalizes article links so cosmetic differences
// (tracking parameters, default ports, trailing slashes) do not produce
// duplicate source rows.
package urlnorm

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/DjordjeVuckovic/news-ingest/internal/apperr"
)

var trackingPrefixes = []string{"utm_", "spm", "_hs", "mc_", "icn", "icp"}

var trackingParams = map[string]bool{
	"fbclid":   true,
	"gclid":    true,
	"yclid":    true,
	"cmp":      true,
	"ref":      true,
	"referrer": true,
	"source":   true,
}

// Normalize canonicalizes an article URL and derives its source domain
// (lower-cased host without a leading "www.").
func Normalize(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", apperr.NewValidationWrap(fmt.Sprintf("invalid url: %s", raw), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", apperr.NewValidation(fmt.Sprintf("unsupported url scheme: %s", raw))
	}
	if u.Hostname() == "" {
		return "", "", apperr.NewValidation(fmt.Sprintf("url missing host: %s", raw))
	}

	u.Fragment = ""
	u.Host = normalizeHost(u)
	u.RawQuery = cleanQuery(u.Query())

	if u.Path != "/" {
		if trimmed := strings.TrimRight(u.Path, "/"); trimmed != u.Path {
			if trimmed == "" {
				trimmed = "/"
			}
			u.Path = trimmed
		}
	}

	return u.String(), Domain(u.Hostname()), nil
}

// Domain lower-cases a host and strips a leading "www.".
func Domain(host string) string {
	domain := strings.ToLower(host)
	return strings.TrimPrefix(domain, "www.")
}

func normalizeHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		return host
	}
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		return host
	}
	return host + ":" + port
}

func cleanQuery(q url.Values) string {
	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range q {
		if isTrackingParam(k) {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	if len(pairs) == 0 {
		return ""
	}

	// Sorted query pairs keep equivalent links byte-identical.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if trackingParams[lower] {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
