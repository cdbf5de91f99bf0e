package feedparse

import "strings"

// StripHTML removes tags and script/style blocks from feed summaries and
// collapses whitespace. Feed descriptions are frequently rich text; only the
// readable text should reach the similarity judge and the database.
func StripHTML(input string) string {
	if input == "" {
		return ""
	}

	buf := input
	for _, tag := range []string{"script", "style"} {
		buf = dropBlocks(buf, tag)
	}

	var out strings.Builder
	out.Grow(len(buf))
	inTag := false
	for _, r := range buf {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(out.String()), " ")
}

func dropBlocks(input, tag string) string {
	open := "<" + tag
	close := "</" + tag + ">"

	for {
		lower := strings.ToLower(input)
		start := strings.Index(lower, open)
		if start < 0 {
			return input
		}
		rel := strings.Index(lower[start:], close)
		if rel < 0 {
			return input[:start]
		}
		input = input[:start] + input[start+rel+len(close):]
	}
}
