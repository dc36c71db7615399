package content

import (
	"bytes"
	"regexp"
	"strings"
)

// SummaryMarker splits a page into its summary and the rest. Authors place
// it in the Markdown source; goldmark passes the comment through, so the
// split happens on the rendered HTML where the marker survives verbatim.
const SummaryMarker = "<!--more-->"

// DefaultSummaryLength bounds a summary's text content when the site does
// not set content.summary_length.
const DefaultSummaryLength = 280

// wordsPerMinute is the reading-speed assumption behind ReadingTime.
const wordsPerMinute = 200

var (
	tagRe       = regexp.MustCompile(`<[^>]*>`)
	firstParaRe = regexp.MustCompile(`(?s)<p[^>]*>.*?</p>`)
)

// Summarize derives a page's summary from its source and rendered HTML. An
// explicit summary marker wins; otherwise the first rendered paragraph is
// used. A marker inside a {! !} escape span is author-visible text, not a
// split point: detection runs on the masked source, and the rendered form
// of an escaped marker is entity-encoded so the split cannot land on it.
// The summary's text content is bounded by limit; limit <= 0 selects
// DefaultSummaryLength.
func Summarize(raw, rendered string, limit int) string {
	if limit <= 0 {
		limit = DefaultSummaryLength
	}

	var summary string
	if masked, _ := maskEscapes([]byte(raw)); bytes.Contains(masked, []byte(SummaryMarker)) {
		before, _, _ := strings.Cut(rendered, SummaryMarker)
		summary = strings.TrimSpace(before)
	} else {
		summary = firstParaRe.FindString(rendered)
	}

	if text := StripTags(summary); len(text) > limit {
		summary = "<p>" + TruncateWords(text, limit) + "</p>"
	}
	return summary
}

// WordCount counts whitespace-separated words.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// ReadingTime estimates minutes needed to read the content. Non-empty
// content never reports less than one minute.
func ReadingTime(content string) int {
	words := WordCount(content)
	if words == 0 {
		return 0
	}
	minutes := words / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// MetaDescription flattens a summary to single-line plain text bounded at
// maxLen, for description meta tags and social card subtitles.
func MetaDescription(summary string, maxLen int) string {
	plain := strings.Join(strings.Fields(StripTags(summary)), " ")
	return TruncateWords(plain, maxLen)
}

// StripTags removes HTML tags, leaving text content.
func StripTags(s string) string {
	return tagRe.ReplaceAllString(s, "")
}

// TruncateWords shortens s to at most maxLen bytes, cutting back to the
// last word boundary and appending an ellipsis. maxLen <= 0 disables
// truncation.
func TruncateWords(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
