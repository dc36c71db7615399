// Package search builds the client-side search index: one JSON document
// describing every regular page, with tags and a plain-text excerpt of the
// rendered body.
package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bengal-ssg/bengal/internal/content"
)

// Entry is one page in the search index.
type Entry struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Section    string   `json:"section,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Content    string   `json:"content,omitempty"`
}

// Index serializes the site's regular pages as search-index.json. The
// rendered HTML body is stripped to plain text and, when contentLength > 0,
// truncated at a word boundary. Section indexes and generated pages are
// excluded; their members already cover the same text.
func Index(site *content.Site, contentLength int) ([]byte, error) {
	entries := make([]Entry, 0, len(site.Pages))
	for _, p := range site.RegularPages() {
		if p.Kind != content.KindPage {
			continue
		}
		e := Entry{
			Title:      p.Title,
			URL:        p.URL,
			Tags:       p.Tags,
			Categories: p.Categories,
			Summary:    StripHTML(p.Summary),
			Content:    StripHTML(p.Content),
		}
		if sec := p.Section(); sec != nil && sec.Name != "" {
			e.Section = sec.Name
		}
		if contentLength > 0 {
			e.Content = content.TruncateWords(e.Content, contentLength)
		}
		entries = append(entries, e)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling search index: %w", err)
	}
	return data, nil
}

// StripHTML removes tags from rendered HTML, producing plain text. A small
// state machine tracks whether the scan is inside a tag; common entities are
// decoded and whitespace runs collapse to single spaces.
func StripHTML(html string) string {
	var b strings.Builder
	b.Grow(len(html))

	inTag := false
	for i := 0; i < len(html); i++ {
		switch ch := html[i]; {
		case ch == '<':
			inTag = true
		case ch == '>':
			inTag = false
		case !inTag:
			b.WriteByte(ch)
		}
	}

	out := b.String()
	out = strings.ReplaceAll(out, "&amp;", "&")
	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&quot;", "\"")
	out = strings.ReplaceAll(out, "&#39;", "'")
	return collapseWhitespace(out)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inSpace := false
	for _, ch := range s {
		switch ch {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
		default:
			b.WriteRune(ch)
			inSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
