package content

import (
	"strings"
	"testing"
)

func TestSummarizeMarker(t *testing.T) {
	raw := "Bengal rebuilds only what changed.\n\n<!--more-->\n\nThe filter walks the reverse dependency graph."
	rendered := "<p>Bengal rebuilds only what changed.</p>\n<!--more-->\n<p>The filter walks the reverse dependency graph.</p>"

	got := Summarize(raw, rendered, 0)
	if !strings.Contains(got, "rebuilds only what changed") {
		t.Errorf("summary missing intro: %q", got)
	}
	if strings.Contains(got, "reverse dependency graph") {
		t.Errorf("summary leaked content past the marker: %q", got)
	}
}

func TestSummarizeFirstParagraph(t *testing.T) {
	raw := "The build cache is a single versioned file.\n\nVersion mismatches discard it."
	rendered := "<p>The build cache is a single versioned file.</p>\n<p>Version mismatches discard it.</p>"

	got := Summarize(raw, rendered, 0)
	if got != "<p>The build cache is a single versioned file.</p>" {
		t.Errorf("Summarize = %q, want first paragraph", got)
	}
}

// A summary marker wrapped in an escape span is literal text the author
// wants shown, not a split point. The rendered form is entity-encoded, so
// neither detection nor the split may fire on it.
func TestSummarizeEscapedMarker(t *testing.T) {
	raw := "Write {!<!--more-->!} in the source to split a post."
	rendered := "<p>Write &lt;!--more--&gt; in the source to split a post.</p>"

	got := Summarize(raw, rendered, 0)
	if got != rendered {
		t.Fatalf("Summarize = %q, want the full first paragraph", got)
	}

	// A real marker after an escaped one still splits, and the escaped
	// occurrence stays in the summary text.
	raw = "Use {!<!--more-->!} to split.\n\n<!--more-->\n\nEverything after is body."
	rendered = "<p>Use &lt;!--more--&gt; to split.</p>\n<!--more-->\n<p>Everything after is body.</p>"
	got = Summarize(raw, rendered, 0)
	if strings.Contains(got, "Everything after") {
		t.Errorf("summary leaked content past the real marker: %q", got)
	}
	if !strings.Contains(got, "&lt;!--more--&gt;") {
		t.Errorf("escaped marker text missing from summary: %q", got)
	}
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("incremental ", 60)
	rendered := "<p>" + long + "</p>"

	got := Summarize(long, rendered, 48)
	plain := StripTags(got)
	if len(plain) > 52 {
		t.Errorf("summary text length = %d, want <= limit plus ellipsis", len(plain))
	}
	if !strings.HasSuffix(plain, "...") {
		t.Errorf("truncated summary missing ellipsis: %q", plain)
	}
}

func TestSummarizeDefaultLimit(t *testing.T) {
	long := strings.Repeat("word ", 100)
	rendered := "<p>" + long + "</p>"

	got := Summarize(long, rendered, 0)
	if plain := StripTags(got); len(plain) > DefaultSummaryLength+4 {
		t.Errorf("limit 0 should fall back to DefaultSummaryLength, got %d chars", len(plain))
	}

	if got := Summarize("", "", 0); got != "" {
		t.Errorf("empty input should summarize to empty, got %q", got)
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  int
	}{
		{"empty", 0, 0},
		{"one word rounds up", 1, 1},
		{"under a minute rounds up", 150, 1},
		{"exactly one minute", 200, 1},
		{"two minutes", 400, 2},
		{"partial minutes floor", 599, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.TrimSpace(strings.Repeat("word ", tt.words))
			if got := ReadingTime(content); got != tt.want {
				t.Errorf("ReadingTime(%d words) = %d, want %d", tt.words, got, tt.want)
			}
		})
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"incremental", 1},
		{"pages  to   build", 3},
		{"tabs\tand\nnewlines count", 4},
	}
	for _, tt := range tests {
		if got := WordCount(tt.input); got != tt.want {
			t.Errorf("WordCount(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestMetaDescription(t *testing.T) {
	t.Run("strips tags and truncates", func(t *testing.T) {
		summary := "<p>The <strong>cache coordinator</strong> is the sole invalidation gateway for per-page records.</p>"
		got := MetaDescription(summary, 40)
		if strings.ContainsAny(got, "<>") {
			t.Errorf("tags survived: %q", got)
		}
		if len(got) > 43 {
			t.Errorf("length %d exceeds limit plus ellipsis: %q", len(got), got)
		}
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		got := MetaDescription("<p>Reverse\n  dependency\twalk</p>", 100)
		if got != "Reverse dependency walk" {
			t.Errorf("MetaDescription = %q", got)
		}
	})
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>plain</p>", "plain"},
		{"<a href=\"/docs/\">docs</a> index", "docs index"},
		{"no markup", "no markup"},
		{"<div class=\"toc\"><span>nested</span></div>", "nested"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripTags(tt.input); got != tt.want {
			t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"fits as is", 10, "fits as is"},
		{"short", 100, "short"},
		{"rebuild reason per page", 15, "rebuild reason..."},
		{"unbreakable", 4, "unbr..."},
		{"zero disables truncation", 0, "zero disables truncation"},
		{"", 10, ""},
	}
	for _, tt := range tests {
		if got := TruncateWords(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
