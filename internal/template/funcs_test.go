package template

import (
	"reflect"
	"testing"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
)

func TestMarkdownify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "inline emphasis unwraps its paragraph",
			input: "**bold** and *italic*",
			want:  "<strong>bold</strong> and <em>italic</em>",
		},
		{
			name:  "link",
			input: "[docs](https://example.com)",
			want:  `<a href="https://example.com">docs</a>`,
		},
		{
			name:  "multiple paragraphs keep their wrappers",
			input: "one\n\ntwo",
			want:  "<p>one</p>\n<p>two</p>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := markdownify(tt.input)
			if err != nil {
				t.Fatalf("markdownify(%q): %v", tt.input, err)
			}
			if string(got) != tt.want {
				t.Errorf("markdownify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPlainify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"no tags here", "no tags here"},
		{`<a href="/x">link</a>`, "link"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := plainify(tt.input); got != tt.want {
			t.Errorf("plainify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		n     int
		input string
		want  string
	}{
		{20, "short", "short"},
		{5, "hello world", "he..."},
		{2, "hello", "he"},
		{7, "héllo wörld", "héll..."}, // counts runes, not bytes
	}
	for _, tt := range tests {
		if got := truncate(tt.n, tt.input); got != tt.want {
			t.Errorf("truncate(%d, %q) = %q, want %q", tt.n, tt.input, got, tt.want)
		}
	}
}

func TestFirstLast(t *testing.T) {
	nums := []int{1, 2, 3, 4, 5}

	if got := first(2, nums); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("first(2) = %v", got)
	}
	if got := first(10, nums); !reflect.DeepEqual(got, nums) {
		t.Errorf("first(10) = %v, want the full slice", got)
	}
	if got := last(2, nums); !reflect.DeepEqual(got, []int{4, 5}) {
		t.Errorf("last(2) = %v", got)
	}
	if got := first(2, "not a slice"); got != "not a slice" {
		t.Errorf("first on non-slice = %v, want the input back", got)
	}
}

func TestWhere(t *testing.T) {
	pages := []*content.Page{
		{Title: "A", Draft: false},
		{Title: "B", Draft: true},
		{Title: "C", Draft: false},
	}
	got, ok := where(pages, "Draft", false).([]*content.Page)
	if !ok {
		t.Fatal("where did not return []*content.Page")
	}
	if len(got) != 2 || got[0].Title != "A" || got[1].Title != "C" {
		t.Errorf("where(Draft=false) kept %d pages", len(got))
	}
}

func TestSortBy(t *testing.T) {
	pages := []*content.Page{
		{Title: "zebra", Weight: 3, Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "Apple", Weight: 1, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "mango", Weight: 2, Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	byTitle := sortBy(pages, "Title")
	if byTitle[0].Title != "Apple" || byTitle[2].Title != "zebra" {
		t.Errorf("sortBy(Title) order: %s, %s, %s", byTitle[0].Title, byTitle[1].Title, byTitle[2].Title)
	}
	// Case-insensitive: "Apple" sorts before "mango".
	if byTitle[1].Title != "mango" {
		t.Errorf("sortBy(Title)[1] = %s, want mango", byTitle[1].Title)
	}

	byWeight := sortBy(pages, "Weight")
	if byWeight[0].Weight != 1 || byWeight[2].Weight != 3 {
		t.Errorf("sortBy(Weight) order wrong: %v", byWeight)
	}

	byDate := sortBy(pages, "Date")
	if !byDate[0].Date.Before(byDate[1].Date) || !byDate[1].Date.Before(byDate[2].Date) {
		t.Error("sortBy(Date) not ascending")
	}

	// The input slice is untouched.
	if pages[0].Title != "zebra" {
		t.Error("sortBy mutated its input")
	}

	same := sortBy(pages, "Nope")
	for i := range pages {
		if same[i] != pages[i] {
			t.Fatal("sortBy with unknown field reordered the slice")
		}
	}
}

func TestGroupBy(t *testing.T) {
	pages := []*content.Page{
		{Title: "A", Kind: content.KindPage},
		{Title: "B", Kind: content.KindSection},
		{Title: "C", Kind: content.KindPage},
	}
	groups := groupBy(pages, "Kind")
	if len(groups) != 2 {
		t.Fatalf("groupBy produced %d groups, want 2", len(groups))
	}
	singles, ok := groups["page"].([]*content.Page)
	if !ok || len(singles) != 2 {
		t.Errorf("groups[page] = %v", groups["page"])
	}
}

func TestDict(t *testing.T) {
	m, err := dict("a", 1, "b", "two")
	if err != nil {
		t.Fatalf("dict: %v", err)
	}
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("dict = %v", m)
	}

	if _, err := dict("a"); err == nil {
		t.Error("dict with odd arguments: expected error")
	}
	if _, err := dict(1, "a"); err == nil {
		t.Error("dict with non-string key: expected error")
	}
}

func TestURLFuncs(t *testing.T) {
	if got := relURL("docs/install/"); got != "/docs/install/" {
		t.Errorf("relURL = %q", got)
	}
	if got := relURL("/already/"); got != "/already/" {
		t.Errorf("relURL(absolute) = %q", got)
	}

	e := &Engine{baseURL: "https://example.com/"}
	if got := e.absURL("docs/"); got != "https://example.com/docs/" {
		t.Errorf("absURL = %q", got)
	}
	if got := e.absURL("/docs/"); got != "https://example.com/docs/" {
		t.Errorf("absURL(leading slash) = %q", got)
	}
}

func TestContextKey(t *testing.T) {
	if got := contextKey(pageCtx("content/a.md", "A")); got != "content/a.md" {
		t.Errorf("contextKey = %q", got)
	}
	if got := contextKey(&PageContext{}); got != "" {
		t.Errorf("contextKey(no page) = %q", got)
	}
	if got := contextKey("not a context"); got != "" {
		t.Errorf("contextKey(non-context) = %q", got)
	}
}
