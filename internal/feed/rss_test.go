package feed

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
)

func feedSite(t *testing.T) *content.Site {
	t.Helper()
	cfg := config.Default()
	cfg.Site.Title = "My Site"
	cfg.Site.Description = "A test site"
	cfg.Site.BaseURL = "https://example.com"
	cfg.Site.Language = "en"
	cfg.Site.Author = "Jane Doe"

	site := content.NewSite(cfg)
	site.AddPages(
		&content.Page{
			Key:     "blog/first.md",
			Kind:    content.KindPage,
			Title:   "First Post",
			URL:     "/blog/first/",
			Summary: "Summary of first post",
			Date:    time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
			Tags:    []string{"go", "programming"},
		},
		&content.Page{
			Key:     "blog/second.md",
			Kind:    content.KindPage,
			Title:   "Second Post",
			URL:     "/blog/second/",
			Summary: "Summary of second post",
			Date:    time.Date(2025, 2, 20, 14, 30, 0, 0, time.UTC),
			Tags:    []string{"rust"},
		},
		&content.Page{
			Key:     "blog/third.md",
			Kind:    content.KindPage,
			Title:   "Third Post",
			URL:     "/blog/third/",
			Summary: "Summary of third post",
			Date:    time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		// Section indexes and generated pages stay out of feeds.
		&content.Page{
			Key:   "blog/_index.md",
			Kind:  content.KindSection,
			Title: "Blog",
			URL:   "/blog/",
			Date:  time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		&content.Page{
			Key:       "_virtual/tags/go.md",
			Kind:      content.KindPage,
			Generated: true,
			Title:     "go",
			URL:       "/tags/go/",
		},
	)
	return site
}

func TestRSS(t *testing.T) {
	data, err := RSS(feedSite(t), 0)
	if err != nil {
		t.Fatalf("RSS: %v", err)
	}
	out := string(data)

	if !strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("missing XML declaration")
	}
	if !strings.Contains(out, `<rss version="2.0"`) {
		t.Error("missing rss version attribute")
	}
	if !strings.Contains(out, `xmlns:atom="http://www.w3.org/2005/Atom"`) {
		t.Error("missing atom namespace")
	}
	if !strings.Contains(out, "<title>My Site</title>") {
		t.Error("channel title should come from site config")
	}
	if !strings.Contains(out, `href="https://example.com/feed.xml"`) {
		t.Error("self link should point at feed.xml")
	}
	if strings.Contains(out, "Blog") {
		t.Error("section index pages should not appear in the feed")
	}
	if strings.Contains(out, "/tags/go/") {
		t.Error("generated pages should not appear in the feed")
	}

	var parsed struct {
		Channel struct {
			LastBuildDate string `xml:"lastBuildDate"`
			Items         []struct {
				Title   string `xml:"title"`
				Link    string `xml:"link"`
				PubDate string `xml:"pubDate"`
				GUID    string `xml:"guid"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("parsing feed: %v", err)
	}
	if len(parsed.Channel.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(parsed.Channel.Items))
	}
	if parsed.Channel.Items[0].Title != "Third Post" {
		t.Errorf("items should sort newest first, got %q", parsed.Channel.Items[0].Title)
	}
	if parsed.Channel.Items[0].Link != "https://example.com/blog/third/" {
		t.Errorf("item link should derive from base URL, got %q", parsed.Channel.Items[0].Link)
	}
	if parsed.Channel.Items[0].GUID != parsed.Channel.Items[0].Link {
		t.Error("guid should equal the permalink")
	}

	// The channel timestamp mirrors the newest item, keeping rebuild output
	// stable for an unchanged site.
	want := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC).Format(time.RFC1123Z)
	if parsed.Channel.LastBuildDate != want {
		t.Errorf("lastBuildDate = %q, want %q", parsed.Channel.LastBuildDate, want)
	}
}

func TestRSSLimit(t *testing.T) {
	data, err := RSS(feedSite(t), 2)
	if err != nil {
		t.Fatalf("RSS: %v", err)
	}
	if got := strings.Count(string(data), "<item>"); got != 2 {
		t.Errorf("expected 2 items with limit 2, got %d", got)
	}
	if !strings.Contains(string(data), "Third Post") || !strings.Contains(string(data), "Second Post") {
		t.Error("the limit should keep the newest items")
	}
}

func TestRSSDeterministic(t *testing.T) {
	site := feedSite(t)
	a, err := RSS(site, 0)
	if err != nil {
		t.Fatalf("RSS: %v", err)
	}
	b, err := RSS(site, 0)
	if err != nil {
		t.Fatalf("RSS: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two renders of the same site should be byte-identical")
	}
}

func TestRSSCDATASummary(t *testing.T) {
	cfg := config.Default()
	cfg.Site.Title = "S"
	cfg.Site.BaseURL = "https://example.com"
	site := content.NewSite(cfg)
	site.AddPages(&content.Page{
		Key:     "p.md",
		Kind:    content.KindPage,
		Title:   "P",
		URL:     "/p/",
		Summary: "<p>HTML & entities</p>",
		Date:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	data, err := RSS(site, 0)
	if err != nil {
		t.Fatalf("RSS: %v", err)
	}
	if !strings.Contains(string(data), "<![CDATA[<p>HTML & entities</p>]]>") {
		t.Error("descriptions should be wrapped in CDATA")
	}
}
