// Package feed renders the site's syndication feeds: RSS 2.0 and Atom 1.0.
// Feed-level timestamps derive from the newest item rather than the clock,
// so rebuilding an unchanged site reproduces the same bytes.
package feed

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
)

// CDATA wraps text in a CDATA section when marshaled to XML.
type CDATA struct {
	Text string `xml:",cdata"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	AtomNS  string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string      `xml:"title"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	Language      string      `xml:"language,omitempty"`
	LastBuildDate string      `xml:"lastBuildDate,omitempty"`
	AtomLink      rssAtomLink `xml:"atom:link"`
	Items         []rssItem   `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        string   `xml:"guid"`
	Description CDATA    `xml:"description"`
	Categories  []string `xml:"category,omitempty"`
}

// RSS renders feed.xml: an RSS 2.0 feed of the site's newest regular pages.
// Channel metadata comes from the site config; limit caps the item count,
// with 0 meaning no limit.
func RSS(site *content.Site, limit int) ([]byte, error) {
	cfg := site.Config.Site
	items := feedPages(site, limit)

	rssItems := make([]rssItem, 0, len(items))
	for _, p := range items {
		it := rssItem{
			Title:       p.Title,
			Link:        permalink(site, p),
			GUID:        permalink(site, p),
			Description: CDATA{Text: p.Summary},
			Categories:  append(append([]string(nil), p.Tags...), p.Categories...),
		}
		if !p.Date.IsZero() {
			it.PubDate = p.Date.Format(time.RFC1123Z)
		}
		rssItems = append(rssItems, it)
	}

	channel := rssChannel{
		Title:       cfg.Title,
		Link:        cfg.BaseURL,
		Description: cfg.Description,
		Language:    cfg.Language,
		AtomLink: rssAtomLink{
			Href: cfg.BaseURL + "/feed.xml",
			Rel:  "self",
			Type: "application/rss+xml",
		},
		Items: rssItems,
	}
	if len(items) > 0 && !items[0].Date.IsZero() {
		channel.LastBuildDate = items[0].Date.Format(time.RFC1123Z)
	}

	return marshalFeed(rssFeed{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: channel,
	})
}

// feedPages returns the site's regular content pages, newest first, capped
// at limit. Section indexes and generated pages never appear in feeds.
func feedPages(site *content.Site, limit int) []*content.Page {
	var pages []*content.Page
	for _, p := range site.RegularPages() {
		if p.Kind != content.KindPage {
			continue
		}
		pages = append(pages, p)
	}
	content.SortByDate(pages, false)
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}
	return pages
}

func permalink(site *content.Site, p *content.Page) string {
	if p.Permalink != "" {
		return p.Permalink
	}
	return site.Config.Site.BaseURL + p.URL
}

func marshalFeed(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling feed: %w", err)
	}
	out := []byte(xml.Header)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}
