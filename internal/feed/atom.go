package feed

import (
	"encoding/xml"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
)

type atomFeed struct {
	XMLName  xml.Name    `xml:"feed"`
	Xmlns    string      `xml:"xmlns,attr"`
	Title    string      `xml:"title"`
	Subtitle string      `xml:"subtitle,omitempty"`
	Links    []atomLink  `xml:"link"`
	ID       string      `xml:"id"`
	Updated  string      `xml:"updated"`
	Author   *atomAuthor `xml:"author,omitempty"`
	Entries  []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomEntry struct {
	Title      string         `xml:"title"`
	Link       atomLink       `xml:"link"`
	ID         string         `xml:"id"`
	Published  string         `xml:"published,omitempty"`
	Updated    string         `xml:"updated,omitempty"`
	Summary    *atomText      `xml:"summary,omitempty"`
	Categories []atomCategory `xml:"category,omitempty"`
}

type atomText struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Atom renders atom.xml: an Atom 1.0 feed over the same pages as RSS. The
// feed-level updated element takes the newest entry's timestamp; a site with
// no dated pages anchors it at the Unix epoch to stay reproducible.
func Atom(site *content.Site, limit int) ([]byte, error) {
	cfg := site.Config.Site
	items := feedPages(site, limit)

	entries := make([]atomEntry, 0, len(items))
	for _, p := range items {
		e := atomEntry{
			Title: p.Title,
			Link:  atomLink{Href: permalink(site, p), Rel: "alternate"},
			ID:    permalink(site, p),
		}
		if !p.Date.IsZero() {
			e.Published = p.Date.UTC().Format(time.RFC3339)
			e.Updated = e.Published
		}
		if !p.Lastmod.IsZero() {
			e.Updated = p.Lastmod.UTC().Format(time.RFC3339)
		}
		if p.Summary != "" {
			e.Summary = &atomText{Type: "html", Body: p.Summary}
		}
		for _, tag := range p.Tags {
			e.Categories = append(e.Categories, atomCategory{Term: tag})
		}
		entries = append(entries, e)
	}

	updated := time.Unix(0, 0).UTC()
	if len(items) > 0 && !items[0].Date.IsZero() {
		updated = items[0].Date.UTC()
	}

	af := atomFeed{
		Xmlns:    "http://www.w3.org/2005/Atom",
		Title:    cfg.Title,
		Subtitle: cfg.Description,
		Links: []atomLink{
			{Href: cfg.BaseURL, Rel: "alternate"},
			{Href: cfg.BaseURL + "/atom.xml", Rel: "self"},
		},
		ID:      cfg.BaseURL + "/",
		Updated: updated.Format(time.RFC3339),
		Entries: entries,
	}
	if cfg.Author != "" {
		af.Author = &atomAuthor{Name: cfg.Author}
	}

	return marshalFeed(af)
}
