// Package seo generates the crawler-facing artifacts of a build: the
// sitemaps.org sitemap and robots.txt.
package seo

import (
	"encoding/xml"
	"fmt"

	"github.com/bengal-ssg/bengal/internal/content"
)

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	XMLNS   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc     string `xml:"loc"`
	Lastmod string `xml:"lastmod,omitempty"`
}

// Sitemap renders sitemap.xml over every page the build publishes. Pages
// carry their absolute permalink; lastmod comes from the page's lastmod or
// date, date-only per the sitemaps.org examples, and is omitted when the
// page has neither.
func Sitemap(site *content.Site) ([]byte, error) {
	set := urlSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]urlEntry, 0, len(site.Pages)),
	}
	for _, p := range site.Pages {
		u := urlEntry{Loc: permalink(site, p)}
		mod := p.Lastmod
		if mod.IsZero() {
			mod = p.Date
		}
		if !mod.IsZero() {
			u.Lastmod = mod.Format("2006-01-02")
		}
		set.URLs = append(set.URLs, u)
	}

	body, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling sitemap: %w", err)
	}
	out := []byte(xml.Header)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// Robots returns a robots.txt that allows all crawlers and points them at
// the sitemap.
func Robots(site *content.Site) []byte {
	return fmt.Appendf(nil, "User-agent: *\nAllow: /\n\nSitemap: %s/sitemap.xml\n",
		site.Config.Site.BaseURL)
}

// permalink returns the page's absolute URL, deriving it from the base URL
// when discovery has not filled Permalink (generated pages).
func permalink(site *content.Site, p *content.Page) string {
	if p.Permalink != "" {
		return p.Permalink
	}
	return site.Config.Site.BaseURL + p.URL
}
