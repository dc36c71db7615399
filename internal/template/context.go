package template

import (
	"html/template"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
)

// PageContext is the data passed to every page template as ".". The page's
// fields and navigation accessors are reachable directly through the
// embedded page; Content and TableOfContents shadow the page's string fields
// with their template-safe forms.
type PageContext struct {
	*content.Page

	Content         template.HTML
	TableOfContents template.HTML
	Summary         template.HTML
	Pager           *content.Pager

	Site *SiteContext
}

// Key returns the page's canonical key, or "" for contexts without a page.
func (c *PageContext) Key() string {
	if c.Page == nil {
		return ""
	}
	return c.Page.Key
}

// SiteContext holds site-wide data accessible as .Site in templates. One
// instance is shared by every page render in a build.
type SiteContext struct {
	Title       string
	Description string
	BaseURL     string
	Language    string
	Author      string

	Params     map[string]any
	Data       map[string]any
	Menus      map[string][]*content.MenuItem
	Pages      []*content.Page
	Sections   []*content.Section
	Taxonomies map[string]*content.Taxonomy

	Versions       []string
	CurrentVersion string

	BuildTime time.Time
}

// Menu returns the named menu's entries, or nil when it does not exist.
func (s *SiteContext) Menu(name string) []*content.MenuItem {
	return s.Menus[name]
}

// Taxonomy returns the named taxonomy, or nil.
func (s *SiteContext) Taxonomy(name string) *content.Taxonomy {
	return s.Taxonomies[name]
}
