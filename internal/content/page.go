package content

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// Kind classifies a page by its position in the site tree.
type Kind string

const (
	KindHome    Kind = "home"    // the root index page
	KindSection Kind = "section" // a section index or generated list page
	KindPage    Kind = "page"    // a regular content page
)

// Page is the central content model in Bengal. It represents a single unit of
// renderable content (a Markdown file, or a virtual page generated for
// taxonomies, pagination, archives, or autodoc) along with its metadata,
// rendered output, and relationships to other pages.
//
// A Page is mutated only up to the end of section finalization; the render
// pipeline treats it as read-only except for OutputPath and the rendered body.
type Page struct {
	// Identity
	SourcePath string // absolute path on disk; empty for virtual pages
	Key        string // canonical key: content-relative path, or virtual-prefixed

	// Metadata is the merged frontmatter + cascade + computed fields.
	// declared tracks which keys the page's own frontmatter set, so cascade
	// application can tell page-owned values from inherited ones.
	Metadata map[string]any
	declared map[string]bool

	// Core fields extracted from metadata
	Title       string
	Slug        string
	URL         string // relative permalink (e.g., "/docs/install/")
	Permalink   string // absolute permalink (baseurl + URL)
	Description string
	Summary     string
	Keywords    []string

	// Dates
	Date       time.Time
	Lastmod    time.Time
	ExpiryDate time.Time

	// Classification
	Draft  bool
	Kind   Kind
	Layout string // explicit template override
	Weight int

	// Taxonomies
	Tags       []string
	Categories []string

	// Content
	RawContent      string // raw markdown body
	Content         string // rendered HTML body
	TableOfContents string // rendered TOC HTML
	WordCount       int
	ReadingTime     int // minutes

	// Outbound references recorded during parsing and rendering: other
	// pages, data files, and assets this page reads.
	Links []string

	// Output
	OutputPath string // relative path under the output dir
	Aliases    []string

	// Flags
	Generated bool // no source file of its own (taxonomy, pagination, archive)
	Autodoc   bool // produced by a documentation extractor

	// Pager is set on listing pages that paginate their children. On a
	// continuation page it points at the slice for that page number.
	Pager *Pager

	// Navigation, attached by SetupReferences.
	Next          *Page
	Prev          *Page
	NextInSection *Page
	PrevInSection *Page

	section *Section
}

// Section returns the section this page belongs to (nil before references are
// set up; never nil afterwards, the home page belongs to the root section).
func (p *Page) Section() *Section {
	return p.section
}

// Parent returns the index page of the enclosing section, or nil for the
// home page.
func (p *Page) Parent() *Page {
	if p.section == nil {
		return nil
	}
	if p.section.IndexPage == p {
		if p.section.Parent == nil {
			return nil
		}
		return p.section.Parent.IndexPage
	}
	return p.section.IndexPage
}

// Ancestors returns the chain of section index pages from the immediate
// parent up to the home page.
func (p *Page) Ancestors() []*Page {
	var out []*Page
	for cur := p.Parent(); cur != nil; cur = cur.Parent() {
		out = append(out, cur)
	}
	return out
}

// IsHome reports whether this is the site home page.
func (p *Page) IsHome() bool { return p.Kind == KindHome }

// IsSection reports whether this is a section index or list page.
func (p *Page) IsSection() bool { return p.Kind == KindSection }

// IsPage reports whether this is a regular content page.
func (p *Page) IsPage() bool { return p.Kind == KindPage }

// Eq reports whether two pages are the same logical page. Canonical keys
// uniquely identify pages across the site and across builds.
func (p *Page) Eq(other *Page) bool {
	return other != nil && p.Key == other.Key
}

// InSection reports whether p lives in the same section as other.
func (p *Page) InSection(other *Page) bool {
	return other != nil && p.section != nil && p.section == other.section
}

// IsAncestor reports whether p is an ancestor of other in the section tree.
func (p *Page) IsAncestor(other *Page) bool {
	if other == nil {
		return false
	}
	for _, a := range other.Ancestors() {
		if a == p {
			return true
		}
	}
	return false
}

// IsDescendant reports whether p is a descendant of other.
func (p *Page) IsDescendant(other *Page) bool {
	return other != nil && other.IsAncestor(p)
}

// Declared reports whether the page's own frontmatter set the given key.
// Cascade values never count as declared.
func (p *Page) Declared(key string) bool {
	return p.declared[key]
}

// Param returns the metadata value for key, or nil.
func (p *Page) Param(key string) any {
	if p.Metadata == nil {
		return nil
	}
	return p.Metadata[key]
}

// SortPages orders pages by (weight, date descending, title), the stable
// section order. Pages with Weight == 0 (unset) sort after weighted ones.
func SortPages(pages []*Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		wi, wj := pages[i].Weight, pages[j].Weight
		if wi != wj {
			if wi == 0 {
				return false
			}
			if wj == 0 {
				return true
			}
			return wi < wj
		}
		if !pages[i].Date.Equal(pages[j].Date) {
			return pages[i].Date.After(pages[j].Date)
		}
		return strings.ToLower(pages[i].Title) < strings.ToLower(pages[j].Title)
	})
}

// SortByDate sorts pages by their Date field. When ascending is true, older
// pages come first; when false, newer pages come first.
func SortByDate(pages []*Page, ascending bool) {
	sort.SliceStable(pages, func(i, j int) bool {
		if ascending {
			return pages[i].Date.Before(pages[j].Date)
		}
		return pages[i].Date.After(pages[j].Date)
	})
}

// SortByTitle sorts pages alphabetically by Title using case-insensitive
// comparison.
func SortByTitle(pages []*Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		return strings.ToLower(pages[i].Title) < strings.ToLower(pages[j].Title)
	})
}

// FilterDrafts returns a new slice with all draft pages removed.
func FilterDrafts(pages []*Page) []*Page {
	return slices.DeleteFunc(slices.Clone(pages), func(p *Page) bool {
		return p.Draft
	})
}

// FilterFuture returns a new slice with pages whose Date is in the future
// removed.
func FilterFuture(pages []*Page) []*Page {
	now := time.Now()
	return slices.DeleteFunc(slices.Clone(pages), func(p *Page) bool {
		return p.Date.After(now)
	})
}

// FilterExpired returns a new slice with pages whose ExpiryDate is non-zero
// and in the past removed.
func FilterExpired(pages []*Page) []*Page {
	now := time.Now()
	return slices.DeleteFunc(slices.Clone(pages), func(p *Page) bool {
		return !p.ExpiryDate.IsZero() && p.ExpiryDate.Before(now)
	})
}
