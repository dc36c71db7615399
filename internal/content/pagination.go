package content

import (
	"fmt"
	"path"
	"strings"
)

// Pager represents a single page of paginated results.
type Pager struct {
	Pages      []*Page
	PageNumber int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	PrevURL    string
	NextURL    string
	First      string // URL of first page
	Last       string // URL of last page
}

// Paginate splits pages into groups of pageSize and returns a slice of Pagers.
// URL pattern: page 1 = baseURL, page 2 = baseURL + "page/2/", etc.
// Edge cases:
//   - Empty pages returns an empty slice.
//   - pageSize <= 0 is treated as 10.
//   - Fewer pages than pageSize produces a single Pager.
func Paginate(pages []*Page, pageSize int, baseURL string) []*Pager {
	if len(pages) == 0 {
		return nil
	}

	if pageSize <= 0 {
		pageSize = 10
	}

	// Calculate total number of result pages.
	totalPages := (len(pages) + pageSize - 1) / pageSize

	// Determine the URL of the last page.
	lastURL := baseURL
	if totalPages > 1 {
		lastURL = fmt.Sprintf("%spage/%d/", baseURL, totalPages)
	}

	pagers := make([]*Pager, 0, totalPages)

	for i := 0; i < totalPages; i++ {
		start := i * pageSize
		end := start + pageSize
		if end > len(pages) {
			end = len(pages)
		}

		pageNum := i + 1

		pager := &Pager{
			Pages:      pages[start:end],
			PageNumber: pageNum,
			TotalPages: totalPages,
			HasPrev:    pageNum > 1,
			HasNext:    pageNum < totalPages,
			First:      baseURL,
			Last:       lastURL,
		}

		// Set PrevURL.
		if pager.HasPrev {
			if pageNum == 2 {
				pager.PrevURL = baseURL
			} else {
				pager.PrevURL = fmt.Sprintf("%spage/%d/", baseURL, pageNum-1)
			}
		}

		// Set NextURL.
		if pager.HasNext {
			pager.NextURL = fmt.Sprintf("%spage/%d/", baseURL, pageNum+1)
		}

		pagers = append(pagers, pager)
	}

	return pagers
}

// GeneratePagination paginates every listing page on the site. The first
// pager is attached to the listing page itself; pagers 2..N become generated
// continuation pages at <url>page/<n>/ that reuse the owner's layout. The
// returned pages must be added to the site by the caller.
func GeneratePagination(site *Site, pageSize int) []*Page {
	if pageSize <= 0 {
		pageSize = 10
	}

	var out []*Page
	for _, p := range site.Pages {
		items := listingItems(site, p)
		if items == nil {
			continue
		}
		pagers := Paginate(items, pageSize, p.URL)
		if len(pagers) == 0 {
			continue
		}
		p.Pager = pagers[0]
		for _, pager := range pagers[1:] {
			out = append(out, continuationPage(p, pager))
		}
	}
	return out
}

// listingItems returns the pages a listing page enumerates, or nil when the
// page is not a listing. The home page lists every regular content page; a
// section index lists its section's pages; a taxonomy term page lists the
// term's pages. Taxonomy terms pages enumerate terms, not pages, and are
// never paginated.
func listingItems(site *Site, p *Page) []*Page {
	switch {
	case p.Kind == KindHome:
		var items []*Page
		for _, rp := range site.RegularPages() {
			if rp.Kind == KindPage {
				items = append(items, rp)
			}
		}
		SortByDate(items, false)
		return items
	case p.Generated && p.Layout == "term":
		tax, _ := p.Metadata["taxonomy"].(string)
		term, _ := p.Metadata["term"].(string)
		if t, ok := site.Taxonomy[tax]; ok {
			return t.Terms[term]
		}
		return nil
	case p.Kind == KindSection && !p.Generated:
		if s := p.Section(); s != nil && s.IndexPage == p {
			return s.RegularPages()
		}
		return nil
	default:
		return nil
	}
}

// continuationPage builds the generated page for one pager beyond the first.
func continuationPage(owner *Page, pager *Pager) *Page {
	key := continuationKey(owner.Key, pager.PageNumber)
	return &Page{
		Key:       key,
		Title:     owner.Title,
		Slug:      owner.Slug,
		URL:       fmt.Sprintf("%spage/%d/", owner.URL, pager.PageNumber),
		Kind:      owner.Kind,
		Layout:    owner.Layout,
		Metadata:  owner.Metadata,
		Generated: true,
		Pager:     pager,
		section:   owner.section,
	}
}

// continuationKey derives a virtual key for page n of a paginated listing.
// "docs/_index.md" -> "_virtual/docs/page/2.md"
// "_virtual/tags/go.md" -> "_virtual/tags/go/page/2.md"
func continuationKey(ownerKey string, n int) string {
	base := strings.TrimPrefix(ownerKey, VirtualPrefix)
	ext := path.Ext(base)
	base = strings.TrimSuffix(base, ext)
	if name := path.Base(base); name == "_index" || name == "index" {
		base = path.Dir(base)
		if base == "." {
			base = ""
		}
	}
	if base != "" {
		base += "/"
	}
	return fmt.Sprintf("%s%spage/%d.md", VirtualPrefix, base, n)
}
