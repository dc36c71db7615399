package content

import (
	"sort"
	"strings"
)

// SetupReferences attaches the navigation relationships: page to section
// (done at discovery, refreshed here for generated pages), page to next and
// previous in the global order, and page to next and previous within its
// section. The global order is (section path, weight, date descending,
// title), stable across builds.
//
// Accessors are total: pages at the ends have nil neighbors.
func SetupReferences(site *Site) {
	// Permalinks depend on the final URL set.
	base := ""
	if site.Config != nil {
		base = site.Config.Site.BaseURL
	}
	for _, p := range site.Pages {
		p.Permalink = base + p.URL
		p.Next, p.Prev = nil, nil
		p.NextInSection, p.PrevInSection = nil, nil
	}

	// Global next/prev across regular content pages.
	ordered := make([]*Page, 0, len(site.Pages))
	for _, p := range site.RegularPages() {
		if p.Kind == KindPage {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := "", ""
		if ordered[i].section != nil {
			si = ordered[i].section.Path
		}
		if ordered[j].section != nil {
			sj = ordered[j].section.Path
		}
		if si != sj {
			return si < sj
		}
		return pageLess(ordered[i], ordered[j])
	})
	for i, p := range ordered {
		if i > 0 {
			p.Prev = ordered[i-1]
		}
		if i < len(ordered)-1 {
			p.Next = ordered[i+1]
		}
	}

	// Section-scoped next/prev follow each section's own stable order.
	site.Root.Walk(func(s *Section) {
		for i, p := range s.Pages {
			if i > 0 {
				p.PrevInSection = s.Pages[i-1]
			} else {
				p.PrevInSection = nil
			}
			if i < len(s.Pages)-1 {
				p.NextInSection = s.Pages[i+1]
			} else {
				p.NextInSection = nil
			}
		}
	})
}

// pageLess is the (weight, date desc, title) comparison shared with
// SortPages.
func pageLess(a, b *Page) bool {
	if a.Weight != b.Weight {
		if a.Weight == 0 {
			return false
		}
		if b.Weight == 0 {
			return true
		}
		return a.Weight < b.Weight
	}
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return strings.ToLower(a.Title) < strings.ToLower(b.Title)
}
