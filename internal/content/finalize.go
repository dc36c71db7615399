package content

import "path"

// FinalizeSections ensures every section has an index page, generating a
// virtual archive index where one is missing, fixes the stable page order of
// each section, and attaches back-references from generated index pages to
// their sections. It returns the pages it generated so the caller can append
// them to the site and invalidate the derived page caches.
func FinalizeSections(site *Site) []*Page {
	var generated []*Page

	site.Root.Walk(func(s *Section) {
		if s.IndexPage == nil {
			idx := generateIndexPage(s)
			s.IndexPage = idx
			idx.section = s
			generated = append(generated, idx)
		}
		s.sortPages()
	})

	return generated
}

// generateIndexPage creates a virtual archive index for a section that has
// no _index file of its own.
func generateIndexPage(s *Section) *Page {
	p := &Page{
		Title:     s.Title,
		Generated: true,
		Metadata:  map[string]any{},
	}
	if s.IsRoot() {
		p.Kind = KindHome
		p.Key = VirtualPrefix + "_index.md"
		p.URL = "/"
		if p.Title == "" {
			p.Title = "Home"
		}
	} else {
		p.Kind = KindSection
		p.Key = VirtualPrefix + path.Join(s.Path, "_index.md")
		p.URL = s.URL()
	}
	return p
}
