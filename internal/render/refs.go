package render

import (
	"strings"
	"sync"

	"github.com/bengal-ssg/bengal/internal/content"
	tmpl "github.com/bengal-ssg/bengal/internal/template"
)

// NewRefResolver builds the resolver used by ref/relref and [[...]] spans.
// Site pages are consulted first, in target-shape order: canonical key, key
// without extension, URL path, then title (case-insensitive, unique titles
// only). External resolvers (loaded xref indexes) are tried afterwards in
// the order given.
func NewRefResolver(site *content.Site, external ...tmpl.RefResolver) tmpl.RefResolver {
	var (
		once    sync.Once
		byPath  map[string]*content.Page
		byTitle map[string]*content.Page
	)

	index := func() {
		byPath = make(map[string]*content.Page)
		byTitle = make(map[string]*content.Page)
		for _, p := range site.Pages {
			byPath[p.Key] = p
			byPath[strings.TrimSuffix(p.Key, ".md")] = p
			byPath[strings.Trim(p.URL, "/")] = p

			title := strings.ToLower(p.Title)
			if title == "" {
				continue
			}
			if _, dup := byTitle[title]; dup {
				byTitle[title] = nil // ambiguous, disable title lookup
			} else {
				byTitle[title] = p
			}
		}
	}

	return func(target string) (string, string, bool) {
		once.Do(index)

		cleaned := strings.Trim(strings.TrimSpace(target), "/")
		if p, ok := byPath[cleaned]; ok {
			return p.URL, p.Key, true
		}
		if p := byTitle[strings.ToLower(strings.TrimSpace(target))]; p != nil {
			return p.URL, p.Key, true
		}
		for _, r := range external {
			if r == nil {
				continue
			}
			if url, key, ok := r(target); ok {
				return url, key, true
			}
		}
		return "", "", false
	}
}
