package content

import (
	"sync"
	"time"

	"github.com/bengal-ssg/bengal/internal/config"
)

// Site is the root aggregate: all pages, the section tree, assets,
// taxonomies, menus, and loaded data files. The site exclusively owns its
// sections, pages, and assets.
type Site struct {
	RootPath  string
	Config    *config.Config
	Pages     []*Page
	Root      *Section
	Assets    []*Asset
	Taxonomy  map[string]*Taxonomy
	Menus     map[string][]*MenuItem
	Data      map[string]any
	DataFiles []string // absolute paths of loaded data files
	OutputDir string
	BuildTime time.Time

	// Derived page lists are cached and rebuilt on demand after
	// InvalidatePageCaches. Guarded by mu; reads during rendering are
	// concurrent.
	mu             sync.RWMutex
	regularPages   []*Page
	generatedPages []*Page
	pagesByKey     map[string]*Page
}

// NewSite creates an empty site for the given config.
func NewSite(cfg *config.Config) *Site {
	return &Site{
		RootPath:  cfg.RootPath,
		Config:    cfg,
		Root:      &Section{Title: cfg.Site.Title},
		Taxonomy:  make(map[string]*Taxonomy),
		Menus:     make(map[string][]*MenuItem),
		Data:      make(map[string]any),
		OutputDir: cfg.OutputPath(),
		BuildTime: time.Now(),
	}
}

// Sections returns the ordered top-level sections.
func (s *Site) Sections() []*Section {
	if s.Root == nil {
		return nil
	}
	return s.Root.Sections
}

// AddPages appends pages to the site and invalidates derived caches.
func (s *Site) AddPages(pages ...*Page) {
	s.Pages = append(s.Pages, pages...)
	s.InvalidatePageCaches()
}

// InvalidatePageCaches drops the cached derived page lists. Any phase that
// appends or removes pages must call it.
func (s *Site) InvalidatePageCaches() {
	s.mu.Lock()
	s.regularPages = nil
	s.generatedPages = nil
	s.pagesByKey = nil
	s.mu.Unlock()
}

// RegularPages returns all non-generated pages. The result is cached until
// the page list changes.
func (s *Site) RegularPages() []*Page {
	s.mu.RLock()
	cached := s.regularPages
	s.mu.RUnlock()
	if cached != nil {
		return cached
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.regularPages == nil {
		s.rebuildCachesLocked()
	}
	return s.regularPages
}

// GeneratedPages returns all generated (virtual) pages. The result is cached
// until the page list changes.
func (s *Site) GeneratedPages() []*Page {
	s.mu.RLock()
	cached := s.generatedPages
	s.mu.RUnlock()
	if cached != nil {
		return cached
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generatedPages == nil {
		s.rebuildCachesLocked()
	}
	return s.generatedPages
}

// PageByKey looks up a page by its canonical key.
func (s *Site) PageByKey(key string) (*Page, bool) {
	s.mu.RLock()
	idx := s.pagesByKey
	s.mu.RUnlock()

	if idx == nil {
		s.mu.Lock()
		s.rebuildCachesLocked()
		idx = s.pagesByKey
		s.mu.Unlock()
	}

	p, ok := idx[key]
	return p, ok
}

// rebuildCachesLocked recomputes the derived lists. Callers hold mu.
func (s *Site) rebuildCachesLocked() {
	regular := make([]*Page, 0, len(s.Pages))
	generated := make([]*Page, 0)
	byKey := make(map[string]*Page, len(s.Pages))
	for _, p := range s.Pages {
		if p.Generated {
			generated = append(generated, p)
		} else {
			regular = append(regular, p)
		}
		byKey[p.Key] = p
	}
	s.regularPages = regular
	s.generatedPages = generated
	s.pagesByKey = byKey
}

// Prune removes every page matching pred from the site and from the section
// tree. A pruned section index is regenerated as a virtual archive index
// during section finalization. Returns the number of pages removed.
func (s *Site) Prune(pred func(*Page) bool) int {
	kept := s.Pages[:0]
	removed := 0
	for _, p := range s.Pages {
		if pred(p) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.Pages = kept
	if removed == 0 {
		return 0
	}

	s.Root.Walk(func(sec *Section) {
		pages := sec.Pages[:0]
		for _, p := range sec.Pages {
			if !pred(p) {
				pages = append(pages, p)
			}
		}
		sec.Pages = pages
		if sec.IndexPage != nil && pred(sec.IndexPage) {
			sec.IndexPage = nil
		}
	})

	s.InvalidatePageCaches()
	return removed
}

// SectionFor returns the section owning the given content-relative directory
// path, or nil if the path names no section.
func (s *Site) SectionFor(dir string) *Section {
	if dir == "" || dir == "." {
		return s.Root
	}
	cur := s.Root
	for _, seg := range splitPath(dir) {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}
