package content

import (
	"sort"
	"strings"
)

// Section is a named grouping of pages organized as a tree. The root section
// exists implicitly and carries the home page as its index. Sections own
// their child pages by reference; pages hold a back-reference to their
// enclosing section.
type Section struct {
	Name     string // last path segment; "" for the root
	Title    string
	Path     string // content-relative directory path, slash-separated; "" for root
	Parent   *Section
	Sections []*Section // ordered by name
	Pages    []*Page    // regular (non-index) pages, in section order

	// IndexPage is nil during discovery and non-nil after section
	// finalization: every section gets one, auto-generated if missing.
	IndexPage *Page

	// Cascade is the section's own cascade block from its index page's
	// frontmatter. The effective cascade (merged with ancestors) is applied
	// to pages by ApplyCascade.
	Cascade map[string]any
}

// URL returns the section's relative URL ("/" for the root).
func (s *Section) URL() string {
	if s.Path == "" {
		return "/"
	}
	return "/" + s.Path + "/"
}

// IsRoot reports whether this is the implicit root section.
func (s *Section) IsRoot() bool { return s.Parent == nil }

// RegularPages returns the section's own non-index pages in section order.
func (s *Section) RegularPages() []*Page {
	return s.Pages
}

// RegularPagesRecursive returns the section's pages and all descendant
// sections' pages, in depth-first section order.
func (s *Section) RegularPagesRecursive() []*Page {
	out := make([]*Page, 0, len(s.Pages))
	out = append(out, s.Pages...)
	for _, child := range s.Sections {
		out = append(out, child.RegularPagesRecursive()...)
	}
	return out
}

// Ancestors returns the chain of parent sections from the immediate parent
// up to the root.
func (s *Section) Ancestors() []*Section {
	var out []*Section
	for cur := s.Parent; cur != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	return out
}

// Child returns the direct child section with the given name, or nil.
func (s *Section) Child(name string) *Section {
	for _, c := range s.Sections {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ensureChild returns the direct child section with the given name, creating
// and inserting it (ordered by name) if missing.
func (s *Section) ensureChild(name string) *Section {
	if c := s.Child(name); c != nil {
		return c
	}
	path := name
	if s.Path != "" {
		path = s.Path + "/" + name
	}
	child := &Section{
		Name:   name,
		Title:  titleFromName(name),
		Path:   path,
		Parent: s,
	}
	s.Sections = append(s.Sections, child)
	sort.SliceStable(s.Sections, func(i, j int) bool {
		return s.Sections[i].Name < s.Sections[j].Name
	})
	return child
}

// Walk visits this section and all descendants depth-first.
func (s *Section) Walk(fn func(*Section)) {
	fn(s)
	for _, child := range s.Sections {
		child.Walk(fn)
	}
}

// sortPages fixes the stable (weight, date desc, title) order of the
// section's own pages.
func (s *Section) sortPages() {
	SortPages(s.Pages)
}

// titleFromName converts a path segment like "getting-started" into a
// display title like "Getting Started".
func titleFromName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
