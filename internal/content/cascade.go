package content

import (
	"maps"
	"sort"
)

// ApplyCascade propagates cascade metadata down the section tree, evaluated
// from the root downward:
//
//  1. The root layer is merged from every top-level page that declares a
//     `cascade` block, in lexicographic key order with the first declaration
//     of a key winning. That makes the composition deterministic when two
//     top-level files declare the same key.
//  2. At each section, the section's own cascade merges on top of the
//     parent's effective cascade.
//  3. Every page receives each effective key it does not declare itself;
//     a page's own frontmatter always wins. Section index pages inherit the
//     parent's effective cascade only, so a section's cascade block does not
//     feed back into the index page that declared it.
func ApplyCascade(site *Site) {
	if site.Root == nil {
		return
	}
	rootLayer := rootCascade(site)
	applyCascadeToSection(site.Root, rootLayer)
}

// rootCascade merges the cascade blocks declared by top-level pages. Pages
// are visited in lexicographic key order; the first declaration of a key
// wins.
func rootCascade(site *Site) map[string]any {
	root := site.Root

	candidates := make([]*Page, 0, len(root.Pages)+1)
	if root.IndexPage != nil {
		candidates = append(candidates, root.IndexPage)
	}
	candidates = append(candidates, root.Pages...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Key < candidates[j].Key
	})

	merged := make(map[string]any)
	for _, p := range candidates {
		v, ok := p.Metadata["cascade"]
		if !ok {
			continue
		}
		block, ok := toStringMap(v)
		if !ok {
			continue
		}
		for k, val := range block {
			if _, exists := merged[k]; !exists {
				merged[k] = val
			}
		}
	}
	return merged
}

// applyCascadeToSection applies the parent's effective cascade to the
// section's index page, computes this section's effective cascade, applies
// it to the section's pages, and recurses.
func applyCascadeToSection(s *Section, parentEffective map[string]any) {
	if s.IndexPage != nil && !s.IsRoot() {
		applyCascadeToPage(s.IndexPage, parentEffective)
	}

	effective := parentEffective
	if !s.IsRoot() && len(s.Cascade) > 0 {
		effective = make(map[string]any, len(parentEffective)+len(s.Cascade))
		maps.Copy(effective, parentEffective)
		maps.Copy(effective, s.Cascade)
	}

	for _, p := range s.Pages {
		applyCascadeToPage(p, effective)
	}
	for _, child := range s.Sections {
		applyCascadeToSection(child, effective)
	}
}

// applyCascadeToPage sets every effective key the page does not declare
// itself. Typed fields with metadata counterparts are mirrored.
func applyCascadeToPage(p *Page, effective map[string]any) {
	if len(effective) == 0 {
		return
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]any, len(effective))
	}
	for k, v := range effective {
		if k == "cascade" || p.Declared(k) {
			continue
		}
		p.Metadata[k] = v
		applyInheritedField(p, k, v)
	}
}
