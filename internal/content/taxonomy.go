package content

import (
	"fmt"
	"sort"
	"strings"
)

// Taxonomy holds all terms and their associated pages for a taxonomy type.
type Taxonomy struct {
	Name     string             // e.g., "tags"
	Singular string             // e.g., "tag"
	Terms    map[string][]*Page // normalized term -> pages
}

// TermNames returns the taxonomy's terms in lexicographic order.
func (t *Taxonomy) TermNames() []string {
	names := make([]string, 0, len(t.Terms))
	for term := range t.Terms {
		names = append(names, term)
	}
	sort.Strings(names)
	return names
}

// BuildTaxonomies creates taxonomy maps from all pages based on config.
// The taxonomies parameter maps plural names to singular names,
// e.g., {"tags": "tag", "categories": "category"}. Terms are normalized to
// lowercase and draft pages are excluded by the caller.
func BuildTaxonomies(pages []*Page, taxonomies map[string]string) map[string]*Taxonomy {
	result := make(map[string]*Taxonomy, len(taxonomies))

	for plural, singular := range taxonomies {
		tax := &Taxonomy{
			Name:     plural,
			Singular: singular,
			Terms:    make(map[string][]*Page),
		}

		for _, p := range pages {
			var terms []string
			switch plural {
			case "tags":
				terms = p.Tags
			case "categories":
				terms = p.Categories
			default:
				// For custom taxonomies, look in the page's metadata.
				if v, ok := p.Metadata[plural]; ok {
					if s, err := toStringSlice(v); err == nil {
						terms = s
					}
				}
			}

			for _, term := range terms {
				normalized := strings.ToLower(strings.TrimSpace(term))
				if normalized == "" {
					continue
				}
				tax.Terms[normalized] = append(tax.Terms[normalized], p)
			}
		}

		// Sort pages within each term by date, newest first.
		for term := range tax.Terms {
			SortByDate(tax.Terms[term], false)
		}

		result[plural] = tax
	}

	return result
}

// GenerateTaxonomyPages creates generated listing pages for every taxonomy.
// For each taxonomy (e.g., tags) it creates:
//   - a terms page at /tags/ listing all terms (layout "taxonomy")
//   - a term page at /tags/go/ for each term (layout "term")
//
// Generated pages carry virtual keys so they participate in incremental
// tracking like any other page.
func GenerateTaxonomyPages(taxonomies map[string]*Taxonomy) []*Page {
	var pages []*Page

	// Sort taxonomy names for deterministic output.
	taxNames := make([]string, 0, len(taxonomies))
	for name := range taxonomies {
		taxNames = append(taxNames, name)
	}
	sort.Strings(taxNames)

	for _, name := range taxNames {
		tax := taxonomies[name]

		// The terms page (e.g., /tags/).
		listPage := &Page{
			Key:       VirtualPrefix + name + "/_index.md",
			Title:     titleFromName(name),
			Slug:      name,
			URL:       fmt.Sprintf("/%s/", name),
			Kind:      KindSection,
			Layout:    "taxonomy",
			Generated: true,
			Metadata: map[string]any{
				"taxonomy": name,
				"terms":    tax.TermNames(),
			},
		}
		pages = append(pages, listPage)

		// A page for each term (e.g., /tags/go/).
		for _, term := range tax.TermNames() {
			termPages := tax.Terms[term]
			slug := Slugify(term)
			termPage := &Page{
				Key:       fmt.Sprintf("%s%s/%s.md", VirtualPrefix, name, slug),
				Title:     term,
				Slug:      slug,
				URL:       fmt.Sprintf("/%s/%s/", name, slug),
				Kind:      KindSection,
				Layout:    "term",
				Generated: true,
				Metadata: map[string]any{
					"taxonomy": name,
					"term":     term,
					"count":    len(termPages),
				},
			}
			pages = append(pages, termPage)
		}
	}

	return pages
}
