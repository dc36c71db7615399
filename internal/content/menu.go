package content

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// MenuItem is one entry in a named navigation menu. Items come from two
// sources: explicit entries in the site config, and pages that declare a
// "menu" key in their frontmatter. Items with a Parent name nest under the
// matching item.
type MenuItem struct {
	Name     string
	URL      string
	Weight   int
	Parent   string
	Children []*MenuItem

	// Page is set when the entry was contributed by a page's frontmatter.
	Page *Page
}

// IsActive reports whether this item links to the given page URL.
func (m *MenuItem) IsActive(pageURL string) bool {
	return m.URL != "" && m.URL == pageURL
}

// InActiveTrail reports whether the given page URL falls under this item's
// URL, marking the item as an ancestor of the current page.
func (m *MenuItem) InActiveTrail(pageURL string) bool {
	if m.IsActive(pageURL) {
		return true
	}
	for _, c := range m.Children {
		if c.InActiveTrail(pageURL) {
			return true
		}
	}
	return m.URL != "" && m.URL != "/" && strings.HasPrefix(pageURL, m.URL)
}

// BuildMenus assembles the site's named menus from config entries and page
// frontmatter, nests children under parents, and sorts every level by
// (weight, name). Config entries come first at equal weight.
func BuildMenus(site *Site) map[string][]*MenuItem {
	flat := make(map[string][]*MenuItem)

	// Config-defined entries.
	if site.Config != nil {
		for menuName, entries := range site.Config.Menu {
			for _, e := range entries {
				flat[menuName] = append(flat[menuName], &MenuItem{
					Name:   e.Name,
					URL:    e.URL,
					Weight: e.Weight,
					Parent: e.Parent,
				})
			}
		}
	}

	// Frontmatter-declared entries.
	for _, p := range site.RegularPages() {
		if p.Draft {
			continue
		}
		v, ok := p.Metadata["menu"]
		if !ok {
			continue
		}
		for menuName, entry := range pageMenuEntries(v, p) {
			flat[menuName] = append(flat[menuName], entry)
		}
	}

	menus := make(map[string][]*MenuItem, len(flat))
	for name, items := range flat {
		menus[name] = nestMenuItems(items)
	}
	return menus
}

// pageMenuEntries decodes the frontmatter "menu" value. Accepted shapes:
//
//	menu: main
//	menu: [main, footer]
//	menu:
//	  main:
//	    weight: 5
//	    parent: Docs
func pageMenuEntries(v any, p *Page) map[string]*MenuItem {
	out := make(map[string]*MenuItem)

	add := func(menuName string, opts map[string]any) {
		item := &MenuItem{
			Name: p.Title,
			URL:  p.URL,
			Page: p,
		}
		if opts != nil {
			if name, ok := opts["name"].(string); ok && name != "" {
				item.Name = name
			}
			if w, err := toInt(opts["weight"]); err == nil {
				item.Weight = w
			}
			if parent, ok := opts["parent"].(string); ok {
				item.Parent = parent
			}
		}
		out[menuName] = item
	}

	switch val := v.(type) {
	case string:
		add(val, nil)
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				add(s, nil)
			}
		}
	case map[string]any:
		for menuName, raw := range val {
			opts, _ := raw.(map[string]any)
			add(menuName, opts)
		}
	case map[any]any:
		for k, raw := range val {
			menuName, ok := k.(string)
			if !ok {
				continue
			}
			opts, _ := raw.(map[string]any)
			add(menuName, opts)
		}
	}
	return out
}

// nestMenuItems moves items with a Parent under the item of that name and
// sorts each level by (weight, name). Items naming a missing parent stay at
// the top level.
func nestMenuItems(items []*MenuItem) []*MenuItem {
	byName := make(map[string]*MenuItem, len(items))
	for _, it := range items {
		byName[it.Name] = it
	}

	var roots []*MenuItem
	for _, it := range items {
		if it.Parent != "" {
			if parent, ok := byName[it.Parent]; ok && parent != it {
				parent.Children = append(parent.Children, it)
				continue
			}
		}
		roots = append(roots, it)
	}

	var sortLevel func(level []*MenuItem)
	sortLevel = func(level []*MenuItem) {
		sort.SliceStable(level, func(i, j int) bool {
			if level[i].Weight != level[j].Weight {
				return level[i].Weight < level[j].Weight
			}
			return strings.ToLower(level[i].Name) < strings.ToLower(level[j].Name)
		})
		for _, it := range level {
			sortLevel(it.Children)
		}
	}
	sortLevel(roots)
	return roots
}

// MenuSignature returns a stable fingerprint of the menu structure: names,
// URLs, weights, and nesting. Adding, removing, renaming, or reordering a
// menu entry changes the signature; editing page content does not.
func MenuSignature(menus map[string][]*MenuItem) string {
	names := make([]string, 0, len(menus))
	for name := range menus {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	var writeItems func(items []*MenuItem, depth int)
	writeItems = func(items []*MenuItem, depth int) {
		for _, it := range items {
			fmt.Fprintf(&b, "%d|%s|%s|%d\n", depth, it.Name, it.URL, it.Weight)
			writeItems(it.Children, depth+1)
		}
	}
	for _, name := range names {
		fmt.Fprintf(&b, "menu:%s\n", name)
		writeItems(menus[name], 0)
	}

	sum := blake3.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:16])
}
