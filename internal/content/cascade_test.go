package content

import (
	"testing"
)

// cascadeSite discovers a fixture tree exercising every cascade rule and
// runs section finalization plus cascade application, the same order the
// build pipeline uses.
func cascadeSite(t *testing.T) *Site {
	t.Helper()
	cfg := writeSiteFiles(t, map[string]string{
		"_index.md":           "---\ntitle: Home\ncascade:\n  site_wide: root-val\n  layout: base\n---\n",
		"a.md":                "---\ntitle: A\ncascade:\n  shared: from-a\n---\n",
		"b.md":                "---\ntitle: B\ncascade:\n  shared: from-b\n---\n",
		"docs/_index.md":      "---\ntitle: Docs\ncascade:\n  banner: docs-banner\n  site_wide: docs-override\n---\n",
		"docs/page1.md":       "---\ntitle: Page One\n---\n",
		"docs/deep/_index.md": "---\ntitle: Deep\ncascade:\n  banner: deep-banner\n---\n",
		"docs/deep/page2.md":  "---\ntitle: Page Two\n---\n",
		"docs/deep/page3.md":  "---\ntitle: Page Three\nbanner: own-banner\n---\n",
	})

	result, err := Discover(cfg)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	site := NewSite(cfg)
	site.Root = result.Root
	site.AddPages(result.Pages...)
	site.AddPages(FinalizeSections(site)...)
	ApplyCascade(site)
	return site
}

func mustPage(t *testing.T, site *Site, key string) *Page {
	t.Helper()
	p, ok := site.PageByKey(key)
	if !ok {
		t.Fatalf("page %q not found", key)
	}
	return p
}

func TestCascadeSectionToPages(t *testing.T) {
	site := cascadeSite(t)

	page1 := mustPage(t, site, "docs/page1.md")
	if got := page1.Param("banner"); got != "docs-banner" {
		t.Errorf("page1 banner = %v, want docs-banner", got)
	}
	if got := page1.Param("site_wide"); got != "docs-override" {
		t.Errorf("page1 site_wide = %v, want docs-override (nearest section wins)", got)
	}
	// Typed fields mirror cascaded metadata.
	if page1.Layout != "base" {
		t.Errorf("page1 Layout = %q, want %q (cascaded from root)", page1.Layout, "base")
	}
}

func TestCascadeNearestAncestorWins(t *testing.T) {
	site := cascadeSite(t)

	page2 := mustPage(t, site, "docs/deep/page2.md")
	if got := page2.Param("banner"); got != "deep-banner" {
		t.Errorf("page2 banner = %v, want deep-banner", got)
	}
	if got := page2.Param("site_wide"); got != "docs-override" {
		t.Errorf("page2 site_wide = %v, want docs-override", got)
	}
}

func TestCascadePageFrontmatterWins(t *testing.T) {
	site := cascadeSite(t)

	page3 := mustPage(t, site, "docs/deep/page3.md")
	if got := page3.Param("banner"); got != "own-banner" {
		t.Errorf("page3 banner = %v, want own-banner (page frontmatter wins)", got)
	}
}

func TestCascadeRootLayerFirstDeclarationWins(t *testing.T) {
	site := cascadeSite(t)

	// a.md sorts before b.md, so its declaration of "shared" wins the root
	// layer merge; both pages see the merged value.
	a := mustPage(t, site, "a.md")
	b := mustPage(t, site, "b.md")
	if got := a.Param("shared"); got != "from-a" {
		t.Errorf("a.md shared = %v, want from-a", got)
	}
	if got := b.Param("shared"); got != "from-a" {
		t.Errorf("b.md shared = %v, want from-a (lexicographic first wins)", got)
	}
}

func TestCascadeKeyDoesNotPropagate(t *testing.T) {
	site := cascadeSite(t)

	page1 := mustPage(t, site, "docs/page1.md")
	if _, ok := page1.Metadata["cascade"]; ok {
		t.Error("the cascade block itself must not appear in child metadata")
	}
}

func TestCascadeIndexPageInheritsParentOnly(t *testing.T) {
	site := cascadeSite(t)

	deepIndex := mustPage(t, site, "docs/deep/_index.md")
	// The deep index declares banner: deep-banner in its own cascade block,
	// but its inherited value comes from the parent section.
	if got := deepIndex.Param("banner"); got != "docs-banner" {
		t.Errorf("deep index banner = %v, want docs-banner (parent effective only)", got)
	}
	if got := deepIndex.Param("site_wide"); got != "docs-override" {
		t.Errorf("deep index site_wide = %v, want docs-override", got)
	}
}

func TestCascadeDeepChain(t *testing.T) {
	// Ten nested sections, most of them implicit. Values declared high up
	// flow through every level; the nearest declaring ancestor wins.
	files := map[string]string{
		"_index.md":                                  "---\ntitle: Home\ncascade:\n  origin: root\n---\n",
		"l1/l2/l3/l4/l5/_index.md":                   "---\ntitle: Five\ncascade:\n  mid: five\n---\n",
		"l1/l2/l3/l4/l5/l6/preview.md":               "---\ntitle: Preview\n---\n",
		"l1/l2/l3/l4/l5/l6/l7/l8/_index.md":          "---\ntitle: Eight\ncascade:\n  mid: eight\n---\n",
		"l1/l2/l3/l4/l5/l6/l7/l8/l9/l10/leaf.md":     "---\ntitle: Leaf\n---\n",
		"l1/l2/l3/l4/l5/l6/l7/l8/l9/l10/stubborn.md": "---\ntitle: Stubborn\nmid: mine\n---\n",
	}
	cfg := writeSiteFiles(t, files)
	result, err := Discover(cfg)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	site := NewSite(cfg)
	site.Root = result.Root
	site.AddPages(result.Pages...)
	site.AddPages(FinalizeSections(site)...)
	ApplyCascade(site)

	leaf := mustPage(t, site, "l1/l2/l3/l4/l5/l6/l7/l8/l9/l10/leaf.md")
	if got := leaf.Param("origin"); got != "root" {
		t.Errorf("leaf origin = %v, want root (10 levels down)", got)
	}
	if got := leaf.Param("mid"); got != "eight" {
		t.Errorf("leaf mid = %v, want eight (nearest declaring ancestor)", got)
	}

	preview := mustPage(t, site, "l1/l2/l3/l4/l5/l6/preview.md")
	if got := preview.Param("mid"); got != "five" {
		t.Errorf("preview mid = %v, want five", got)
	}
	if got := preview.Param("origin"); got != "root" {
		t.Errorf("preview origin = %v, want root", got)
	}

	stubborn := mustPage(t, site, "l1/l2/l3/l4/l5/l6/l7/l8/l9/l10/stubborn.md")
	if got := stubborn.Param("mid"); got != "mine" {
		t.Errorf("stubborn mid = %v, want mine (own frontmatter wins)", got)
	}
}

func TestCascadeGeneratedIndexReceivesCascade(t *testing.T) {
	// A section without an _index.md gets a generated index that still
	// participates in cascade like any page.
	cfg := writeSiteFiles(t, map[string]string{
		"_index.md":      "---\ntitle: Home\ncascade:\n  tone: calm\n---\n",
		"notes/first.md": "---\ntitle: First Note\n---\n",
	})
	result, err := Discover(cfg)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	site := NewSite(cfg)
	site.Root = result.Root
	site.AddPages(result.Pages...)
	site.AddPages(FinalizeSections(site)...)
	ApplyCascade(site)

	idx := mustPage(t, site, VirtualPrefix+"notes/_index.md")
	if got := idx.Param("tone"); got != "calm" {
		t.Errorf("generated index tone = %v, want calm", got)
	}
	first := mustPage(t, site, "notes/first.md")
	if got := first.Param("tone"); got != "calm" {
		t.Errorf("notes/first.md tone = %v, want calm", got)
	}
}
