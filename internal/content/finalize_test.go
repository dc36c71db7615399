package content

import (
	"strings"
	"testing"
)

func TestFinalizeSectionsEveryIndexNonNil(t *testing.T) {
	// A mix of explicit _index.md sections, implicit sections reachable only
	// through deeper files, and a root without an index of its own.
	cfg := writeSiteFiles(t, map[string]string{
		"about.md":                 "---\ntitle: About\n---\n",
		"docs/_index.md":           "---\ntitle: Docs\n---\n",
		"docs/guide/install.md":    "---\ntitle: Install\n---\n",
		"docs/guide/deep/trick.md": "---\ntitle: Trick\n---\n",
		"blog/first.md":            "---\ntitle: First\n---\n",
	})

	result, err := Discover(cfg)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	site := NewSite(cfg)
	site.Root = result.Root
	site.AddPages(result.Pages...)
	site.AddPages(FinalizeSections(site)...)

	site.Root.Walk(func(s *Section) {
		if s.IndexPage == nil {
			t.Errorf("section %q has no index page after finalization", s.Path)
			return
		}
		if s.IndexPage.URL != s.URL() {
			t.Errorf("section %q index URL = %q, want %q", s.Path, s.IndexPage.URL, s.URL())
		}
		if s.IndexPage.Section() != s {
			t.Errorf("section %q index page does not point back to its section", s.Path)
		}
	})

	// Generated indexes are addressable through the site like any page.
	for _, key := range []string{
		VirtualPrefix + "_index.md",
		VirtualPrefix + "docs/guide/_index.md",
		VirtualPrefix + "docs/guide/deep/_index.md",
		VirtualPrefix + "blog/_index.md",
	} {
		p, ok := site.PageByKey(key)
		if !ok {
			t.Errorf("generated index %q not registered with the site", key)
			continue
		}
		if !p.Generated {
			t.Errorf("%q should be marked generated", key)
		}
	}

	// The explicit docs index survives untouched.
	docs, ok := site.PageByKey("docs/_index.md")
	if !ok {
		t.Fatal("docs/_index.md not found")
	}
	if docs.Generated {
		t.Error("explicit index page was replaced by a generated one")
	}
}

func TestFinalizeSectionsGeneratedRootIsHome(t *testing.T) {
	cfg := writeSiteFiles(t, map[string]string{
		"post.md": "---\ntitle: Only Post\n---\n",
	})

	result, err := Discover(cfg)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	site := NewSite(cfg)
	site.Root = result.Root
	site.AddPages(result.Pages...)
	generated := FinalizeSections(site)
	site.AddPages(generated...)

	home := findPageByURL(generated, "/")
	if home == nil {
		t.Fatal("no generated home page for a site without _index.md")
	}
	if home.Kind != KindHome {
		t.Errorf("generated root index Kind = %v, want KindHome", home.Kind)
	}
	if home.Title != "Home" {
		t.Errorf("generated root index Title = %q, want %q", home.Title, "Home")
	}
}

func TestFinalizeSectionsIndexOnlySection(t *testing.T) {
	// A section whose only file is its _index.md is a legitimate leaf: it
	// keeps its own index and generates nothing extra.
	cfg := writeSiteFiles(t, map[string]string{
		"_index.md":       "---\ntitle: Home\n---\n",
		"legal/_index.md": "---\ntitle: Legal\n---\n\nTerms live here.\n",
	})

	result, err := Discover(cfg)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	site := NewSite(cfg)
	site.Root = result.Root
	site.AddPages(result.Pages...)
	generated := FinalizeSections(site)

	if len(generated) != 0 {
		keys := make([]string, len(generated))
		for i, p := range generated {
			keys[i] = p.Key
		}
		t.Fatalf("generated %d index pages for fully indexed tree: %s",
			len(generated), strings.Join(keys, ", "))
	}

	legal := site.Root.Child("legal")
	if legal == nil {
		t.Fatal("legal section not found")
	}
	if legal.IndexPage == nil || legal.IndexPage.Key != "legal/_index.md" {
		t.Errorf("legal section index = %v, want the explicit legal/_index.md", legal.IndexPage)
	}
	if len(legal.RegularPages()) != 0 {
		t.Errorf("index-only section has %d regular pages, want 0", len(legal.RegularPages()))
	}
}

func TestFinalizeSectionsIdempotent(t *testing.T) {
	cfg := writeSiteFiles(t, map[string]string{
		"notes/first.md": "---\ntitle: First\n---\n",
	})

	result, err := Discover(cfg)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	site := NewSite(cfg)
	site.Root = result.Root
	site.AddPages(result.Pages...)

	first := FinalizeSections(site)
	site.AddPages(first...)
	if len(first) == 0 {
		t.Fatal("first finalization generated nothing")
	}
	if again := FinalizeSections(site); len(again) != 0 {
		t.Errorf("second finalization generated %d pages, want 0", len(again))
	}
}
