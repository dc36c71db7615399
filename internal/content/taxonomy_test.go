package content

import (
	"testing"
	"time"
)

func taxonomyFixturePages() []*Page {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return []*Page{
		{
			Key:   "blog/oldest.md",
			Title: "Oldest",
			Kind:  KindPage,
			Date:  base,
			Tags:  []string{"go", "Testing"},
		},
		{
			Key:        "blog/middle.md",
			Title:      "Middle",
			Kind:       KindPage,
			Date:       base.AddDate(0, 0, 5),
			Tags:       []string{"GO"},
			Categories: []string{"tech"},
		},
		{
			Key:      "blog/custom.md",
			Title:    "Custom",
			Kind:     KindPage,
			Date:     base.AddDate(0, 0, 10),
			Metadata: map[string]any{"series": []any{"Go Basics"}},
		},
	}
}

func TestBuildTaxonomies(t *testing.T) {
	pages := taxonomyFixturePages()
	taxes := BuildTaxonomies(pages, map[string]string{
		"tags":       "tag",
		"categories": "category",
		"series":     "series",
	})

	tags := taxes["tags"]
	if tags == nil {
		t.Fatal("tags taxonomy missing")
	}

	// "go", "GO" normalize to one term; "Testing" to "testing".
	goPages, ok := tags.Terms["go"]
	if !ok {
		t.Fatalf("term \"go\" missing; terms: %v", tags.TermNames())
	}
	if len(goPages) != 2 {
		t.Errorf("term \"go\" has %d pages, want 2", len(goPages))
	}
	// Pages within a term are newest first.
	if goPages[0].Title != "Middle" || goPages[1].Title != "Oldest" {
		t.Errorf("term \"go\" order = %v, want [Middle Oldest]", titles(goPages))
	}
	if _, ok := tags.Terms["testing"]; !ok {
		t.Errorf("term \"testing\" missing; terms: %v", tags.TermNames())
	}

	// Custom taxonomy read from page metadata.
	series := taxes["series"]
	if series == nil {
		t.Fatal("series taxonomy missing")
	}
	if got, ok := series.Terms["go basics"]; !ok || len(got) != 1 {
		t.Errorf("series terms = %v, want [go basics] with 1 page", series.TermNames())
	}
}

func TestTermNamesSorted(t *testing.T) {
	taxes := BuildTaxonomies(taxonomyFixturePages(), map[string]string{"tags": "tag"})
	names := taxes["tags"].TermNames()
	want := []string{"go", "testing"}
	if !equalStrings(names, want) {
		t.Errorf("TermNames() = %v, want %v", names, want)
	}
}

func TestGenerateTaxonomyPages(t *testing.T) {
	taxes := BuildTaxonomies(taxonomyFixturePages(), map[string]string{"tags": "tag"})
	pages := GenerateTaxonomyPages(taxes)

	// One terms page plus one page per term.
	if len(pages) != 3 {
		t.Fatalf("GenerateTaxonomyPages() returned %d pages, want 3", len(pages))
	}

	list := pages[0]
	if list.Key != "_virtual/tags/_index.md" {
		t.Errorf("terms page Key = %q, want %q", list.Key, "_virtual/tags/_index.md")
	}
	if list.URL != "/tags/" {
		t.Errorf("terms page URL = %q, want %q", list.URL, "/tags/")
	}
	if list.Layout != "taxonomy" {
		t.Errorf("terms page Layout = %q, want %q", list.Layout, "taxonomy")
	}
	if !list.Generated {
		t.Error("terms page should be generated")
	}

	goTerm := findPageByKey(pages, "_virtual/tags/go.md")
	if goTerm == nil {
		t.Fatalf("term page for \"go\" missing; got keys %v", pageKeys(pages))
	}
	if goTerm.URL != "/tags/go/" {
		t.Errorf("go term URL = %q, want %q", goTerm.URL, "/tags/go/")
	}
	if goTerm.Layout != "term" {
		t.Errorf("go term Layout = %q, want %q", goTerm.Layout, "term")
	}
	if got, _ := goTerm.Metadata["count"].(int); got != 2 {
		t.Errorf("go term count = %d, want 2", got)
	}
}

func TestGenerateTaxonomyPagesDeterministic(t *testing.T) {
	taxes := BuildTaxonomies(taxonomyFixturePages(), map[string]string{
		"tags":       "tag",
		"categories": "category",
	})

	first := pageKeys(GenerateTaxonomyPages(taxes))
	for i := 0; i < 5; i++ {
		again := pageKeys(GenerateTaxonomyPages(taxes))
		if !equalStrings(first, again) {
			t.Fatalf("page order changed between runs:\n%v\n%v", first, again)
		}
	}
}

func pageKeys(pages []*Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Key
	}
	return out
}
