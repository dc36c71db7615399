package incremental

import (
	"testing"
	"time"

	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
)

func testClassifier() *Classifier {
	cfg := config.Default()
	cfg.Site.Title = "Test"
	cfg.RootPath = "/site"
	cfg.Content.WatchPaths = []string{"notes"}
	return NewClassifier(cfg)
}

func TestClassify(t *testing.T) {
	cls := testClassifier()

	tests := []struct {
		path string
		want ChangeKind
	}{
		{"bengal.yaml", KindConfig},
		{"bengal.toml", KindConfig},
		{"content/docs/install.md", KindContent},
		{"content/_index.md", KindContent},
		{".bengal/generated/python/api.md", KindContent},
		{"notes/todo.md", KindContent},
		{"templates/_default/single.html", KindTemplate},
		{"themes/default/templates/partials/head.html", KindTemplate},
		{"data/team.yaml", KindData},
		{"assets/css/style.css", KindAsset},
		{"assets/img/logo.png", KindAsset},
		{"README.md", KindOther},
		{"contentious/file.md", KindOther},
	}
	for _, tt := range tests {
		if got := cls.Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestKeyNormalization(t *testing.T) {
	cls := testClassifier()

	if got := cls.TemplateName("templates/_default/single.html"); got != "_default/single.html" {
		t.Errorf("TemplateName = %q", got)
	}
	if got := cls.TemplateName("themes/default/templates/partials/head.html"); got != "partials/head.html" {
		t.Errorf("TemplateName (theme) = %q", got)
	}
	if got := cls.AssetKey("assets/css/style.css"); got != "css/style.css" {
		t.Errorf("AssetKey = %q", got)
	}
	if got := cls.ContentKey("content/docs/install.md"); got != "docs/install.md" {
		t.Errorf("ContentKey = %q", got)
	}
	if got := cls.ContentKey(".bengal/generated/python/api.md"); got != content.AutodocPrefix+"python/api.md" {
		t.Errorf("ContentKey (generated) = %q", got)
	}
}

func TestSectionStructural(t *testing.T) {
	cls := testClassifier()

	tests := []struct {
		name string
		ch   Change
		want bool
	}{
		{"index created", Change{Path: "content/docs/_index.md", Op: OpCreate, Kind: KindContent}, true},
		{"index removed", Change{Path: "content/docs/_index.md", Op: OpRemove, Kind: KindContent}, true},
		{"index edited", Change{Path: "content/docs/_index.md", Op: OpWrite, Kind: KindContent}, false},
		{"page created", Change{Path: "content/docs/new.md", Op: OpCreate, Kind: KindContent}, false},
		{"directory renamed", Change{Path: "content/docs", Op: OpRename, Kind: KindContent}, true},
		{"template created", Change{Path: "templates/x.html", Op: OpCreate, Kind: KindTemplate}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cls.SectionStructural(tt.ch); got != tt.want {
				t.Errorf("SectionStructural = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNavDigest(t *testing.T) {
	p := &content.Page{
		Title:    "Install",
		Weight:   10,
		Date:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Slug:     "install",
		Metadata: map[string]any{},
	}
	base := NavDigest(p)
	if base == "" {
		t.Fatal("NavDigest is empty")
	}
	if NavDigest(p) != base {
		t.Error("NavDigest not deterministic")
	}

	p.Weight = 20
	if NavDigest(p) == base {
		t.Error("NavDigest unchanged after weight edit")
	}
	p.Weight = 10
	if NavDigest(p) != base {
		t.Error("NavDigest did not return to base after revert")
	}

	// Menu membership participates.
	p.Metadata["menu"] = map[string]any{"main": map[string]any{"weight": 5}}
	if NavDigest(p) == base {
		t.Error("NavDigest unchanged after menu edit")
	}
}

func TestCascadeDigest(t *testing.T) {
	p := &content.Page{Metadata: map[string]any{}}
	if got := CascadeDigest(p); got != "" {
		t.Errorf("CascadeDigest without cascade = %q, want empty", got)
	}

	p.Metadata["cascade"] = map[string]any{"type": "docs", "version": "2.0"}
	first := CascadeDigest(p)
	if first == "" {
		t.Fatal("CascadeDigest is empty for declared cascade")
	}

	// Key order must not matter.
	p.Metadata["cascade"] = map[string]any{"version": "2.0", "type": "docs"}
	if got := CascadeDigest(p); got != first {
		t.Errorf("CascadeDigest sensitive to map order: %q vs %q", got, first)
	}

	p.Metadata["cascade"] = map[string]any{"type": "blog"}
	if got := CascadeDigest(p); got == first {
		t.Error("CascadeDigest unchanged after value edit")
	}
}
