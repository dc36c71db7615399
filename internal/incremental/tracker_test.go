package incremental

import (
	"reflect"
	"testing"

	"github.com/bengal-ssg/bengal/internal/cache"
)

func TestTrackerAddAndDependents(t *testing.T) {
	tr := NewTracker()
	tr.AddTemplate("docs/a.md", "_default/single.html")
	tr.AddTemplate("docs/b.md", "_default/single.html")
	tr.AddTemplate("docs/a.md", "partials/head.html")
	tr.AddData("docs/a.md", "data/team.yaml")
	tr.AddAsset("_index.md", "css/style.css")
	tr.AddPage("docs/_index.md", "docs/a.md")

	got := tr.Dependents(EdgeTemplate, "_default/single.html")
	want := []string{"docs/a.md", "docs/b.md"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dependents(template) = %v, want %v", got, want)
	}

	if got := tr.Dependents(EdgeData, "data/team.yaml"); !reflect.DeepEqual(got, []string{"docs/a.md"}) {
		t.Errorf("Dependents(data) = %v", got)
	}
	if got := tr.Dependents(EdgePage, "docs/a.md"); !reflect.DeepEqual(got, []string{"docs/_index.md"}) {
		t.Errorf("Dependents(page) = %v", got)
	}
	if got := tr.Dependents(EdgeTemplate, "unknown.html"); got != nil {
		t.Errorf("Dependents(unknown) = %v, want nil", got)
	}
}

func TestTrackerIgnoresDegenerateEdges(t *testing.T) {
	tr := NewTracker()
	tr.AddPage("docs/a.md", "docs/a.md") // self-edge
	tr.AddPage("", "docs/a.md")
	tr.AddPage("docs/a.md", "")

	if rec := tr.DepsOf("docs/a.md"); !rec.Empty() {
		t.Errorf("DepsOf after degenerate adds = %+v", rec)
	}
}

func TestTrackerForget(t *testing.T) {
	tr := NewTracker()
	tr.AddTemplate("docs/a.md", "single.html")
	tr.AddTemplate("docs/b.md", "single.html")

	tr.Forget("docs/a.md")

	if got := tr.Dependents(EdgeTemplate, "single.html"); !reflect.DeepEqual(got, []string{"docs/b.md"}) {
		t.Errorf("Dependents after Forget = %v", got)
	}
	if rec := tr.DepsOf("docs/a.md"); !rec.Empty() {
		t.Errorf("DepsOf after Forget = %+v", rec)
	}

	// Forgetting the last dependent drops the reverse entry entirely.
	tr.Forget("docs/b.md")
	if got := tr.Dependents(EdgeTemplate, "single.html"); got != nil {
		t.Errorf("Dependents after forgetting all = %v", got)
	}
}

func TestTrackerReplace(t *testing.T) {
	tr := NewTracker()
	tr.AddTemplate("docs/a.md", "old.html")
	tr.AddData("docs/a.md", "data/old.yaml")

	tr.Replace(cache.DepRecord{
		Key:       "docs/a.md",
		Templates: []string{"new.html"},
		Assets:    []string{"css/style.css"},
	})

	if got := tr.Dependents(EdgeTemplate, "old.html"); got != nil {
		t.Errorf("old template edge survived Replace: %v", got)
	}
	rec := tr.DepsOf("docs/a.md")
	want := cache.DepRecord{
		Key:       "docs/a.md",
		Templates: []string{"new.html"},
		Assets:    []string{"css/style.css"},
	}
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("DepsOf = %+v, want %+v", rec, want)
	}
}

func TestTrackerLoadAndRecords(t *testing.T) {
	records := []cache.DepRecord{
		{Key: "docs/b.md", Templates: []string{"single.html"}, Pages: []string{"docs/a.md"}},
		{Key: "docs/a.md", Templates: []string{"single.html"}, DataFiles: []string{"data/team.yaml"}},
	}

	tr := NewTracker()
	tr.AddTemplate("stale.md", "stale.html") // replaced by Load
	tr.Load(records)

	if got := tr.Dependents(EdgeTemplate, "stale.html"); got != nil {
		t.Errorf("stale edge survived Load: %v", got)
	}

	out := tr.Records()
	if len(out) != 2 {
		t.Fatalf("Records returned %d records, want 2", len(out))
	}
	// Sorted by page key.
	if out[0].Key != "docs/a.md" || out[1].Key != "docs/b.md" {
		t.Errorf("Records order = %s, %s", out[0].Key, out[1].Key)
	}
	if !reflect.DeepEqual(out[0].DataFiles, []string{"data/team.yaml"}) {
		t.Errorf("round-tripped data files = %v", out[0].DataFiles)
	}
	if !reflect.DeepEqual(out[1].Pages, []string{"docs/a.md"}) {
		t.Errorf("round-tripped page deps = %v", out[1].Pages)
	}
}
