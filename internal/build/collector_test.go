package build

import (
	"testing"

	"github.com/spf13/afero"
)

func TestCollectorWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := NewCollector(fs, "public")

	if err := c.Write("posts/index.html", []byte("<html>post</html>")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := afero.ReadFile(fs, "public/posts/index.html")
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "<html>post</html>" {
		t.Errorf("output = %q", data)
	}

	if !c.Written("posts/index.html") {
		t.Error("Written = false for a written path")
	}
	if !c.Exists("posts/index.html") {
		t.Error("Exists = false for a written path")
	}
	if c.Count() != 1 {
		t.Errorf("Count = %d, want 1", c.Count())
	}

	recs := c.Records()
	if len(recs) != 1 {
		t.Fatalf("Records = %d entries, want 1", len(recs))
	}
	r := recs[0]
	if r.Path != "posts/index.html" || r.Kind != KindHTML {
		t.Errorf("record = %+v", r)
	}
	if r.Size != int64(len("<html>post</html>")) || r.Hash == "" {
		t.Errorf("record size/hash = %d/%q", r.Size, r.Hash)
	}
}

func TestCollectorLastWriteWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := NewCollector(fs, "public")

	if err := c.Write("index.html", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := c.Write("index.html", []byte("second")); err != nil {
		t.Fatal(err)
	}

	if c.Count() != 1 {
		t.Errorf("Count = %d, want 1", c.Count())
	}
	recs := c.Records()
	if len(recs) != 1 || recs[0].Size != int64(len("second")) {
		t.Errorf("records = %+v, want single entry for the second write", recs)
	}
	data, _ := afero.ReadFile(fs, "public/index.html")
	if string(data) != "second" {
		t.Errorf("output = %q, want %q", data, "second")
	}
}

func TestCollectorWriteIfChanged(t *testing.T) {
	fs := afero.NewMemMapFs()

	first := NewCollector(fs, "public")
	changed, err := first.WriteIfChanged("sitemap.xml", []byte("<urlset/>"))
	if err != nil || !changed {
		t.Fatalf("initial WriteIfChanged = (%v, %v), want (true, nil)", changed, err)
	}

	// A later build re-emitting identical bytes records nothing.
	second := NewCollector(fs, "public")
	changed, err = second.WriteIfChanged("sitemap.xml", []byte("<urlset/>"))
	if err != nil || changed {
		t.Fatalf("unchanged WriteIfChanged = (%v, %v), want (false, nil)", changed, err)
	}
	if second.Count() != 0 {
		t.Errorf("unchanged write recorded: Count = %d", second.Count())
	}

	changed, err = second.WriteIfChanged("sitemap.xml", []byte("<urlset>new</urlset>"))
	if err != nil || !changed {
		t.Fatalf("changed WriteIfChanged = (%v, %v), want (true, nil)", changed, err)
	}
	if second.Count() != 1 {
		t.Errorf("changed write not recorded: Count = %d", second.Count())
	}
}

func TestCollectorRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := NewCollector(fs, "public")

	if err := c.Write("gone/index.html", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove("gone/index.html"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if c.Exists("gone/index.html") {
		t.Error("file still present after Remove")
	}
	if err := c.Remove("never/was/here.html"); err != nil {
		t.Errorf("removing a missing file: %v", err)
	}
}

func TestCollectorSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := NewCollector(fs, "public")

	c.Write("a.html", []byte("a"))
	c.Write("b.css", []byte("b"))

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot = %v, want 2 entries", snap)
	}
	for _, rec := range c.Records() {
		if snap[rec.Path] != rec.Hash {
			t.Errorf("snapshot[%s] = %q, want %q", rec.Path, snap[rec.Path], rec.Hash)
		}
	}
}

func TestCleanOutputPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "index.html", want: "index.html"},
		{in: "/abs/index.html", want: "abs/index.html"},
		{in: "a/./b.html", want: "a/b.html"},
		{in: "a/../b.html", want: "b.html"},
		{in: "../escape.html", wantErr: true},
		{in: "a/../../escape.html", wantErr: true},
		{in: "..", wantErr: true},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
	}
	for _, tt := range tests {
		got, err := cleanOutputPath(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("cleanOutputPath(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("cleanOutputPath(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		path string
		want OutputKind
	}{
		{"index.html", KindHTML},
		{"docs/page.htm", KindHTML},
		{"assets/css/site.css", KindCSS},
		{"assets/CSS/SITE.CSS", KindCSS},
		{"assets/js/app.js", KindJS},
		{"assets/js/app.mjs", KindJS},
		{"img/logo.png", KindAsset},
		{"fonts/sans.woff2", KindAsset},
		{"sitemap.xml", KindOther},
		{"search-index.json", KindOther},
		{"LICENSE", KindOther},
	}
	for _, tt := range tests {
		if got := KindFor(tt.path); got != tt.want {
			t.Errorf("KindFor(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}
