package render

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
	"github.com/bengal-ssg/bengal/internal/incremental"
	tmpl "github.com/bengal-ssg/bengal/internal/template"
)

// memOutput collects rendered files in memory.
type memOutput struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemOutput() *memOutput {
	return &memOutput{files: make(map[string][]byte)}
}

func (m *memOutput) Write(rel string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[rel] = append([]byte(nil), data...)
	return nil
}

func (m *memOutput) get(rel string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[rel]
	return string(b), ok
}

var defaultFixtureFiles = map[string]string{
	"content/_index.md":       "---\ntitle: Home\n---\nWelcome home.",
	"content/docs/_index.md":  "---\ntitle: Docs\n---\nDocs index.",
	"content/docs/install.md": "---\ntitle: Install\nweight: 1\n---\nRun the installer.",
	"content/docs/config.md":  "---\ntitle: Configure\nweight: 2\n---\nSee [install](install.md).",
	"templates/_default/single.html": `<html><head><title>{{ .Title }}</title></head>` +
		`<body><h1>{{ .Title }}</h1>{{ .Content }}</body></html>`,
	"templates/_default/list.html": `<html><head><title>{{ .Title }}</title></head>` +
		`<body><h1>{{ .Title }}</h1>{{ .Content }}<ul>` +
		`{{ range .Page.Section.Pages }}<li>{{ .Title }}</li>{{ end }}</ul></body></html>`,
	"templates/index.html": `<html><head><title>{{ .Site.Title }}</title></head>` +
		`<body><h1>{{ .Title }}</h1>{{ .Content }}</body></html>`,
}

type renderFixture struct {
	cfg      *config.Config
	site     *content.Site
	coord    *cache.Coordinator
	tracker  *incremental.Tracker
	engine   *tmpl.Engine
	out      *memOutput
	renderer *Renderer
}

func newRenderFixture(t *testing.T, files map[string]string) *renderFixture {
	t.Helper()
	if files == nil {
		files = defaultFixtureFiles
	}
	root := t.TempDir()
	cfg := config.Default()
	cfg.Site.Title = "Render Test"
	cfg.Site.BaseURL = "https://example.com"
	cfg.RootPath = root

	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	res, err := content.Discover(cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	site := content.NewSite(cfg)
	site.Root = res.Root
	site.AddPages(res.Pages...)
	content.ApplyCascade(site)
	site.AddPages(content.FinalizeSections(site)...)
	site.Taxonomy = content.BuildTaxonomies(site.RegularPages(), cfg.Taxonomies)
	site.AddPages(content.GenerateTaxonomyPages(site.Taxonomy)...)
	content.SetupReferences(site)
	site.Menus = content.BuildMenus(site)

	mgr, err := cache.Open(cfg.CachePath())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	coord := cache.NewCoordinator(mgr)

	engine, err := tmpl.New(tmpl.Options{
		TemplatesDir: cfg.TemplatesPath(),
		BaseURL:      cfg.Site.BaseURL,
	})
	if err != nil {
		t.Fatalf("template.New: %v", err)
	}

	out := newMemOutput()
	tracker := incremental.NewTracker()
	refs := NewRefResolver(site)
	r := New(Options{
		Site:    site,
		Config:  cfg,
		Engine:  engine,
		Coord:   coord,
		Tracker: tracker,
		Out:     out,
		Refs:    refs,
		Workers: 2,
	})
	engine.Bind(tmpl.Bindings{
		Refs: refs,
		Data: func(name string) (any, bool) { v, ok := site.Data[name]; return v, ok },
		Sink: r.Sink(),
	})

	return &renderFixture{
		cfg:      cfg,
		site:     site,
		coord:    coord,
		tracker:  tracker,
		engine:   engine,
		out:      out,
		renderer: r,
	}
}

// fullPlan marks every site page for rebuild, as a cold build would.
func fullPlan(site *content.Site) *incremental.Plan {
	plan := &incremental.Plan{Full: true, Entries: make(map[string]*incremental.Entry)}
	for _, p := range site.Pages {
		plan.Entries[p.Key] = &incremental.Entry{
			Key:    p.Key,
			Reason: incremental.ReasonContentChanged,
		}
	}
	return plan
}

func TestRenderAllWritesOutputs(t *testing.T) {
	f := newRenderFixture(t, nil)

	res := f.renderer.RenderAll(context.Background(), fullPlan(f.site))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected page errors: %+v", res.Errors)
	}

	home, ok := f.out.get("index.html")
	if !ok {
		t.Fatal("home page not written")
	}
	if !strings.Contains(home, "<h1>Home</h1>") || !strings.Contains(home, "Welcome home.") {
		t.Errorf("home output missing content:\n%s", home)
	}

	install, ok := f.out.get("docs/install/index.html")
	if !ok {
		t.Fatal("docs/install not written")
	}
	if !strings.Contains(install, "<h1>Install</h1>") {
		t.Errorf("install output missing title:\n%s", install)
	}
	if ExtractContentHash([]byte(install)) == "" {
		t.Error("install output missing content-hash meta tag")
	}

	// Section index rendered through the list template with its child pages.
	docs, ok := f.out.get("docs/index.html")
	if !ok {
		t.Fatal("docs section index not written")
	}
	if !strings.Contains(docs, "<li>Install</li>") || !strings.Contains(docs, "<li>Configure</li>") {
		t.Errorf("docs list missing children:\n%s", docs)
	}
}

// The summary limit comes from content.summary_length, not a renderer
// constant.
func TestRenderSummaryLengthFromConfig(t *testing.T) {
	files := map[string]string{
		"content/_index.md": "---\ntitle: Home\n---\n" + strings.Repeat("incremental build ", 40),
		"templates/index.html": `<html><head><title>{{ .Title }}</title></head>` +
			`<body>{{ .Content }}</body></html>`,
	}
	f := newRenderFixture(t, files)
	f.cfg.Content.SummaryLength = 40

	res := f.renderer.RenderAll(context.Background(), fullPlan(f.site))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected page errors: %+v", res.Errors)
	}

	home, ok := f.site.PageByKey("_index.md")
	if !ok {
		t.Fatal("home page not found")
	}
	plain := content.StripTags(home.Summary)
	if len(plain) > 44 {
		t.Errorf("summary length %d exceeds configured limit plus ellipsis: %q", len(plain), plain)
	}
	if !strings.HasSuffix(plain, "...") {
		t.Errorf("summary over the limit should be truncated: %q", plain)
	}
}

func TestRenderStagesCacheRecords(t *testing.T) {
	f := newRenderFixture(t, nil)

	res := f.renderer.RenderAll(context.Background(), fullPlan(f.site))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected page errors: %+v", res.Errors)
	}

	rec, err := f.coord.GetPage("docs/install.md")
	if err != nil || rec == nil {
		t.Fatalf("GetPage: rec=%v err=%v", rec, err)
	}
	if rec.ParserVersion != ParserVersion {
		t.Errorf("ParserVersion = %d, want %d", rec.ParserVersion, ParserVersion)
	}
	if rec.Template != "_default/single.html" {
		t.Errorf("Template = %q, want _default/single.html", rec.Template)
	}
	if rec.BodyHash == "" || rec.ContentHash == "" {
		t.Errorf("missing digests: body=%q content=%q", rec.BodyHash, rec.ContentHash)
	}

	html, err := f.coord.LoadHTML(rec)
	if err != nil {
		t.Fatalf("LoadHTML: %v", err)
	}
	if !strings.Contains(string(html), "Run the installer.") {
		t.Errorf("cached parse missing body: %s", html)
	}

	// The main template landed in the dependency tracker.
	deps := f.tracker.DepsOf("docs/install.md")
	found := false
	for _, name := range deps.Templates {
		if name == "_default/single.html" {
			found = true
		}
	}
	if !found {
		t.Errorf("template edge not recorded: %+v", deps.Templates)
	}
}

func TestRenderReusesCachedParse(t *testing.T) {
	f := newRenderFixture(t, nil)
	p, _ := f.site.PageByKey("docs/install.md")

	// Seed a cache record whose body hash matches the current source but
	// whose HTML is a sentinel. A cache hit surfaces the sentinel.
	rec := &cache.PageRecord{
		Key:           p.Key,
		ParserVersion: ParserVersion,
		BodyHash:      incremental.BodyHash(p),
	}
	if err := f.coord.StagePage(rec, []byte("<p>SENTINEL PARSE</p>")); err != nil {
		t.Fatalf("StagePage: %v", err)
	}

	if diag := f.renderer.RenderPage(p); diag != nil {
		t.Fatalf("RenderPage: %v", diag)
	}
	got, ok := f.out.get("docs/install/index.html")
	if !ok {
		t.Fatal("output not written")
	}
	if !strings.Contains(got, "SENTINEL PARSE") {
		t.Error("cached parse was not reused")
	}
}

func TestRenderStaleParserVersionReparses(t *testing.T) {
	f := newRenderFixture(t, nil)
	p, _ := f.site.PageByKey("docs/install.md")

	rec := &cache.PageRecord{
		Key:           p.Key,
		ParserVersion: ParserVersion - 1,
		BodyHash:      incremental.BodyHash(p),
	}
	if err := f.coord.StagePage(rec, []byte("<p>STALE</p>")); err != nil {
		t.Fatalf("StagePage: %v", err)
	}

	if diag := f.renderer.RenderPage(p); diag != nil {
		t.Fatalf("RenderPage: %v", diag)
	}
	got, _ := f.out.get("docs/install/index.html")
	if strings.Contains(got, "STALE") {
		t.Error("stale parser version record was reused")
	}
	if !strings.Contains(got, "Run the installer.") {
		t.Errorf("fresh parse missing body:\n%s", got)
	}
}

func TestRenderXrefResolution(t *testing.T) {
	files := map[string]string{}
	for k, v := range defaultFixtureFiles {
		files[k] = v
	}
	files["content/docs/config.md"] = "---\ntitle: Configure\n---\nSee [[Install]] and [[No Such Page]]."

	f := newRenderFixture(t, files)
	res := f.renderer.RenderAll(context.Background(), fullPlan(f.site))

	got, ok := f.out.get("docs/config/index.html")
	if !ok {
		t.Fatal("config page not written")
	}
	if !strings.Contains(got, `<a href="/docs/install/">Install</a>`) {
		t.Errorf("resolved xref missing:\n%s", got)
	}
	if !strings.Contains(got, `<span class="broken-ref">[No Such Page]</span>`) {
		t.Errorf("broken xref marker missing:\n%s", got)
	}

	var brokenWarn bool
	for _, w := range res.Warnings {
		if w.Kind == diagnostics.CrossReferenceBroken {
			brokenWarn = true
		}
	}
	if !brokenWarn {
		t.Errorf("no CrossReferenceBroken warning collected: %+v", res.Warnings)
	}

	// Resolved target recorded as a page dependency.
	deps := f.tracker.DepsOf("docs/config.md")
	found := false
	for _, k := range deps.Pages {
		if k == "docs/install.md" {
			found = true
		}
	}
	if !found {
		t.Errorf("xref page edge not recorded: %+v", deps.Pages)
	}
}

func TestRenderRewritesMarkdownLinks(t *testing.T) {
	f := newRenderFixture(t, nil)
	res := f.renderer.RenderAll(context.Background(), fullPlan(f.site))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}

	got, _ := f.out.get("docs/config/index.html")
	if !strings.Contains(got, `href="/docs/install/"`) {
		t.Errorf("markdown link not rewritten:\n%s", got)
	}
	if strings.Contains(got, `href="install.md"`) {
		t.Errorf("raw markdown link survived:\n%s", got)
	}
}

func TestRenderCollectsTemplateErrors(t *testing.T) {
	files := map[string]string{}
	for k, v := range defaultFixtureFiles {
		files[k] = v
	}
	files["templates/_default/single.html"] =
		`<html><body>{{ relref . "definitely-missing" }}</body></html>`

	f := newRenderFixture(t, files)
	res := f.renderer.RenderAll(context.Background(), fullPlan(f.site))

	if len(res.Errors) == 0 {
		t.Fatal("expected page errors from failing relref")
	}
	for _, pe := range res.Errors {
		if pe.Diag.Kind != diagnostics.TemplateRenderError {
			t.Errorf("error kind = %s, want %s", pe.Diag.Kind, diagnostics.TemplateRenderError)
		}
	}
}

func TestRenderParallelMatchesSequential(t *testing.T) {
	seq := newRenderFixture(t, nil)
	seq.renderer.workers = 1
	seq.renderer.RenderAll(context.Background(), fullPlan(seq.site))

	par := newRenderFixture(t, nil)
	par.renderer.workers = 4
	par.renderer.RenderAll(context.Background(), fullPlan(par.site))

	stripHashes := func(files map[string][]byte) map[string]string {
		out := make(map[string]string, len(files))
		for k, v := range files {
			out[k] = string(metaPattern.ReplaceAll(v, nil))
		}
		return out
	}
	a, b := stripHashes(seq.out.files), stripHashes(par.out.files)
	if !reflect.DeepEqual(sortedKeys(a), sortedKeys(b)) {
		t.Fatalf("output sets differ:\n%v\n%v", sortedKeys(a), sortedKeys(b))
	}
	for k := range a {
		if a[k] != b[k] {
			t.Errorf("output %s differs between sequential and parallel", k)
		}
	}
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestPrioritizeChangedFirst(t *testing.T) {
	plan := &incremental.Plan{Entries: map[string]*incremental.Entry{
		"a.md": {Key: "a.md", Reason: incremental.ReasonTemplateChanged},
		"b.md": {Key: "b.md", Reason: incremental.ReasonContentChanged},
		"c.md": {Key: "c.md", Reason: incremental.ReasonCascade},
		"d.md": {Key: "d.md", Reason: incremental.ReasonNavChanged},
	}}
	got := prioritize(plan)
	want := []string{"b.md", "d.md", "a.md", "c.md"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("prioritize = %v, want %v", got, want)
	}
}
