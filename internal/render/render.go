// Package render turns selected pages into written HTML files. Each page
// moves through the same sequence: parse (or reuse the cached parse), build
// the template context, execute the resolved template, postprocess the
// document, write the output, and stage the page's cache records. Pages
// render in parallel; everything a worker touches besides the collector and
// the cache coordinator is read-only.
package render

import (
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
	"github.com/bengal-ssg/bengal/internal/incremental"
	"github.com/bengal-ssg/bengal/internal/pool"
	tmpl "github.com/bengal-ssg/bengal/internal/template"
)

// ParserVersion identifies the markdown pipeline. Bump it when the goldmark
// configuration changes in a way that alters output; cached parses from an
// older version are discarded even when the source is unchanged.
const ParserVersion = 3

// Output receives rendered files. The build collector implements it with
// atomic temp-file writes.
type Output interface {
	Write(rel string, data []byte) error
}

// PageError pairs a failed page with its diagnostic.
type PageError struct {
	Key  string
	Diag *diagnostics.Diagnostic
}

// Result aggregates one render phase: how many pages rendered, which failed,
// and the non-fatal warnings collected along the way.
type Result struct {
	Rendered int
	Errors   []PageError
	Warnings []*diagnostics.Diagnostic
}

// Options wires the renderer's collaborators for one build.
type Options struct {
	Site    *content.Site
	Config  *config.Config
	Engine  *tmpl.Engine
	Coord   *cache.Coordinator
	Tracker *incremental.Tracker
	Out     Output

	// Refs resolves cross-reference targets for [[...]] spans, trying site
	// pages before any external indexes.
	Refs tmpl.RefResolver

	// SiteData is the loaded data/ tree exposed to templates.
	SiteData map[string]any

	// Workers caps the pool size; 0 means GOMAXPROCS.
	Workers int
}

// Renderer executes the per-page pipeline over a rebuild plan.
type Renderer struct {
	site     *content.Site
	cfg      *config.Config
	engine   *tmpl.Engine
	markdown *content.MarkdownRenderer
	coord    *cache.Coordinator
	tracker  *incremental.Tracker
	cls      *incremental.Classifier
	refs     tmpl.RefResolver
	out      Output
	workers  int

	siteCtx *tmpl.SiteContext

	mu       sync.Mutex
	errors   []PageError
	warnings []*diagnostics.Diagnostic
}

// New builds a renderer and binds the engine's recording functions to the
// tracker, the asset resolver already bound upstream stays untouched.
func New(opts Options) *Renderer {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if !opts.Config.Build.Parallel {
		workers = 1
	}
	return &Renderer{
		site:     opts.Site,
		cfg:      opts.Config,
		engine:   opts.Engine,
		markdown: content.NewMarkdownRenderer(),
		coord:    opts.Coord,
		tracker:  opts.Tracker,
		cls:      incremental.NewClassifier(opts.Config),
		refs:     opts.Refs,
		out:      opts.Out,
		workers:  workers,
		siteCtx:  buildSiteContext(opts.Site, opts.Config, opts.SiteData),
	}
}

// Sink returns the DepSink the engine should be bound with so template,
// asset, data, and page edges land in the dependency tracker.
func (r *Renderer) Sink() tmpl.DepSink { return trackerSink{r.tracker} }

// RenderAll renders every page in the plan through the worker pool. Direct
// content changes render first so watch-mode rebuilds surface the edited
// page as early as possible. Per-page failures are collected, not fatal;
// ctx cancellation stops the pool from taking new pages.
func (r *Renderer) RenderAll(ctx context.Context, plan *incremental.Plan) Result {
	keys := prioritize(plan)

	tasks := make([]*content.Page, 0, len(keys))
	for _, key := range keys {
		p, ok := r.site.PageByKey(key)
		if !ok {
			// Plans can carry keys for pages deleted mid-watch; skip them.
			continue
		}
		tasks = append(tasks, p)
	}

	pool.Run(ctx, r.workers, tasks, func(p *content.Page) {
		entry := plan.Entries[p.Key]
		if diag := r.renderOne(p, entry); diag != nil {
			r.mu.Lock()
			r.errors = append(r.errors, PageError{Key: p.Key, Diag: diag})
			r.mu.Unlock()
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{
		Rendered: len(tasks) - len(r.errors),
		Errors:   r.errors,
		Warnings: r.warnings,
	}
	r.errors = nil
	r.warnings = nil
	return res
}

// RenderPage renders a single page outside any plan (used by tests and by
// the 404 page generation).
func (r *Renderer) RenderPage(p *content.Page) *diagnostics.Diagnostic {
	return r.renderOne(p, nil)
}

// HydrateFromCache fills Content, TableOfContents, and Summary for pages the
// plan skipped, using their cached parses. The postprocess generators (feeds,
// search index) read page content after the render phase; without this, a
// page that skipped rendering would contribute an empty body and an
// incremental build's artifacts would drift from a full build's. Returns how
// many pages were hydrated.
func (r *Renderer) HydrateFromCache() int {
	n := 0
	for _, p := range r.site.Pages {
		if p.Content != "" {
			continue
		}
		parsed, ok := r.cachedParse(p.Key, incremental.BodyHash(p))
		if !ok {
			continue
		}
		p.Content = string(parsed.HTML)
		p.TableOfContents = string(parsed.TOC)
		p.Links = parsed.Links
		if p.Summary == "" {
			p.Summary = content.Summarize(p.RawContent, p.Content, r.cfg.Content.SummaryLength)
		}
		n++
	}
	return n
}

// RenderNotFound renders the 404 page. A nil body with nil error means no
// 404 template exists anywhere in the template layers.
func (r *Renderer) RenderNotFound() ([]byte, error) {
	name := r.engine.Resolve("", "", "404")
	if name == "" {
		return nil, nil
	}
	p := &content.Page{
		Title:    "Page not found",
		Kind:     content.KindPage,
		URL:      "/404.html",
		Metadata: map[string]any{},
	}
	pc := &tmpl.PageContext{Page: p, Site: r.siteCtx}
	return r.engine.Execute(name, pc)
}

// renderOne is the per-page pipeline. It holds the page's key lock across
// the read-render-stage window so cache reads and staged writes for one key
// never interleave.
func (r *Renderer) renderOne(p *content.Page, entry *incremental.Entry) *diagnostics.Diagnostic {
	start := time.Now()
	if entry != nil {
		defer func() { entry.DurationMS = time.Since(start).Milliseconds() }()
	}

	lock := r.coord.KeyLock(p.Key)
	lock.Lock()
	defer lock.Unlock()

	fp := r.sourceFingerprint(p)
	bodyHash := incremental.BodyHash(p)

	// Parse, or reuse the cached parse when the raw body and parser are
	// unchanged (template- or nav-triggered rebuilds hit this path).
	var pageDiag *diagnostics.Diagnostic
	parsed, ok := r.cachedParse(p.Key, bodyHash)
	if !ok {
		var err error
		parsed, err = r.markdown.Parse([]byte(p.RawContent))
		if err != nil {
			pageDiag = diagnostics.Newf(diagnostics.MarkdownParseError, "parsing %s: %v", p.Key, err).
				WithPhase("render").
				WithPath(p.SourcePath)
			parsed = errorPanel(p, err)
		}
	}

	p.Content = string(parsed.HTML)
	p.TableOfContents = string(parsed.TOC)
	p.Links = parsed.Links
	if p.Summary == "" {
		p.Summary = content.Summarize(p.RawContent, p.Content, r.cfg.Content.SummaryLength)
	}
	r.recordLinkedPages(p)

	name := r.engine.Resolve(templateKind(p), sectionName(p), p.Layout)
	if name == "" {
		return diagnostics.Newf(diagnostics.TemplateRenderError,
			"no template for page %s (kind=%s, section=%s, layout=%s)",
			p.Key, p.Kind, sectionName(p), p.Layout).
			WithPhase("render").
			WithHint("add a _default/single.html or _default/list.html template")
	}
	r.tracker.AddTemplate(p.Key, name)

	pc := &tmpl.PageContext{
		Page:            p,
		Content:         htmlSafe(p.Content),
		TableOfContents: htmlSafe(p.TableOfContents),
		Summary:         htmlSafe(p.Summary),
		Pager:           p.Pager,
		Site:            r.siteCtx,
	}

	body, err := r.engine.Execute(name, pc)
	if err != nil {
		var d *diagnostics.Diagnostic
		if errors.As(err, &d) {
			return d.WithPhase("render")
		}
		return diagnostics.Newf(diagnostics.TemplateRenderError, "rendering %s: %v", p.Key, err).
			WithPhase("render")
	}

	final, contentHash := r.postprocess(p, body)

	if p.OutputPath == "" {
		p.OutputPath = OutputPathForURL(p.URL)
	}
	if err := r.out.Write(p.OutputPath, final); err != nil {
		return diagnostics.Newf(diagnostics.OutputWriteError, "writing %s: %v", p.OutputPath, err).
			WithPhase("render").
			WithPath(p.OutputPath)
	}

	rec := &cache.PageRecord{
		Key:           p.Key,
		SourcePath:    r.relSource(p),
		Fingerprint:   fp,
		ContentHash:   contentHash,
		TOC:           parsed.TOC,
		Links:         parsed.Links,
		Template:      name,
		ParserVersion: ParserVersion,
		BodyHash:      bodyHash,
		NavDigest:     incremental.NavDigest(p),
		CascadeDigest: incremental.CascadeDigest(p),
		RenderedAt:    time.Now().UnixNano(),
	}
	if err := r.coord.StagePage(rec, parsed.HTML); err != nil {
		r.warn(diagnostics.Newf(diagnostics.CacheLoadError, "caching %s: %v", p.Key, err).
			WithPhase("render"))
	}
	if deps := r.tracker.DepsOf(p.Key); !deps.Empty() {
		r.coord.StageDeps(deps)
	}
	r.coord.StageOutput(&cache.OutputRecord{
		Key:       p.Key,
		Path:      p.OutputPath,
		Hash:      cache.HashContent(final),
		Size:      int64(len(final)),
		WrittenAt: time.Now().UnixNano(),
		Aliases:   p.Aliases,
	})

	return pageDiag
}

// relSource returns the page's source in the root-relative slash form the
// fingerprint layer is keyed by. Virtual pages return "".
func (r *Renderer) relSource(p *content.Page) string {
	if p.SourcePath == "" {
		return ""
	}
	rel, err := r.cls.Rel(p.SourcePath)
	if err != nil {
		return ""
	}
	return rel
}

// cachedParse returns the cached parse result for key when the body and
// parser version still match.
func (r *Renderer) cachedParse(key, bodyHash string) (*content.ParseResult, bool) {
	rec, err := r.coord.GetPage(key)
	if err != nil || rec == nil {
		return nil, false
	}
	if rec.ParserVersion != ParserVersion || rec.BodyHash == "" || rec.BodyHash != bodyHash {
		return nil, false
	}
	html, err := r.coord.LoadHTML(rec)
	if err != nil || html == nil {
		return nil, false
	}
	return &content.ParseResult{HTML: html, TOC: rec.TOC, Links: rec.Links}, true
}

// sourceFingerprint fingerprints the page's source file, or its in-memory
// body for virtual pages.
func (r *Renderer) sourceFingerprint(p *content.Page) cache.Fingerprint {
	if p.SourcePath == "" {
		return incremental.FingerprintBytes([]byte(p.RawContent))
	}
	fp, err := incremental.FingerprintFile(p.SourcePath)
	if err != nil {
		return incremental.FingerprintBytes([]byte(p.RawContent))
	}
	return fp
}

// recordLinkedPages turns markdown links that land on site pages into page
// dependency edges, so editing a linked page rebuilds the pages that point
// at it when their titles or URLs are read.
func (r *Renderer) recordLinkedPages(p *content.Page) {
	for _, link := range p.Links {
		if key, ok := resolveMarkdownLink(p.Key, link); ok {
			if _, exists := r.site.PageByKey(key); exists {
				r.tracker.AddPage(p.Key, key)
			}
		}
	}
}

func (r *Renderer) warn(d *diagnostics.Diagnostic) {
	r.mu.Lock()
	r.warnings = append(r.warnings, d)
	r.mu.Unlock()
}

// prioritize orders plan keys so directly-changed pages render before pages
// pulled in through the dependency graph.
func prioritize(plan *incremental.Plan) []string {
	keys := plan.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return reasonRank(plan.Entries[keys[i]].Reason) < reasonRank(plan.Entries[keys[j]].Reason)
	})
	return keys
}

func reasonRank(r incremental.Reason) int {
	switch r {
	case incremental.ReasonContentChanged, incremental.ReasonNavChanged:
		return 0
	default:
		return 1
	}
}

func htmlSafe(s string) template.HTML { return template.HTML(s) }

// templateKind maps a page kind to the engine's resolution kind.
func templateKind(p *content.Page) string {
	switch p.Kind {
	case content.KindHome:
		return "home"
	case content.KindSection:
		return "list"
	default:
		return "single"
	}
}

// sectionName returns the top-level section name used for section-scoped
// template lookups ("docs/single.html").
func sectionName(p *content.Page) string {
	s := p.Section()
	if s == nil {
		return ""
	}
	for s.Parent != nil && s.Parent.Parent != nil {
		s = s.Parent
	}
	return s.Name
}

// buildSiteContext assembles the shared site context once per build.
func buildSiteContext(site *content.Site, cfg *config.Config, data map[string]any) *tmpl.SiteContext {
	if data == nil {
		data = make(map[string]any)
	}
	return &tmpl.SiteContext{
		Title:          cfg.Site.Title,
		Description:    cfg.Site.Description,
		BaseURL:        cfg.Site.BaseURL,
		Language:       cfg.Site.Language,
		Author:         cfg.Site.Author,
		Params:         cfg.Params,
		Data:           data,
		Menus:          site.Menus,
		Pages:          site.RegularPages(),
		Sections:       site.Sections(),
		Taxonomies:     site.Taxonomy,
		Versions:       cfg.Versioning.Versions,
		CurrentVersion: cfg.Versioning.Current,
		BuildTime:      time.Now(),
	}
}

// errorPanel builds a stand-in parse result for a page whose markdown failed
// to parse, so the site still ships a page at that URL with the failure
// visible.
func errorPanel(p *content.Page, err error) *content.ParseResult {
	body := fmt.Sprintf(
		`<div class="build-error"><strong>Failed to render %s</strong><pre>%s</pre></div>`,
		html.EscapeString(p.Key), html.EscapeString(err.Error()))
	return &content.ParseResult{HTML: []byte(body)}
}
