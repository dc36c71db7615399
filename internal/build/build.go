// Package build orchestrates the Bengal build pipeline: ten strictly
// ordered phases from cache load through discovery, the incremental filter,
// rendering, assets, and postprocessing, down to the persisted cache and
// the reload decision. Early phases fail the whole build; the filter falls
// back to a full build on error; render errors collect per page; asset and
// postprocess errors degrade to warnings.
package build

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/assets"
	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
	"github.com/bengal-ssg/bengal/internal/embedded"
	"github.com/bengal-ssg/bengal/internal/feed"
	"github.com/bengal-ssg/bengal/internal/incremental"
	"github.com/bengal-ssg/bengal/internal/render"
	"github.com/bengal-ssg/bengal/internal/search"
	"github.com/bengal-ssg/bengal/internal/seo"
	"github.com/bengal-ssg/bengal/internal/social"
	tmpl "github.com/bengal-ssg/bengal/internal/template"
	"github.com/bengal-ssg/bengal/internal/xref"
)

// Build profiles preset the per-invocation switches for common workflows.
const (
	// ProfileWriter previews everything an author is working on.
	ProfileWriter = "writer"
	// ProfileThemeDev re-renders every page each build so template edits
	// are always fully visible.
	ProfileThemeDev = "theme-dev"
	// ProfileDev is the serve-mode default.
	ProfileDev = "dev"
)

// Input is one build invocation's parameters. It serializes to JSON so the
// dev server can hand a build to a subprocess executor.
type Input struct {
	Force   bool                 `json:"force,omitempty"`
	DryRun  bool                 `json:"dry_run,omitempty"`
	Drafts  bool                 `json:"drafts,omitempty"`
	Future  bool                 `json:"future,omitempty"`
	Profile string               `json:"profile,omitempty"`
	Changes []incremental.Change `json:"changes,omitempty"`
}

func (in *Input) applyProfile() {
	switch in.Profile {
	case ProfileWriter:
		in.Drafts = true
		in.Future = true
	case ProfileThemeDev:
		in.Drafts = true
		in.Force = true
	case ProfileDev:
		in.Drafts = true
	}
}

// PhaseStats reports one pipeline phase to the progress callbacks.
type PhaseStats struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Items    int           `json:"items"`
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
}

// ProgressReporter receives phase start and completion callbacks. The CLI
// installs a console reporter; tests run silent.
type ProgressReporter interface {
	PhaseStart(name string)
	PhaseDone(ps PhaseStats)
}

type nopReporter struct{}

func (nopReporter) PhaseStart(string)    {}
func (nopReporter) PhaseDone(PhaseStats) {}

// NopReporter discards all progress callbacks.
var NopReporter ProgressReporter = nopReporter{}

// Stats summarizes a completed build.
type Stats struct {
	BuildID     string
	StartedAt   time.Time
	Duration    time.Duration
	Incremental bool

	Pages    int // renderable pages after discovery and generation
	Rendered int
	Skipped  int

	AssetsProcessed int
	AssetsSkipped   int

	OutputFiles int
	OutputBytes int64

	Phases     []PhaseStats
	PageErrors []render.PageError
	Warnings   []*diagnostics.Diagnostic

	Manifest   *incremental.BuildManifest
	Reload     ReloadDecision
	CacheSaved bool
}

// Failed reports whether any page failed to render.
func (s *Stats) Failed() bool { return len(s.PageErrors) > 0 }

// Options wire a Builder's collaborators. Zero values select the real
// filesystem, a discarding logger, and silent progress.
type Options struct {
	Fs       afero.Fs
	Logger   *slog.Logger
	Reporter ProgressReporter
}

// Builder runs builds for one site. It is not safe for concurrent builds;
// the dev loop serializes invocations.
type Builder struct {
	cfg *config.Config
	fs  afero.Fs
	log *slog.Logger
	rep ProgressReporter
}

// New creates a builder for the given configuration.
func New(cfg *config.Config, opts Options) *Builder {
	b := &Builder{
		cfg: cfg,
		fs:  opts.Fs,
		log: opts.Logger,
		rep: opts.Reporter,
	}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}
	if b.log == nil {
		b.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if b.rep == nil {
		b.rep = NopReporter
	}
	return b
}

// state carries everything one build invocation accumulates across phases.
type state struct {
	mgr     *cache.Manager
	coord   *cache.Coordinator
	tracker *incremental.Tracker
	cls     *incremental.Classifier

	site     *content.Site
	engine   *tmpl.Engine
	pipeline *assets.Pipeline
	renderer *render.Renderer
	out      *Collector

	changes    []incremental.Change
	currentFPs map[string]cache.Fingerprint

	configHash    string
	navSignature  string
	cold          bool
	configChanged bool
	menuChanged   bool
	incremental   bool

	prevOutputs map[string]string
	plan        *incremental.Plan
}

// Build executes the pipeline. Fatal errors return before the cache is
// persisted, so the last good cache survives a failed build. Cancellation
// likewise skips the cache save.
func (b *Builder) Build(ctx context.Context, in Input) (*Stats, error) {
	in.applyProfile()
	start := time.Now()
	stats := &Stats{BuildID: incremental.NewBuildID(), StartedAt: start}

	// Phase 1: setup.
	t0 := b.phaseStart("setup")
	st, err := b.setup(in, stats)
	if err != nil {
		return nil, err
	}
	defer st.mgr.Close()
	b.phaseDone(stats, "setup", t0, len(st.changes))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 2: discovery, data, cascade.
	t0 = b.phaseStart("discovery")
	if err := b.discover(in, st, stats); err != nil {
		return nil, err
	}
	b.phaseDone(stats, "discovery", t0, len(st.site.Pages))

	// Phase 3: section finalization.
	t0 = b.phaseStart("sections")
	generated := content.FinalizeSections(st.site)
	st.site.AddPages(generated...)
	b.phaseDone(stats, "sections", t0, len(generated))

	// Phase 4: taxonomies, generated pages, references.
	t0 = b.phaseStart("taxonomies")
	virtual := b.generatePages(st)
	b.phaseDone(stats, "taxonomies", t0, virtual)

	// Phase 5: menus.
	t0 = b.phaseStart("menus")
	st.site.Menus = content.BuildMenus(st.site)
	st.navSignature = content.MenuSignature(st.site.Menus)
	if prev, err := st.mgr.NavSignature(); err == nil && prev != "" {
		st.menuChanged = prev != st.navSignature
	}
	b.phaseDone(stats, "menus", t0, len(st.site.Menus))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 6: incremental filter.
	t0 = b.phaseStart("filter")
	b.filter(in, st, stats)
	stats.Pages = len(st.site.Pages)
	stats.Skipped = len(st.plan.Skipped)
	stats.Incremental = !st.plan.Full
	b.phaseDone(stats, "filter", t0, len(st.plan.Entries))

	if in.DryRun {
		stats.Manifest = incremental.FromPlan(stats.BuildID, st.plan, start)
		stats.Reload = ReloadDecision{Action: ReloadNone}
		stats.Duration = time.Since(start)
		return stats, nil
	}

	// Phase 7: render.
	t0 = b.phaseStart("render")
	if err := b.prepareRender(st, stats); err != nil {
		return nil, err
	}
	res := st.renderer.RenderAll(ctx, st.plan)
	stats.Rendered = res.Rendered
	stats.PageErrors = res.Errors
	stats.Warnings = append(stats.Warnings, res.Warnings...)
	for _, pe := range res.Errors {
		if pe.Diag.Kind.Fatal() {
			return nil, pe.Diag
		}
	}
	if n := st.renderer.HydrateFromCache(); n > 0 {
		b.log.Debug("hydrated skipped pages from cache", "count", n)
	}
	b.phaseDone(stats, "render", t0, res.Rendered)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 8: assets.
	t0 = b.phaseStart("assets")
	astats, awarns := st.pipeline.Process(ctx, st.coord, st.out, b.workers())
	stats.Warnings = append(stats.Warnings, awarns...)
	stats.AssetsProcessed = astats.Processed
	stats.AssetsSkipped = astats.Skipped
	if n, err := b.copyEmbeddedAssets(st); err != nil {
		b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
			"copying theme assets: %v", err).WithPhase("assets"))
	} else {
		stats.AssetsProcessed += n
	}
	b.phaseDone(stats, "assets", t0, astats.Processed+astats.Variants)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 9: postprocess.
	t0 = b.phaseStart("postprocess")
	written := b.postprocess(st, stats)
	b.phaseDone(stats, "postprocess", t0, written)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 10: finalize.
	t0 = b.phaseStart("finalize")
	if err := b.finalize(st, stats, start); err != nil {
		b.warn(stats, diagnostics.Newf(diagnostics.CacheLoadError,
			"persisting build cache: %v", err).WithPhase("finalize").
			WithHint("the next build will run full"))
	}
	stats.OutputFiles = st.out.Count()
	stats.OutputBytes = st.out.Bytes()
	b.phaseDone(stats, "finalize", t0, stats.OutputFiles)

	stats.Duration = time.Since(start)
	b.log.Info("build complete",
		"build_id", stats.BuildID,
		"rendered", stats.Rendered,
		"skipped", stats.Skipped,
		"errors", len(stats.PageErrors),
		"duration", stats.Duration,
	)
	return stats, nil
}

// setup loads the cache, compares config hashes, scans sources, and
// hydrates the dependency tracker. A broken cache is discarded with a
// warning; everything else here is fatal.
func (b *Builder) setup(in Input, stats *Stats) (*state, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, diagnostics.Newf(diagnostics.ConfigError, "%v", err).WithPhase("setup")
	}

	mgr, err := cache.Open(cfg.CachePath())
	if err != nil {
		b.warn(stats, diagnostics.Newf(diagnostics.CacheLoadError,
			"opening build cache: %v", err).WithPhase("setup").
			WithHint("cache discarded; this build runs full"))
		b.log.Warn("build cache unusable, discarding", "error", err)
		os.RemoveAll(cfg.CachePath())
		mgr, err = cache.Open(cfg.CachePath())
		if err != nil {
			return nil, diagnostics.Newf(diagnostics.CacheLoadError,
				"recreating build cache: %v", err).WithPhase("setup")
		}
		mgr.MarkFullBuild("cache discarded")
	}

	st := &state{
		mgr:     mgr,
		coord:   cache.NewCoordinator(mgr),
		tracker: incremental.NewTracker(),
		cls:     incremental.NewClassifier(cfg),
	}

	st.configHash = cfg.Hash()
	prevHash, _ := mgr.ConfigHash()
	needFull, fullReason := mgr.NeedsFullBuild()
	if needFull {
		b.log.Info("full build required", "reason", fullReason)
	}
	st.cold = prevHash == "" || needFull
	st.configChanged = prevHash != "" && prevHash != st.configHash
	st.incremental = cfg.Build.IncrementalEnabled(!st.cold)

	scanner := incremental.NewScanner(cfg, mgr)
	changes, current, err := scanner.Scan()
	if err != nil {
		mgr.Close()
		return nil, diagnostics.Newf(diagnostics.DiscoveryError,
			"scanning source tree: %v", err).WithPhase("setup")
	}
	st.changes = mergeChanges(changes, in.Changes)
	st.currentFPs = current

	if recs, err := mgr.AllDeps(); err == nil {
		st.tracker.Load(recs)
	} else {
		b.warn(stats, diagnostics.Newf(diagnostics.CacheLoadError,
			"loading dependency graph: %v", err).WithPhase("setup"))
	}

	st.prevOutputs, _ = mgr.OutputSnapshot()
	st.out = NewCollector(b.fs, cfg.OutputPath())
	return st, nil
}

// discover walks the content tree, loads data files, applies the cascade,
// and prunes drafts, future, and expired pages.
func (b *Builder) discover(in Input, st *state, stats *Stats) error {
	res, err := content.Discover(b.cfg)
	if err != nil {
		return diagnostics.Newf(diagnostics.DiscoveryError, "%v", err).WithPhase("discovery")
	}
	site := content.NewSite(b.cfg)
	site.Root = res.Root
	site.Assets = res.Assets
	site.AddPages(res.Pages...)
	stats.Warnings = append(stats.Warnings, res.Warnings...)

	data, dataFiles, err := content.LoadDataFiles(b.cfg.DataPath())
	if err != nil {
		return diagnostics.Newf(diagnostics.DiscoveryError,
			"loading data files: %v", err).WithPhase("discovery")
	}
	site.Data = data
	site.DataFiles = dataFiles

	content.ApplyCascade(site)

	now := time.Now()
	pruned := site.Prune(func(p *content.Page) bool {
		if p.Draft && !in.Drafts {
			return true
		}
		if !in.Future && !p.Date.IsZero() && p.Date.After(now) {
			return true
		}
		return !p.ExpiryDate.IsZero() && p.ExpiryDate.Before(now)
	})
	if pruned > 0 {
		b.log.Debug("pages excluded", "count", pruned)
	}

	st.site = site
	return nil
}

// generatePages builds taxonomies, their term pages, pagination pages, and
// attaches navigation references. Returns the number of virtual pages added.
func (b *Builder) generatePages(st *state) int {
	site := st.site
	site.Taxonomy = content.BuildTaxonomies(site.Pages, b.cfg.Taxonomies)
	termPages := content.GenerateTaxonomyPages(site.Taxonomy)
	site.AddPages(termPages...)

	pagPages := content.GeneratePagination(site, b.cfg.Pagination.PageSize)
	site.AddPages(pagPages...)

	content.SetupReferences(site)
	return len(termPages) + len(pagPages)
}

// filter computes the rebuild plan. A filter failure degrades to a full
// build rather than aborting.
func (b *Builder) filter(in Input, st *state, stats *Stats) {
	pages := st.site.Pages
	f := incremental.NewFilter(st.site, st.tracker, st.mgr, b.fs, b.cfg.OutputPath())

	// A warm cache the config refuses to use still rebuilds everything.
	if !st.incremental && !st.cold && !in.Force && !st.configChanged {
		st.plan = fullPlan(pages, incremental.ReasonFullRebuild, "incremental disabled")
		return
	}

	plan, err := f.Plan(pages, incremental.Options{
		Force:         in.Force,
		ConfigChanged: st.configChanged,
		Cold:          st.cold,
		MenuChanged:   st.menuChanged,
		Changes:       st.changes,
	})
	if err != nil {
		b.warn(stats, diagnostics.Newf(diagnostics.CacheLoadError,
			"incremental filter failed: %v", err).WithPhase("filter").
			WithHint("falling back to a full build"))
		b.log.Warn("filter failed, building full", "error", err)
		st.plan = fullPlan(pages, incremental.ReasonFullRebuild, fmt.Sprintf("filter error: %v", err))
		return
	}
	st.plan = plan
}

// prepareRender constructs the template engine, asset pipeline, reference
// resolver, and renderer, and binds the engine's recording functions.
func (b *Builder) prepareRender(st *state, stats *Stats) error {
	cfg := b.cfg

	themeDir := ""
	if cfg.Theme.Name != "" {
		themeDir = filepath.Join(cfg.ThemePath(), "templates")
	}
	cacheDir := ""
	if cfg.Build.CacheTemplates {
		cacheDir = filepath.Join(cfg.CachePath(), "templates")
	}
	engine, err := tmpl.New(tmpl.Options{
		TemplatesDir: cfg.TemplatesPath(),
		ThemeDir:     themeDir,
		Embedded:     embedded.Templates(),
		BaseURL:      cfg.Site.BaseURL,
		CacheDir:     cacheDir,
	})
	if err != nil {
		return err
	}
	st.engine = engine

	st.pipeline = assets.NewPipeline(cfg)
	stats.Warnings = append(stats.Warnings, st.pipeline.Plan(st.site)...)

	var externals []tmpl.RefResolver
	for _, src := range cfg.Autodoc.XrefSources {
		idx, err := xref.Load(src)
		if err != nil {
			b.warn(stats, diagnostics.Newf(diagnostics.CrossReferenceBroken,
				"loading xref index %s: %v", src, err).WithPhase("render"))
			continue
		}
		externals = append(externals, idx.Resolver())
	}
	refs := render.NewRefResolver(st.site, externals...)

	st.renderer = render.New(render.Options{
		Site:     st.site,
		Config:   cfg,
		Engine:   engine,
		Coord:    st.coord,
		Tracker:  st.tracker,
		Out:      st.out,
		Refs:     refs,
		SiteData: st.site.Data,
	})
	engine.Bind(tmpl.Bindings{
		Assets: st.pipeline.Resolver(),
		Refs:   refs,
		Data: func(name string) (any, bool) {
			v, ok := st.site.Data[name]
			return v, ok
		},
		Sink: st.renderer.Sink(),
	})
	return nil
}

// copyEmbeddedAssets writes the default theme's static files for any path
// the build did not produce itself. Unchanged files are skipped so rebuilds
// stay quiet.
func (b *Builder) copyEmbeddedAssets(st *state) (int, error) {
	wrote := 0
	src := embedded.Assets()
	err := fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := "assets/" + p
		if st.out.Written(rel) {
			return nil
		}
		data, err := fs.ReadFile(src, p)
		if err != nil {
			return err
		}
		changed, err := st.out.WriteIfChanged(rel, data)
		if err != nil {
			return err
		}
		if changed {
			wrote++
		}
		return nil
	})
	return wrote, err
}

// postprocess writes the site-wide artifacts: sitemap, robots, feeds, the
// search index, the xref export, redirect pages, the 404 page, and social
// cards. Failures here warn and never abort the build.
func (b *Builder) postprocess(st *state, stats *Stats) int {
	cfg := b.cfg
	written := 0

	emit := func(rel string, data []byte, genErr error, what string) {
		if genErr != nil {
			b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
				"generating %s: %v", what, genErr).WithPhase("postprocess"))
			return
		}
		if data == nil {
			return
		}
		changed, err := st.out.WriteIfChanged(rel, data)
		if err != nil {
			b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
				"writing %s: %v", rel, err).WithPhase("postprocess"))
			return
		}
		if changed {
			written++
		}
	}

	sm, err := seo.Sitemap(st.site)
	emit("sitemap.xml", sm, err, "sitemap")
	emit("robots.txt", seo.Robots(st.site), nil, "robots.txt")

	if cfg.Feeds.RSS {
		body, err := feed.RSS(st.site, cfg.Feeds.Limit)
		emit("feed.xml", body, err, "RSS feed")
	}
	if cfg.Feeds.Atom {
		body, err := feed.Atom(st.site, cfg.Feeds.Limit)
		emit("atom.xml", body, err, "Atom feed")
	}
	if cfg.Search.Enabled {
		body, err := search.Index(st.site, cfg.Search.ContentLength)
		emit("search-index.json", body, err, "search index")
	}
	if cfg.Autodoc.ExportXref {
		body, err := xref.Export(st.site)
		emit("xref.json", body, err, "xref index")
	}

	written += b.writeRedirects(st, stats)

	body, err := st.renderer.RenderNotFound()
	emit("404.html", body, err, "404 page")

	if cfg.SocialCards.Enabled {
		written += b.writeSocialCards(st, stats)
	}

	return written
}

// writeSocialCards renders og:image cards for the pages this build touched.
func (b *Builder) writeSocialCards(st *state, stats *Stats) int {
	gen, err := social.NewGenerator(b.cfg)
	if err != nil {
		b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
			"social cards: %v", err).WithPhase("postprocess"))
		return 0
	}
	written := 0
	for key := range st.plan.Entries {
		p, ok := st.site.PageByKey(key)
		if !ok || p.Generated {
			continue
		}
		data, rel, err := gen.Card(p)
		if err != nil {
			b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
				"social card for %s: %v", key, err).WithPhase("postprocess").WithPath(p.SourcePath))
			continue
		}
		changed, err := st.out.WriteIfChanged(rel, data)
		if err != nil {
			b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
				"writing %s: %v", rel, err).WithPhase("postprocess"))
			continue
		}
		if changed {
			written++
		}
	}
	return written
}

// finalize persists the cache: fresh fingerprints, deletions for removed
// sources, the output and taxonomy snapshots, and the build manifest. Pages
// that failed to render are invalidated so the next build retries them.
func (b *Builder) finalize(st *state, stats *Stats, start time.Time) error {
	for path, fp := range st.currentFPs {
		st.coord.StageFingerprint(path, fp)
	}

	snap := make(map[string]string, len(st.prevOutputs)+st.out.Count())
	maps.Copy(snap, st.prevOutputs)
	maps.Copy(snap, st.out.Snapshot())

	for _, ch := range st.changes {
		if ch.Op != incremental.OpRemove || ch.Kind != incremental.KindContent {
			continue
		}
		key := st.cls.ContentKey(ch.Path)
		if rec, err := st.mgr.GetOutput(key); err == nil && rec != nil {
			if err := st.out.Remove(rec.Path); err != nil {
				b.warn(stats, diagnostics.Newf(diagnostics.OutputWriteError,
					"removing stale output %s: %v", rec.Path, err).WithPhase("finalize"))
			}
			delete(snap, rec.Path)
		}
		st.coord.StageDelete(key, ch.Path)
	}

	st.coord.StageOutputSnapshot(snap)
	st.coord.StageTaxonomySnapshot(incremental.SnapshotTaxonomies(st.site))

	stats.Manifest = incremental.FromPlan(stats.BuildID, st.plan, start)
	stats.Reload = DecideReload(st.prevOutputs, st.out.Records())

	if len(stats.PageErrors) > 0 {
		keys := make([]string, 0, len(stats.PageErrors))
		for _, pe := range stats.PageErrors {
			keys = append(keys, pe.Key)
		}
		if err := st.coord.Invalidate(keys, "render failed", stats.BuildID); err != nil {
			return err
		}
	}

	if err := st.coord.Flush(stats.Manifest.CacheRecord(st.configHash), st.configHash, st.navSignature); err != nil {
		return err
	}
	stats.CacheSaved = true
	return nil
}

func (b *Builder) phaseStart(name string) time.Time {
	b.rep.PhaseStart(name)
	b.log.Debug("phase start", "phase", name)
	return time.Now()
}

func (b *Builder) phaseDone(stats *Stats, name string, t0 time.Time, items int) {
	ps := PhaseStats{
		Name:     name,
		Duration: time.Since(t0),
		Items:    items,
		Errors:   len(stats.PageErrors),
		Warnings: len(stats.Warnings),
	}
	stats.Phases = append(stats.Phases, ps)
	b.rep.PhaseDone(ps)
	b.log.Debug("phase done", "phase", name, "items", items, "duration", ps.Duration)
}

func (b *Builder) warn(stats *Stats, d *diagnostics.Diagnostic) {
	stats.Warnings = append(stats.Warnings, d)
	b.log.Warn(d.Message, "kind", d.Kind, "phase", d.Phase)
}

func (b *Builder) workers() int {
	if !b.cfg.Build.Parallel {
		return 1
	}
	return runtime.GOMAXPROCS(0)
}

// fullPlan marks every page for rebuild with one shared reason.
func fullPlan(pages []*content.Page, reason incremental.Reason, trigger string) *incremental.Plan {
	plan := &incremental.Plan{Full: true, Entries: make(map[string]*incremental.Entry, len(pages))}
	for _, p := range pages {
		plan.Entries[p.Key] = &incremental.Entry{Key: p.Key, Reason: reason, Trigger: trigger}
	}
	return plan
}

// mergeChanges unions the scanner's changes with the watcher's hints. The
// scanner is authoritative for fingerprints; hint paths it did not flag are
// kept so a touched-but-identical file still re-renders in dev mode.
func mergeChanges(scan, hints []incremental.Change) []incremental.Change {
	if len(hints) == 0 {
		return scan
	}
	seen := make(map[string]bool, len(scan))
	for _, c := range scan {
		seen[c.Path] = true
	}
	out := scan
	for _, c := range hints {
		if !seen[c.Path] {
			out = append(out, c)
		}
	}
	return out
}
