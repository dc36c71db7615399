package incremental

import (
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/content"
)

// Options selects the filter mode. The full-build switches short-circuit the
// graph walk; exactly one applies, checked in field order.
type Options struct {
	Force         bool // --force: rebuild everything as FORCED
	ConfigChanged bool // config hash mismatch: FULL_REBUILD
	Cold          bool // no usable cache: every page is new content
	MenuChanged   bool // menu structure signature mismatch: NAV_CHANGED

	Changes []Change
}

// Entry is one page in the rebuild plan. Trigger names the change or
// dependency that pulled the page in; DurationMS is filled by the renderer.
type Entry struct {
	Key        string `json:"key"`
	Reason     Reason `json:"reason"`
	Trigger    string `json:"trigger,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// AssetChange records one asset's fingerprint transition for the explain
// report. OldHash is empty the first time an asset is seen.
type AssetChange struct {
	Key     string `json:"key"`
	OldHash string `json:"old_hash,omitempty"`
	NewHash string `json:"new_hash,omitempty"`
}

// Plan is the filter's decision: which pages rebuild and why, and which are
// skipped. Assets lists the fingerprint transitions that drove asset-reason
// entries.
type Plan struct {
	Full    bool
	Entries map[string]*Entry
	Skipped []string
	Assets  []AssetChange
}

// add records an entry unless the key already has one. Earlier rules carry
// more direct causes, so the first reason wins.
func (p *Plan) add(key string, reason Reason, trigger string) {
	if _, ok := p.Entries[key]; ok {
		return
	}
	p.Entries[key] = &Entry{Key: key, Reason: reason, Trigger: trigger}
}

// Keys returns the planned page keys in sorted order.
func (p *Plan) Keys() []string {
	keys := make([]string, 0, len(p.Entries))
	for k := range p.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter expands classified changes into a rebuild plan by walking the
// reverse dependency graph and the site structure.
type Filter struct {
	site    *content.Site
	tracker *Tracker
	mgr     *cache.Manager
	out     afero.Fs
	outDir  string
	cls     *Classifier
}

// NewFilter builds a filter. out and outDir locate the previous build's
// output tree for missing-output detection.
func NewFilter(site *content.Site, tracker *Tracker, mgr *cache.Manager, out afero.Fs, outDir string) *Filter {
	return &Filter{
		site:    site,
		tracker: tracker,
		mgr:     mgr,
		out:     out,
		outDir:  outDir,
		cls:     NewClassifier(site.Config),
	}
}

// Plan decides the rebuild set over the renderable pages. Full-mode options
// mark every page with one reason; incremental mode classifies directly
// changed pages first, then expands through cascades, the reverse indexes,
// taxonomy membership diffs, and finally missing outputs.
func (f *Filter) Plan(pages []*content.Page, opts Options) (*Plan, error) {
	plan := &Plan{Entries: make(map[string]*Entry, len(pages))}

	switch {
	case opts.Force:
		return f.planFull(plan, pages, ReasonForced, "forced rebuild"), nil
	case opts.ConfigChanged:
		return f.planFull(plan, pages, ReasonFullRebuild, "config changed"), nil
	case opts.Cold:
		plan.Full = true
		for _, p := range pages {
			plan.add(p.Key, ReasonContentChanged, f.pageTrigger(p))
		}
		return plan, nil
	case opts.MenuChanged:
		return f.planFull(plan, pages, ReasonNavChanged, "menu structure changed"), nil
	}

	// Config edits and section-shape changes invalidate too much structure
	// to filter; escalate before walking anything.
	for _, ch := range opts.Changes {
		if ch.Kind == KindConfig {
			return f.planFull(plan, pages, ReasonFullRebuild, ch.Path), nil
		}
		if f.cls.SectionStructural(ch) {
			return f.planFull(plan, pages, ReasonFullRebuild, ch.Path), nil
		}
	}

	byKey := make(map[string]*content.Page, len(pages))
	bySource := make(map[string]*content.Page)
	for _, p := range pages {
		byKey[p.Key] = p
		if p.SourcePath != "" {
			if rel, err := f.cls.Rel(p.SourcePath); err == nil {
				bySource[rel] = p
			}
		}
	}

	// Directly changed pages claim their reason before any expansion.
	for _, ch := range opts.Changes {
		if ch.Kind != KindContent || ch.Op == OpRemove {
			continue
		}
		p, ok := bySource[ch.Path]
		if !ok {
			continue
		}
		plan.add(p.Key, f.directReason(p, ch), ch.Path)
	}

	// Structure-level expansions of content changes.
	for _, ch := range opts.Changes {
		if ch.Kind != KindContent {
			continue
		}
		f.expandContentChange(plan, ch, byKey, bySource)
	}

	// Reverse-index expansions for templates, data files, and assets.
	for _, ch := range opts.Changes {
		switch ch.Kind {
		case KindTemplate:
			name := f.cls.TemplateName(ch.Path)
			for _, key := range f.tracker.Dependents(EdgeTemplate, name) {
				if _, ok := byKey[key]; ok {
					plan.add(key, ReasonTemplateChanged, name)
				}
			}
		case KindData:
			for _, key := range f.tracker.Dependents(EdgeData, ch.Path) {
				if _, ok := byKey[key]; ok {
					plan.add(key, ReasonDataFileChanged, ch.Path)
				}
			}
		case KindAsset:
			asset := f.cls.AssetKey(ch.Path)
			plan.Assets = append(plan.Assets, AssetChange{
				Key:     asset,
				OldHash: ch.Old.Hash,
				NewHash: ch.New.Hash,
			})
			for _, key := range f.tracker.Dependents(EdgeAsset, asset) {
				if _, ok := byKey[key]; ok {
					plan.add(key, ReasonAssetChanged, asset)
				}
			}
		}
	}

	f.expandPageDeps(plan, byKey)
	if err := f.expandTaxonomyDiff(plan, byKey); err != nil {
		return nil, err
	}
	if err := f.addMissingOutputs(plan, pages); err != nil {
		return nil, err
	}

	for _, p := range pages {
		if _, ok := plan.Entries[p.Key]; !ok {
			plan.Skipped = append(plan.Skipped, p.Key)
		}
	}
	sort.Strings(plan.Skipped)
	sort.Slice(plan.Assets, func(i, j int) bool { return plan.Assets[i].Key < plan.Assets[j].Key })
	return plan, nil
}

func (f *Filter) planFull(plan *Plan, pages []*content.Page, reason Reason, trigger string) *Plan {
	plan.Full = true
	for _, p := range pages {
		plan.add(p.Key, reason, trigger)
	}
	return plan
}

func (f *Filter) pageTrigger(p *content.Page) string {
	if p.SourcePath == "" {
		return "generated"
	}
	if rel, err := f.cls.Rel(p.SourcePath); err == nil {
		return rel
	}
	return p.SourcePath
}

// directReason distinguishes a nav-only edit (frontmatter navigation keys
// changed, body identical) from a content edit.
func (f *Filter) directReason(p *content.Page, ch Change) Reason {
	if ch.Op != OpWrite {
		return ReasonContentChanged
	}
	rec, err := f.mgr.GetPage(p.Key)
	if err != nil || rec == nil {
		return ReasonContentChanged
	}
	if rec.NavDigest != "" && rec.NavDigest != NavDigest(p) && rec.BodyHash == BodyHash(p) {
		return ReasonNavChanged
	}
	return ReasonContentChanged
}

// expandContentChange pulls in the pages a content change affects beyond the
// page itself: listing ancestors, nav neighbors, cascade descendants, and
// (for removals) pages that displayed the removed page.
func (f *Filter) expandContentChange(plan *Plan, ch Change, byKey, bySource map[string]*content.Page) {
	if ch.Op == OpRemove {
		key := f.cls.ContentKey(ch.Path)
		for _, dep := range f.tracker.Dependents(EdgePage, key) {
			if _, ok := byKey[dep]; ok {
				plan.add(dep, ReasonContentChanged, key)
			}
		}
		f.markIndexChain(plan, byKey, path.Dir(key), key)
		return
	}

	p, ok := bySource[ch.Path]
	if !ok {
		return
	}

	switch ch.Op {
	case OpCreate, OpRename:
		// A new page shifts neighbor navigation and every listing above it.
		f.markNeighbors(plan, byKey, p)
		for _, anc := range append([]*content.Page{p.Parent()}, p.Ancestors()...) {
			if anc != nil {
				plan.add(anc.Key, ReasonContentChanged, ch.Path)
			}
		}
	case OpWrite:
		rec, err := f.mgr.GetPage(p.Key)
		if err != nil || rec == nil {
			return
		}
		if rec.NavDigest != NavDigest(p) {
			f.markNeighbors(plan, byKey, p)
		}
		if rec.CascadeDigest != CascadeDigest(p) {
			f.markDescendants(plan, byKey, p, ch.Path)
		}
	}
}

func (f *Filter) markNeighbors(plan *Plan, byKey map[string]*content.Page, p *content.Page) {
	for _, n := range []*content.Page{p.Next, p.Prev, p.NextInSection, p.PrevInSection} {
		if n == nil {
			continue
		}
		if _, ok := byKey[n.Key]; ok {
			plan.add(n.Key, ReasonAdjacentNav, p.Key)
		}
	}
}

// markIndexChain marks the index pages of the section owning dir and all its
// ancestors. Used for removals, where no Page object survives to walk from.
func (f *Filter) markIndexChain(plan *Plan, byKey map[string]*content.Page, dir, trigger string) {
	if dir == "." {
		dir = ""
	}
	sec := f.site.SectionFor(dir)
	for sec == nil && dir != "" {
		dir = parentDir(dir)
		sec = f.site.SectionFor(dir)
	}
	for ; sec != nil; sec = sec.Parent {
		if sec.IndexPage == nil {
			continue
		}
		if _, ok := byKey[sec.IndexPage.Key]; ok {
			plan.add(sec.IndexPage.Key, ReasonContentChanged, trigger)
		}
	}
}

// markDescendants marks every renderable page under a section index whose
// cascade block changed.
func (f *Filter) markDescendants(plan *Plan, byKey map[string]*content.Page, p *content.Page, trigger string) {
	sec := p.Section()
	if sec == nil || sec.IndexPage != p {
		// Root cascade declared by a top-level page reaches everything.
		if p.Declared("cascade") && p.Section() != nil && p.Section().IsRoot() {
			sec = f.site.Root
		} else {
			return
		}
	}
	sec.Walk(func(s *content.Section) {
		for _, child := range s.Pages {
			if _, ok := byKey[child.Key]; ok {
				plan.add(child.Key, ReasonCascade, trigger)
			}
		}
		if s.IndexPage != nil && s.IndexPage != p {
			if _, ok := byKey[s.IndexPage.Key]; ok {
				plan.add(s.IndexPage.Key, ReasonCascade, trigger)
			}
		}
	})
}

// expandPageDeps walks rev_pages transitively: pages that display a rebuilt
// page's content rebuild too. Cross-version edges get their own reason when
// versioning is on.
func (f *Filter) expandPageDeps(plan *Plan, byKey map[string]*content.Page) {
	versioning := f.site.Config.Versioning.Enabled

	queue := make([]string, 0, len(plan.Entries))
	visited := make(map[string]bool, len(plan.Entries))
	for k := range plan.Entries {
		queue = append(queue, k)
		visited[k] = true
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		for _, dep := range f.tracker.Dependents(EdgePage, key) {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if _, ok := byKey[dep]; !ok {
				continue
			}
			reason := ReasonContentChanged
			if versioning && f.versionOf(dep) != f.versionOf(key) {
				reason = ReasonCrossVersion
			}
			plan.add(dep, reason, key)
			queue = append(queue, dep)
		}
	}
}

func (f *Filter) versionOf(key string) string {
	trimmed := strings.TrimPrefix(key, content.VirtualPrefix)
	seg, _, _ := strings.Cut(trimmed, "/")
	if slices.Contains(f.site.Config.Versioning.Versions, seg) {
		return seg
	}
	return ""
}

// expandTaxonomyDiff rebuilds term pages whose membership changed since the
// snapshot recorded by the previous build.
func (f *Filter) expandTaxonomyDiff(plan *Plan, byKey map[string]*content.Page) error {
	old, err := f.mgr.TaxonomySnapshot()
	if err != nil {
		return err
	}
	cur := SnapshotTaxonomies(f.site)

	for _, tax := range unionKeys(old, cur) {
		oldTerms := old[tax]
		curTerms := cur[tax]
		indexKey := content.VirtualPrefix + tax + "/_index.md"

		for _, term := range unionKeys(oldTerms, curTerms) {
			if slices.Equal(oldTerms[term], curTerms[term]) {
				continue
			}
			trigger := "taxonomy " + tax + "/" + term
			termKey := content.VirtualPrefix + tax + "/" + content.Slugify(term) + ".md"
			if _, ok := byKey[termKey]; ok {
				plan.add(termKey, ReasonContentChanged, trigger)
			}
			if _, ok := byKey[indexKey]; ok {
				plan.add(indexKey, ReasonContentChanged, trigger)
			}
		}
	}
	return nil
}

// addMissingOutputs sweeps the pages the plan would skip and pulls in any
// whose previous output is gone (or that never rendered at all).
func (f *Filter) addMissingOutputs(plan *Plan, pages []*content.Page) error {
	for _, p := range pages {
		if _, ok := plan.Entries[p.Key]; ok {
			continue
		}
		rec, err := f.mgr.GetOutput(p.Key)
		if err != nil {
			return err
		}
		if rec == nil {
			plan.add(p.Key, ReasonOutputMissing, "never rendered")
			continue
		}
		exists, err := afero.Exists(f.out, filepath.Join(f.outDir, rec.Path))
		if err != nil {
			return err
		}
		if !exists {
			plan.add(p.Key, ReasonOutputMissing, rec.Path)
		}
	}
	return nil
}

// SnapshotTaxonomies flattens the site's taxonomies into the comparable
// form persisted in the cache: taxonomy -> term -> sorted page keys.
func SnapshotTaxonomies(site *content.Site) map[string]map[string][]string {
	snap := make(map[string]map[string][]string, len(site.Taxonomy))
	for name, tax := range site.Taxonomy {
		terms := make(map[string][]string, len(tax.Terms))
		for term, members := range tax.Terms {
			keys := make([]string, 0, len(members))
			for _, p := range members {
				keys = append(keys, p.Key)
			}
			sort.Strings(keys)
			terms[term] = keys
		}
		snap[name] = terms
	}
	return snap
}

func unionKeys[V any](a, b map[string]V) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func parentDir(dir string) string {
	d := path.Dir(dir)
	if d == "." {
		return ""
	}
	return d
}
