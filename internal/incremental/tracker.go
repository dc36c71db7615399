package incremental

import (
	"sort"
	"sync"

	"github.com/bengal-ssg/bengal/internal/cache"
)

// EdgeKind names a dependency class in the graph.
type EdgeKind int

const (
	EdgeTemplate EdgeKind = iota
	EdgeData
	EdgeAsset
	EdgePage
)

type edgeSet struct {
	templates map[string]struct{}
	data      map[string]struct{}
	assets    map[string]struct{}
	pages     map[string]struct{}
}

func newEdgeSet() *edgeSet {
	return &edgeSet{
		templates: make(map[string]struct{}),
		data:      make(map[string]struct{}),
		assets:    make(map[string]struct{}),
		pages:     make(map[string]struct{}),
	}
}

func (e *edgeSet) byKind(kind EdgeKind) map[string]struct{} {
	switch kind {
	case EdgeTemplate:
		return e.templates
	case EdgeData:
		return e.data
	case EdgeAsset:
		return e.assets
	default:
		return e.pages
	}
}

// Tracker holds the forward and reverse dependency graph for the current
// process. Render workers add edges concurrently; the provenance filter and
// the graph command query it; finalize exports it to the cache. One mutex
// guards both directions so they can never disagree.
type Tracker struct {
	mu      sync.Mutex
	forward map[string]*edgeSet
	reverse [4]map[string]map[string]struct{} // kind -> dep -> page keys
}

// NewTracker returns an empty graph.
func NewTracker() *Tracker {
	t := &Tracker{forward: make(map[string]*edgeSet)}
	for i := range t.reverse {
		t.reverse[i] = make(map[string]map[string]struct{})
	}
	return t
}

// Load hydrates the graph from cached dependency records, replacing any
// current contents.
func (t *Tracker) Load(records []cache.DepRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.forward = make(map[string]*edgeSet, len(records))
	for i := range t.reverse {
		t.reverse[i] = make(map[string]map[string]struct{})
	}
	for _, rec := range records {
		for _, dep := range rec.Templates {
			t.addLocked(rec.Key, EdgeTemplate, dep)
		}
		for _, dep := range rec.DataFiles {
			t.addLocked(rec.Key, EdgeData, dep)
		}
		for _, dep := range rec.Assets {
			t.addLocked(rec.Key, EdgeAsset, dep)
		}
		for _, dep := range rec.Pages {
			t.addLocked(rec.Key, EdgePage, dep)
		}
	}
}

// Add records one forward edge and its reverse entry.
func (t *Tracker) Add(pageKey string, kind EdgeKind, dep string) {
	if dep == "" || pageKey == "" || dep == pageKey {
		return
	}
	t.mu.Lock()
	t.addLocked(pageKey, kind, dep)
	t.mu.Unlock()
}

func (t *Tracker) addLocked(pageKey string, kind EdgeKind, dep string) {
	set, ok := t.forward[pageKey]
	if !ok {
		set = newEdgeSet()
		t.forward[pageKey] = set
	}
	set.byKind(kind)[dep] = struct{}{}

	rev := t.reverse[kind]
	pages, ok := rev[dep]
	if !ok {
		pages = make(map[string]struct{})
		rev[dep] = pages
	}
	pages[pageKey] = struct{}{}
}

// AddTemplate records that a page was rendered through the named template.
func (t *Tracker) AddTemplate(pageKey, template string) { t.Add(pageKey, EdgeTemplate, template) }

// AddData records that a page read a data file.
func (t *Tracker) AddData(pageKey, path string) { t.Add(pageKey, EdgeData, path) }

// AddAsset records that a page embedded an asset URL.
func (t *Tracker) AddAsset(pageKey, asset string) { t.Add(pageKey, EdgeAsset, asset) }

// AddPage records that a page read another page's content or metadata.
func (t *Tracker) AddPage(pageKey, otherKey string) { t.Add(pageKey, EdgePage, otherKey) }

// Forget drops a page's forward edges and their reverse entries. Used when
// a page's source disappears.
func (t *Tracker) Forget(pageKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.forward[pageKey]
	if !ok {
		return
	}
	for kind := EdgeTemplate; kind <= EdgePage; kind++ {
		for dep := range set.byKind(kind) {
			if pages := t.reverse[kind][dep]; pages != nil {
				delete(pages, pageKey)
				if len(pages) == 0 {
					delete(t.reverse[kind], dep)
				}
			}
		}
	}
	delete(t.forward, pageKey)
}

// Replace swaps a page's edges for the set recorded by a fresh render.
func (t *Tracker) Replace(rec cache.DepRecord) {
	t.Forget(rec.Key)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, dep := range rec.Templates {
		t.addLocked(rec.Key, EdgeTemplate, dep)
	}
	for _, dep := range rec.DataFiles {
		t.addLocked(rec.Key, EdgeData, dep)
	}
	for _, dep := range rec.Assets {
		t.addLocked(rec.Key, EdgeAsset, dep)
	}
	for _, dep := range rec.Pages {
		t.addLocked(rec.Key, EdgePage, dep)
	}
}

// Dependents returns the sorted page keys that depend on dep through the
// given edge kind.
func (t *Tracker) Dependents(kind EdgeKind, dep string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.reverse[kind][dep])
}

// DepsOf exports a page's forward edges as a sorted dependency record.
func (t *Tracker) DepsOf(pageKey string) cache.DepRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := cache.DepRecord{Key: pageKey}
	set, ok := t.forward[pageKey]
	if !ok {
		return rec
	}
	rec.Templates = sortedKeys(set.templates)
	rec.DataFiles = sortedKeys(set.data)
	rec.Assets = sortedKeys(set.assets)
	rec.Pages = sortedKeys(set.pages)
	return rec
}

// Records exports the whole forward graph sorted by page key, ready for the
// cache batch at finalize.
func (t *Tracker) Records() []cache.DepRecord {
	t.mu.Lock()
	keys := make([]string, 0, len(t.forward))
	for k := range t.forward {
		keys = append(keys, k)
	}
	t.mu.Unlock()
	sort.Strings(keys)

	out := make([]cache.DepRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.DepsOf(k))
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
