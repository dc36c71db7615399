package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

// Event kinds recorded in the invalidation log.
const (
	EventInvalidate = "invalidate"
	EventCommit     = "commit"
	EventReset      = "reset"
)

const lockStripes = 64

// Coordinator layers an in-memory overlay and a staged write batch over the
// Manager so render workers share one consistent view of the cache during a
// build. Reads hit the overlay first; writes stage into a batch that lands
// in a single transaction at Flush. Invalidation clears all three layers
// together: staged batch, overlay, then the database in one transaction.
type Coordinator struct {
	mgr *Manager

	mu      sync.RWMutex
	hot     map[string]*PageRecord
	pending *Batch

	locks [lockStripes]sync.Mutex
}

// NewCoordinator wraps an open Manager.
func NewCoordinator(mgr *Manager) *Coordinator {
	return &Coordinator{
		mgr:     mgr,
		hot:     make(map[string]*PageRecord),
		pending: newBatch(),
	}
}

func newBatch() *Batch {
	return &Batch{Fingerprints: make(map[string]Fingerprint)}
}

// Manager returns the underlying manager for reads the coordinator does not
// overlay (deps, manifests, meta).
func (c *Coordinator) Manager() *Manager { return c.mgr }

// KeyLock returns the striped mutex for a page key. Workers hold it across
// the read-render-stage window for that page.
func (c *Coordinator) KeyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &c.locks[h.Sum32()%lockStripes]
}

// GetPage returns the freshest record for key: staged writes win over the
// database. Database hits populate the overlay.
func (c *Coordinator) GetPage(key string) (*PageRecord, error) {
	c.mu.RLock()
	if r, ok := c.hot[key]; ok {
		c.mu.RUnlock()
		return r, nil
	}
	c.mu.RUnlock()

	r, err := c.mgr.GetPage(key)
	if err != nil || r == nil {
		return nil, err
	}
	c.mu.Lock()
	if cached, ok := c.hot[key]; ok {
		r = cached
	} else {
		c.hot[key] = r
	}
	c.mu.Unlock()
	return r, nil
}

// LoadHTML hydrates a record's rendered body.
func (c *Coordinator) LoadHTML(r *PageRecord) ([]byte, error) {
	return c.mgr.LoadHTML(r)
}

// StagePage spills html if needed and stages the record for the next Flush.
func (c *Coordinator) StagePage(r *PageRecord, html []byte) error {
	if err := c.mgr.preparePage(r, html); err != nil {
		return err
	}
	c.mu.Lock()
	c.hot[r.Key] = r
	c.pending.Pages = append(c.pending.Pages, r)
	c.mu.Unlock()
	return nil
}

// StageDeps stages a page's forward dependency record.
func (c *Coordinator) StageDeps(rec DepRecord) {
	c.mu.Lock()
	c.pending.Deps = append(c.pending.Deps, rec)
	c.mu.Unlock()
}

// StageOutput stages where a page was written.
func (c *Coordinator) StageOutput(r *OutputRecord) {
	c.mu.Lock()
	c.pending.Outputs = append(c.pending.Outputs, r)
	c.mu.Unlock()
}

// StageAsset stages a processed asset record.
func (c *Coordinator) StageAsset(r *AssetRecord) {
	c.mu.Lock()
	c.pending.Assets = append(c.pending.Assets, r)
	c.mu.Unlock()
}

// StageFingerprint stages the observed state of a source path.
func (c *Coordinator) StageFingerprint(path string, fp Fingerprint) {
	c.mu.Lock()
	c.pending.Fingerprints[path] = fp
	c.mu.Unlock()
}

// StageDelete stages removal of a page whose source disappeared, dropping
// it from the overlay immediately.
func (c *Coordinator) StageDelete(key string, sourcePath string) {
	c.mu.Lock()
	delete(c.hot, key)
	c.pending.DeletePages = append(c.pending.DeletePages, key)
	c.pending.DeleteOutputs = append(c.pending.DeleteOutputs, key)
	if sourcePath != "" {
		c.pending.DeleteFingerprints = append(c.pending.DeleteFingerprints, sourcePath)
	}
	c.mu.Unlock()
}

// RecordEvent appends to the staged event log.
func (c *Coordinator) RecordEvent(ev Event) {
	c.mu.Lock()
	c.pending.Events = append(c.pending.Events, ev)
	c.mu.Unlock()
}

// StageTaxonomySnapshot stages the current term membership for the next
// Flush.
func (c *Coordinator) StageTaxonomySnapshot(snap map[string]map[string][]string) {
	c.mu.Lock()
	c.pending.TaxonomySnapshot = snap
	c.mu.Unlock()
}

// StageOutputSnapshot stages the output inventory (relative path -> content
// hash) the build is about to leave on disk.
func (c *Coordinator) StageOutputSnapshot(snap map[string]string) {
	c.mu.Lock()
	c.pending.OutputSnapshot = snap
	c.mu.Unlock()
}

// Flush commits everything staged since the last flush in one transaction,
// together with the build manifest and meta signatures. The staged batch is
// reset whether or not the commit succeeds; the overlay survives for the
// next build in the same process.
func (c *Coordinator) Flush(man *Manifest, configHash, navSignature string) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = newBatch()
	c.mu.Unlock()

	batch.Manifest = man
	batch.ConfigHash = configHash
	batch.NavSignature = navSignature
	if man != nil {
		batch.Events = append(batch.Events, Event{
			Time:    time.Now().UnixNano(),
			Kind:    EventCommit,
			Reason:  man.summary(),
			BuildID: man.BuildID,
		})
	}
	return c.mgr.Commit(batch)
}

// Invalidate removes the cached render state for keys across every layer:
// the staged batch, the overlay, and the database, with one event per key.
// A key's parsed content, rendered output, and source fingerprint clear
// together; partial invalidation is never visible.
func (c *Coordinator) Invalidate(keys []string, reason, buildID string) error {
	if len(keys) == 0 {
		return nil
	}

	// Resolve source paths before the records go away. Virtual pages have
	// no source file and nothing in the fingerprint layer.
	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		if rec, err := c.GetPage(key); err == nil && rec != nil && rec.SourcePath != "" {
			paths = append(paths, rec.SourcePath)
		}
	}

	c.mu.Lock()
	drop := toSet(keys)
	for _, key := range keys {
		delete(c.hot, key)
	}
	kept := c.pending.Pages[:0]
	for _, r := range c.pending.Pages {
		if _, gone := drop[r.Key]; !gone {
			kept = append(kept, r)
		}
	}
	c.pending.Pages = kept
	for _, path := range paths {
		delete(c.pending.Fingerprints, path)
	}
	c.mu.Unlock()

	now := time.Now().UnixNano()
	events := make([]Event, 0, len(keys))
	for _, key := range keys {
		events = append(events, Event{
			Time:    now,
			Kind:    EventInvalidate,
			Key:     key,
			Reason:  reason,
			BuildID: buildID,
		})
	}
	return c.mgr.Commit(&Batch{
		DeletePages:        keys,
		DeleteOutputs:      keys,
		DeleteFingerprints: paths,
		Events:             events,
	})
}

// InvalidatePage drops one page's cached state.
func (c *Coordinator) InvalidatePage(key, reason, buildID string) error {
	return c.Invalidate([]string{key}, reason, buildID)
}

// InvalidateForDataFile invalidates every page recorded as reading the given
// data file.
func (c *Coordinator) InvalidateForDataFile(path, buildID string) error {
	keys, err := c.mgr.DataDependents(path)
	if err != nil {
		return err
	}
	return c.Invalidate(keys, "data file changed: "+path, buildID)
}

// InvalidateForTemplate invalidates every page rendered with the named
// template or any partial it pulled in.
func (c *Coordinator) InvalidateForTemplate(name, buildID string) error {
	keys, err := c.mgr.TemplateDependents(name)
	if err != nil {
		return err
	}
	return c.Invalidate(keys, "template changed: "+name, buildID)
}

// InvalidateTaxonomyCascade invalidates the term pages whose membership a
// page's frontmatter edit changed.
func (c *Coordinator) InvalidateTaxonomyCascade(memberKey string, termKeys []string, buildID string) error {
	return c.Invalidate(termKeys, "taxonomy membership changed: "+memberKey, buildID)
}

// InvalidateAll wipes the cache and overlay, recording a reset event.
func (c *Coordinator) InvalidateAll(reason string) error {
	c.mu.Lock()
	c.hot = make(map[string]*PageRecord)
	c.pending = newBatch()
	c.mu.Unlock()

	if err := c.mgr.Reset(); err != nil {
		return err
	}
	return c.mgr.AppendEvents(Event{
		Time:   time.Now().UnixNano(),
		Kind:   EventReset,
		Reason: reason,
	})
}

func (m *Manifest) summary() string {
	if m.Full {
		return "full build"
	}
	return "incremental build"
}
