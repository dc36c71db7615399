package cache

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Reverse index keys are "<dep>\x00<pageKey>". Page keys and dependency
// names both contain slashes, so a NUL separator keeps prefix scans exact.
const revSep = "\x00"

func revKey(dep, pageKey string) []byte {
	return []byte(dep + revSep + pageKey)
}

func revPrefix(dep string) []byte {
	return []byte(dep + revSep)
}

// revBucketFor maps a dependency class in a DepRecord to its reverse bucket.
var revBuckets = []struct {
	bucket string
	edges  func(*DepRecord) []string
}{
	{BucketRevTemplates, func(d *DepRecord) []string { return d.Templates }},
	{BucketRevData, func(d *DepRecord) []string { return d.DataFiles }},
	{BucketRevAssets, func(d *DepRecord) []string { return d.Assets }},
	{BucketRevPages, func(d *DepRecord) []string { return d.Pages }},
}

// SetDeps replaces the forward dependency record for a page and keeps the
// reverse indexes consistent: stale edges are removed, new ones added.
func (m *Manager) SetDeps(rec DepRecord) error {
	err := m.db.Update(func(tx *bolt.Tx) error {
		return setDepsTx(tx, rec)
	})
	if err != nil {
		return fmt.Errorf("writing deps for %s: %w", rec.Key, err)
	}
	return nil
}

func setDepsTx(tx *bolt.Tx, rec DepRecord) error {
	deps := tx.Bucket([]byte(BucketDeps))

	var old DepRecord
	if raw := deps.Get([]byte(rec.Key)); raw != nil {
		if err := Decode(raw, &old); err != nil {
			return err
		}
	}

	for _, rb := range revBuckets {
		bucket := tx.Bucket([]byte(rb.bucket))
		oldEdges := toSet(rb.edges(&old))
		newEdges := toSet(rb.edges(&rec))

		for dep := range oldEdges {
			if _, keep := newEdges[dep]; keep {
				continue
			}
			if err := bucket.Delete(revKey(dep, rec.Key)); err != nil {
				return err
			}
		}
		for dep := range newEdges {
			if err := bucket.Put(revKey(dep, rec.Key), nil); err != nil {
				return err
			}
		}
	}

	if rec.Empty() {
		return deps.Delete([]byte(rec.Key))
	}
	data, err := Encode(&rec)
	if err != nil {
		return err
	}
	return deps.Put([]byte(rec.Key), data)
}

// GetDeps returns the forward dependency record for a page key, or an empty
// record when none is stored.
func (m *Manager) GetDeps(key string) (DepRecord, error) {
	data, err := m.get(BucketDeps, key)
	if err != nil {
		return DepRecord{}, err
	}
	rec := DepRecord{Key: key}
	if data == nil {
		return rec, nil
	}
	if err := Decode(data, &rec); err != nil {
		return DepRecord{}, err
	}
	return rec, nil
}

// DeleteDeps removes a page's forward record and all its reverse entries.
func (m *Manager) DeleteDeps(key string) error {
	return m.SetDeps(DepRecord{Key: key})
}

// AllDeps returns every forward dependency record. The tracker hydrates its
// in-memory graph from this at build start.
func (m *Manager) AllDeps() ([]DepRecord, error) {
	var out []DepRecord
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketDeps)).ForEach(func(k, v []byte) error {
			var rec DepRecord
			if err := Decode(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading deps: %w", err)
	}
	return out, nil
}

// Dependents scans one reverse bucket and returns the page keys that depend
// on dep. bucket must be one of the BucketRev* constants.
func (m *Manager) Dependents(bucket, dep string) ([]string, error) {
	var out []string
	prefix := revPrefix(dep)
	err := m.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			out = append(out, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s for %s: %w", bucket, dep, err)
	}
	return out, nil
}

// TemplateDependents returns pages rendered with the named template or any
// partial it pulled in.
func (m *Manager) TemplateDependents(template string) ([]string, error) {
	return m.Dependents(BucketRevTemplates, template)
}

// DataDependents returns pages that read the given data file.
func (m *Manager) DataDependents(path string) ([]string, error) {
	return m.Dependents(BucketRevData, path)
}

// AssetDependents returns pages that referenced the given asset.
func (m *Manager) AssetDependents(asset string) ([]string, error) {
	return m.Dependents(BucketRevAssets, asset)
}

// PageDependents returns pages that cross-referenced the given page key.
func (m *Manager) PageDependents(key string) ([]string, error) {
	return m.Dependents(BucketRevPages, key)
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
