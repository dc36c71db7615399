package cache

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// PutPage stores a page record, spilling html into the content store when it
// exceeds the inline threshold. ContentHash is computed from html when the
// caller left it empty.
func (m *Manager) PutPage(r *PageRecord, html []byte) error {
	if err := m.preparePage(r, html); err != nil {
		return err
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return m.put(BucketPages, r.Key, data)
}

func (m *Manager) preparePage(r *PageRecord, html []byte) error {
	if r.ContentHash == "" {
		r.ContentHash = HashContent(html)
	}
	if len(html) <= InlineHTMLThreshold {
		r.InlineHTML = html
		r.HTMLHash = ""
		return nil
	}
	hash, err := m.store.Put(html)
	if err != nil {
		return err
	}
	r.InlineHTML = nil
	r.HTMLHash = hash
	return nil
}

// GetPage returns the stored record for key, or nil when absent. Spilled
// HTML is not hydrated; use LoadHTML.
func (m *Manager) GetPage(key string) (*PageRecord, error) {
	data, err := m.get(BucketPages, key)
	if err != nil || data == nil {
		return nil, err
	}
	var r PageRecord
	if err := Decode(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadHTML returns the rendered HTML for a record, reading the content store
// when the body was spilled.
func (m *Manager) LoadHTML(r *PageRecord) ([]byte, error) {
	if r.Inline() {
		return r.InlineHTML, nil
	}
	return m.store.Get(r.HTMLHash)
}

// DeletePage removes the page record. Store objects are left for GCStore.
func (m *Manager) DeletePage(key string) error {
	return m.delete(BucketPages, key)
}

// PageKeys returns every cached page key.
func (m *Manager) PageKeys() ([]string, error) {
	return m.keys(BucketPages)
}

// PutFingerprint records the observed state of one source path.
func (m *Manager) PutFingerprint(path string, fp Fingerprint) error {
	data, err := Encode(&fp)
	if err != nil {
		return err
	}
	return m.put(BucketFingerprints, path, data)
}

// GetFingerprint returns the stored fingerprint and whether one exists.
func (m *Manager) GetFingerprint(path string) (Fingerprint, bool, error) {
	data, err := m.get(BucketFingerprints, path)
	if err != nil || data == nil {
		return Fingerprint{}, false, err
	}
	var fp Fingerprint
	if err := Decode(data, &fp); err != nil {
		return Fingerprint{}, false, err
	}
	return fp, true, nil
}

// AllFingerprints returns every stored path fingerprint. The incremental
// classifier diffs this map against the current tree to find deletions.
func (m *Manager) AllFingerprints() (map[string]Fingerprint, error) {
	out := make(map[string]Fingerprint)
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketFingerprints)).ForEach(func(k, v []byte) error {
			var fp Fingerprint
			if err := Decode(v, &fp); err != nil {
				return err
			}
			out[string(k)] = fp
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading fingerprints: %w", err)
	}
	return out, nil
}

// DeleteFingerprint drops the record for a removed source path.
func (m *Manager) DeleteFingerprint(path string) error {
	return m.delete(BucketFingerprints, path)
}

// PutOutput records where a page landed on disk.
func (m *Manager) PutOutput(r *OutputRecord) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return m.put(BucketOutputs, r.Key, data)
}

// GetOutput returns the output record for key, or nil when absent.
func (m *Manager) GetOutput(key string) (*OutputRecord, error) {
	data, err := m.get(BucketOutputs, key)
	if err != nil || data == nil {
		return nil, err
	}
	var r OutputRecord
	if err := Decode(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AllOutputs returns every output record keyed by page key.
func (m *Manager) AllOutputs() (map[string]*OutputRecord, error) {
	out := make(map[string]*OutputRecord)
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketOutputs)).ForEach(func(k, v []byte) error {
			var r OutputRecord
			if err := Decode(v, &r); err != nil {
				return err
			}
			out[string(k)] = &r
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading outputs: %w", err)
	}
	return out, nil
}

// DeleteOutput removes the output record for a page.
func (m *Manager) DeleteOutput(key string) error {
	return m.delete(BucketOutputs, key)
}

// PutAsset records a processed asset keyed by its source-relative path.
func (m *Manager) PutAsset(r *AssetRecord) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	return m.put(BucketAssets, r.Source, data)
}

// GetAsset returns the asset record for source, or nil when absent.
func (m *Manager) GetAsset(source string) (*AssetRecord, error) {
	data, err := m.get(BucketAssets, source)
	if err != nil || data == nil {
		return nil, err
	}
	var r AssetRecord
	if err := Decode(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// TaxonomySnapshot returns the term membership recorded by the last build:
// taxonomy name -> term -> page keys. nil when none was stored.
func (m *Manager) TaxonomySnapshot() (map[string]map[string][]string, error) {
	data, err := m.get(BucketMeta, KeyTaxonomySnapshot)
	if err != nil || data == nil {
		return nil, err
	}
	var snap map[string]map[string][]string
	if err := Decode(data, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// SetTaxonomySnapshot records the current term membership.
func (m *Manager) SetTaxonomySnapshot(snap map[string]map[string][]string) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return m.put(BucketMeta, KeyTaxonomySnapshot, data)
}

// OutputSnapshot returns the output inventory recorded by the last build:
// output-relative path -> content hash. nil when none was stored.
func (m *Manager) OutputSnapshot() (map[string]string, error) {
	data, err := m.get(BucketMeta, KeyOutputSnapshot)
	if err != nil || data == nil {
		return nil, err
	}
	var snap map[string]string
	if err := Decode(data, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetManifest returns the manifest for a build ID, or nil when absent.
func (m *Manager) GetManifest(buildID string) (*Manifest, error) {
	data, err := m.get(BucketManifests, buildID)
	if err != nil || data == nil {
		return nil, err
	}
	var man Manifest
	if err := Decode(data, &man); err != nil {
		return nil, err
	}
	return &man, nil
}

// LastManifest returns the manifest of the most recent committed build, or
// nil when the cache has never committed.
func (m *Manager) LastManifest() (*Manifest, error) {
	id, err := m.LastBuildID()
	if err != nil || id == "" {
		return nil, err
	}
	return m.GetManifest(id)
}

// GCStore deletes store objects no page record references.
func (m *Manager) GCStore() (int, error) {
	referenced := make(map[string]struct{})
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketPages)).ForEach(func(k, v []byte) error {
			var r PageRecord
			if err := Decode(v, &r); err != nil {
				return err
			}
			if r.HTMLHash != "" {
				referenced[r.HTMLHash] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("collecting store refs: %w", err)
	}

	hashes, err := m.store.ListHashes()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, h := range hashes {
		if _, ok := referenced[h]; ok {
			continue
		}
		if err := m.store.Delete(h); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) put(bucket, key string, value []byte) error {
	err := m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *Manager) get(bucket, key string) ([]byte, error) {
	var out []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", bucket, key, err)
	}
	return out, nil
}

func (m *Manager) delete(bucket, key string) error {
	err := m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *Manager) keys(bucket string) ([]string, error) {
	var out []string
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", bucket, err)
	}
	return out, nil
}
