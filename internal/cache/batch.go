package cache

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Batch collects everything one build wants to persist so it can land in a
// single transaction. A build that dies mid-commit leaves the previous
// cache state intact.
type Batch struct {
	Pages        []*PageRecord
	Fingerprints map[string]Fingerprint
	Deps         []DepRecord
	Outputs      []*OutputRecord
	Assets       []*AssetRecord
	Manifest     *Manifest
	Events       []Event

	// Removals for pages whose sources disappeared.
	DeletePages        []string
	DeleteFingerprints []string
	DeleteOutputs      []string

	// Meta updates recorded alongside the build.
	ConfigHash       string
	NavSignature     string
	TaxonomySnapshot map[string]map[string][]string
	OutputSnapshot   map[string]string
}

type encodedKV struct {
	key   []byte
	value []byte
}

// Commit writes the whole batch in one transaction. Page HTML spills to the
// content store before the transaction opens; encoding also happens outside
// it so the write lock is held only for the actual puts.
func (m *Manager) Commit(b *Batch) error {
	ops := make(map[string][]encodedKV, 8)

	for _, r := range b.Pages {
		data, err := Encode(r)
		if err != nil {
			return err
		}
		ops[BucketPages] = append(ops[BucketPages], encodedKV{[]byte(r.Key), data})
	}
	for path, fp := range b.Fingerprints {
		data, err := Encode(&fp)
		if err != nil {
			return err
		}
		ops[BucketFingerprints] = append(ops[BucketFingerprints], encodedKV{[]byte(path), data})
	}
	for _, r := range b.Outputs {
		data, err := Encode(r)
		if err != nil {
			return err
		}
		ops[BucketOutputs] = append(ops[BucketOutputs], encodedKV{[]byte(r.Key), data})
	}
	for _, r := range b.Assets {
		data, err := Encode(r)
		if err != nil {
			return err
		}
		ops[BucketAssets] = append(ops[BucketAssets], encodedKV{[]byte(r.Source), data})
	}

	var manifestData []byte
	if b.Manifest != nil {
		var err error
		manifestData, err = Encode(b.Manifest)
		if err != nil {
			return err
		}
	}
	var snapshotData []byte
	if b.TaxonomySnapshot != nil {
		var err error
		snapshotData, err = Encode(b.TaxonomySnapshot)
		if err != nil {
			return err
		}
	}
	var outputsData []byte
	if b.OutputSnapshot != nil {
		var err error
		outputsData, err = Encode(b.OutputSnapshot)
		if err != nil {
			return err
		}
	}

	err := m.db.Update(func(tx *bolt.Tx) error {
		for bucket, kvs := range ops {
			bk := tx.Bucket([]byte(bucket))
			for _, kv := range kvs {
				if err := bk.Put(kv.key, kv.value); err != nil {
					return fmt.Errorf("writing %s: %w", bucket, err)
				}
			}
		}

		for _, rec := range b.Deps {
			if err := setDepsTx(tx, rec); err != nil {
				return err
			}
		}

		pages := tx.Bucket([]byte(BucketPages))
		for _, key := range b.DeletePages {
			if err := pages.Delete([]byte(key)); err != nil {
				return err
			}
			if err := setDepsTx(tx, DepRecord{Key: key}); err != nil {
				return err
			}
		}
		fps := tx.Bucket([]byte(BucketFingerprints))
		for _, path := range b.DeleteFingerprints {
			if err := fps.Delete([]byte(path)); err != nil {
				return err
			}
		}
		outs := tx.Bucket([]byte(BucketOutputs))
		for _, key := range b.DeleteOutputs {
			if err := outs.Delete([]byte(key)); err != nil {
				return err
			}
		}

		meta := tx.Bucket([]byte(BucketMeta))
		if b.ConfigHash != "" {
			if err := meta.Put([]byte(KeyConfigHash), []byte(b.ConfigHash)); err != nil {
				return err
			}
		}
		if b.NavSignature != "" {
			if err := meta.Put([]byte(KeyNavSignature), []byte(b.NavSignature)); err != nil {
				return err
			}
		}
		if snapshotData != nil {
			if err := meta.Put([]byte(KeyTaxonomySnapshot), snapshotData); err != nil {
				return err
			}
		}
		if outputsData != nil {
			if err := meta.Put([]byte(KeyOutputSnapshot), outputsData); err != nil {
				return err
			}
		}

		if manifestData != nil {
			manifests := tx.Bucket([]byte(BucketManifests))
			if err := manifests.Put([]byte(b.Manifest.BuildID), manifestData); err != nil {
				return err
			}
			if err := meta.Put([]byte(KeyLastBuildID), []byte(b.Manifest.BuildID)); err != nil {
				return err
			}
			count := uint64(0)
			if raw := meta.Get([]byte(KeyBuildCount)); len(raw) == 8 {
				count = binary.BigEndian.Uint64(raw)
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, count+1)
			if err := meta.Put([]byte(KeyBuildCount), buf); err != nil {
				return err
			}
		}

		if len(b.Events) > 0 {
			if err := appendEventsTx(tx, b.Events); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// AppendEvents adds entries to the bounded event log.
func (m *Manager) AppendEvents(events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	err := m.db.Update(func(tx *bolt.Tx) error {
		return appendEventsTx(tx, events)
	})
	if err != nil {
		return fmt.Errorf("appending events: %w", err)
	}
	return nil
}

func appendEventsTx(tx *bolt.Tx, events []Event) error {
	bucket := tx.Bucket([]byte(BucketEvents))
	for i := range events {
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		events[i].Seq = seq
		if events[i].Time == 0 {
			events[i].Time = time.Now().UnixNano()
		}
		data, err := Encode(&events[i])
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := bucket.Put(key, data); err != nil {
			return err
		}
	}
	return pruneEventsTx(bucket)
}

// pruneEventsTx drops the oldest entries past MaxEvents. Counting walks a
// cursor rather than Stats, which does not see puts made in the same tx.
// Sequence keys are big-endian so cursor order is append order.
func pruneEventsTx(bucket *bolt.Bucket) error {
	count := 0
	c := bucket.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	excess := count - MaxEvents
	if excess <= 0 {
		return nil
	}
	c = bucket.Cursor()
	k, _ := c.First()
	for i := 0; i < excess && k != nil; i++ {
		if err := c.Delete(); err != nil {
			return err
		}
		k, _ = c.Next()
	}
	return nil
}

// Events returns the newest entries up to limit, oldest first. limit <= 0
// returns everything retained.
func (m *Manager) Events(limit int) ([]Event, error) {
	var out []Event
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketEvents)).ForEach(func(k, v []byte) error {
			var ev Event
			if err := Decode(v, &ev); err != nil {
				return err
			}
			out = append(out, ev)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
