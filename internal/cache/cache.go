// Package cache persists build state between runs: parsed and rendered page
// records, source fingerprints, the dependency graph and its reverse
// indexes, output locations, and a bounded invalidation event log. Records
// live in a single bbolt database; rendered HTML over the inline threshold
// spills into a content-addressed side store.
package cache

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// DBFileName is the bbolt database file under the cache directory.
const DBFileName = "buildcache.bin"

// StoreDirName is the content-addressed store directory under the cache
// directory.
const StoreDirName = "store"

// Manager owns the build cache database and its side store. A Manager is
// safe for concurrent use; bbolt serializes writers internally.
type Manager struct {
	db    *bolt.DB
	store *Store
	dir   string

	fullRebuild bool
	reason      string
}

// Open opens or creates the build cache under dir (typically
// <root>/.bengal/cache). Schema mismatches and missing identity reset the
// cache and mark the manager as requiring a full build.
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, DBFileName), 0o600, &bolt.Options{
		Timeout:         10 * time.Second,
		FreelistType:    bolt.FreelistArrayType,
		PageSize:        16 * 1024,
		InitialMmapSize: 10 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	store, err := NewStore(filepath.Join(dir, StoreDirName))
	if err != nil {
		db.Close()
		return nil, err
	}

	m := &Manager{db: db, store: store, dir: dir}
	if err := m.initSchema(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the database and store. Safe to call more than once.
func (m *Manager) Close() error {
	if m.store != nil {
		m.store.Close()
		m.store = nil
	}
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// Store exposes the content-addressed side store.
func (m *Manager) Store() *Store { return m.store }

// Dir returns the cache directory the manager was opened on.
func (m *Manager) Dir() string { return m.dir }

// NeedsFullBuild reports whether cache state forced a full build, with the
// reason when it did.
func (m *Manager) NeedsFullBuild() (bool, string) {
	return m.fullRebuild, m.reason
}

// MarkFullBuild records that the caller decided on a full build (for
// example after a config hash change) so downstream phases agree.
func (m *Manager) MarkFullBuild(reason string) {
	if !m.fullRebuild {
		m.fullRebuild = true
		m.reason = reason
	}
}

func (m *Manager) initSchema() error {
	var resetStore bool
	err := m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets() {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(BucketMeta))

		raw := meta.Get([]byte(KeySchemaVersion))
		switch {
		case raw == nil:
			m.fullRebuild = true
			m.reason = "new cache"
		case len(raw) != 4 || binary.BigEndian.Uint32(raw) != SchemaVersion:
			if err := resetBuckets(tx); err != nil {
				return err
			}
			meta = tx.Bucket([]byte(BucketMeta))
			resetStore = true
			m.fullRebuild = true
			m.reason = "cache schema changed"
		}

		version := make([]byte, 4)
		binary.BigEndian.PutUint32(version, SchemaVersion)
		if err := meta.Put([]byte(KeySchemaVersion), version); err != nil {
			return fmt.Errorf("writing schema version: %w", err)
		}

		if meta.Get([]byte(KeyCacheID)) == nil {
			if err := meta.Put([]byte(KeyCacheID), []byte(uuid.NewString())); err != nil {
				return fmt.Errorf("writing cache id: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("initializing cache schema: %w", err)
	}
	if resetStore {
		if err := m.store.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func resetBuckets(tx *bolt.Tx) error {
	for _, name := range AllBuckets() {
		if err := tx.DeleteBucket([]byte(name)); err != nil {
			return fmt.Errorf("dropping bucket %s: %w", name, err)
		}
		if _, err := tx.CreateBucket([]byte(name)); err != nil {
			return fmt.Errorf("recreating bucket %s: %w", name, err)
		}
	}
	return nil
}

// CacheID returns the stable identity written when the cache was created.
func (m *Manager) CacheID() (string, error) {
	v, err := m.metaGet(KeyCacheID)
	return string(v), err
}

// ConfigHash returns the config hash recorded by the last completed build,
// or "" if none.
func (m *Manager) ConfigHash() (string, error) {
	v, err := m.metaGet(KeyConfigHash)
	return string(v), err
}

// SetConfigHash records the active config hash.
func (m *Manager) SetConfigHash(hash string) error {
	return m.metaPut(KeyConfigHash, []byte(hash))
}

// NavSignature returns the menu structure signature recorded by the last
// completed build, or "" if none.
func (m *Manager) NavSignature() (string, error) {
	v, err := m.metaGet(KeyNavSignature)
	return string(v), err
}

// SetNavSignature records the active menu structure signature.
func (m *Manager) SetNavSignature(sig string) error {
	return m.metaPut(KeyNavSignature, []byte(sig))
}

// LastBuildID returns the UUID of the most recent committed build, or "".
func (m *Manager) LastBuildID() (string, error) {
	v, err := m.metaGet(KeyLastBuildID)
	return string(v), err
}

// BuildCount returns how many builds have committed into this cache.
func (m *Manager) BuildCount() (uint64, error) {
	v, err := m.metaGet(KeyBuildCount)
	if err != nil || len(v) != 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func (m *Manager) metaGet(key string) ([]byte, error) {
	var out []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(BucketMeta)).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading meta %s: %w", key, err)
	}
	return out, nil
}

func (m *Manager) metaPut(key string, value []byte) error {
	err := m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketMeta)).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("writing meta %s: %w", key, err)
	}
	return nil
}

// Reset drops every record and store object, keeping the database file and
// cache identity. Used by `bengal clean --cache` and schema migrations.
func (m *Manager) Reset() error {
	err := m.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(BucketMeta))
		id := append([]byte(nil), meta.Get([]byte(KeyCacheID))...)

		if err := resetBuckets(tx); err != nil {
			return err
		}

		meta = tx.Bucket([]byte(BucketMeta))
		version := make([]byte, 4)
		binary.BigEndian.PutUint32(version, SchemaVersion)
		if err := meta.Put([]byte(KeySchemaVersion), version); err != nil {
			return err
		}
		if len(id) > 0 {
			if err := meta.Put([]byte(KeyCacheID), id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("resetting cache: %w", err)
	}
	m.fullRebuild = true
	m.reason = "cache reset"
	return m.store.Reset()
}

// Stats collects record counts across buckets and the store.
func (m *Manager) Stats() (Stats, error) {
	var st Stats
	err := m.db.View(func(tx *bolt.Tx) error {
		st.Pages = tx.Bucket([]byte(BucketPages)).Stats().KeyN
		st.Fingerprints = tx.Bucket([]byte(BucketFingerprints)).Stats().KeyN
		st.Outputs = tx.Bucket([]byte(BucketOutputs)).Stats().KeyN
		st.Assets = tx.Bucket([]byte(BucketAssets)).Stats().KeyN
		st.Events = tx.Bucket([]byte(BucketEvents)).Stats().KeyN
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	objects, bytes, err := m.store.Size()
	if err != nil {
		return Stats{}, err
	}
	st.StoreObjects = objects
	st.StoreBytes = bytes
	return st, nil
}
