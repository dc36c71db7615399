package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compression tiers. Tiny blobs aren't worth compressing; mid-size blobs get
// the fast encoder; only large blobs pay for the default level.
const (
	rawThreshold  = 8 * 1024
	fastZstdMax   = 128 * 1024
	rawExtension  = ".raw"
	zstdExtension = ".zst"
)

// Store is a content-addressed blob store for rendered HTML that exceeds the
// inline threshold. Objects are keyed by blake3 hex and sharded two levels
// deep to keep directories small.
type Store struct {
	root    string
	encFast *zstd.Encoder
	encFull *zstd.Encoder
	dec     *zstd.Decoder
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	encFast, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd fast encoder: %w", err)
	}
	encFull, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Store{root: dir, encFast: encFast, encFull: encFull, dec: dec}, nil
}

// Close releases the codec resources.
func (s *Store) Close() {
	s.encFast.Close()
	s.encFull.Close()
	s.dec.Close()
}

func (s *Store) shardPath(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(s.root, hash)
	}
	return filepath.Join(s.root, hash[0:2], hash[2:4], hash)
}

func (s *Store) encode(data []byte) ([]byte, string) {
	switch {
	case len(data) < rawThreshold:
		return data, rawExtension
	case len(data) < fastZstdMax:
		return s.encFast.EncodeAll(data, nil), zstdExtension
	default:
		return s.encFull.EncodeAll(data, nil), zstdExtension
	}
}

// Put stores data under its blake3 hash and returns the hash. Writing is
// atomic: a temp file in the final directory is fsynced then renamed.
// Existing objects are not rewritten.
func (s *Store) Put(data []byte) (string, error) {
	hash := HashContent(data)
	base := s.shardPath(hash)
	if s.existsAt(base) {
		return hash, nil
	}

	encoded, ext := s.encode(data)
	dir := filepath.Dir(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "put-*")
	if err != nil {
		return "", fmt.Errorf("creating temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing object %s: %w", hash, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("syncing object %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing object %s: %w", hash, err)
	}
	if err := os.Rename(tmpName, base+ext); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("committing object %s: %w", hash, err)
	}
	return hash, nil
}

// Get returns the decoded object for hash, or fs.ErrNotExist.
func (s *Store) Get(hash string) ([]byte, error) {
	base := s.shardPath(hash)

	if data, err := os.ReadFile(base + rawExtension); err == nil {
		return data, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading object %s: %w", hash, err)
	}

	compressed, err := os.ReadFile(base + zstdExtension)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", hash, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("reading object %s: %w", hash, err)
	}
	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing object %s: %w", hash, err)
	}
	return data, nil
}

// Exists reports whether an object with the given hash is stored.
func (s *Store) Exists(hash string) bool {
	return s.existsAt(s.shardPath(hash))
}

func (s *Store) existsAt(base string) bool {
	for _, ext := range []string{rawExtension, zstdExtension} {
		if _, err := os.Stat(base + ext); err == nil {
			return true
		}
	}
	return false
}

// Delete removes the object if present. Missing objects are not an error.
func (s *Store) Delete(hash string) error {
	base := s.shardPath(hash)
	for _, ext := range []string{rawExtension, zstdExtension} {
		if err := os.Remove(base + ext); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting object %s: %w", hash, err)
		}
	}
	return nil
}

// ListHashes walks the store and returns every stored object hash.
func (s *Store) ListHashes() ([]string, error) {
	var hashes []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := d.Name()
		ext := filepath.Ext(name)
		if ext != rawExtension && ext != zstdExtension {
			return nil
		}
		hashes = append(hashes, strings.TrimSuffix(name, ext))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing store: %w", err)
	}
	return hashes, nil
}

// Size returns the object count and total on-disk bytes.
func (s *Store) Size() (int, int64, error) {
	var count int
	var bytes int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(d.Name())
		if ext != rawExtension && ext != zstdExtension {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("sizing store: %w", err)
	}
	return count, bytes, nil
}

// Reset removes every object, leaving an empty store.
func (s *Store) Reset() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("resetting store: %w", err)
		}
	}
	return nil
}
