package incremental

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/bengal-ssg/bengal/internal/cache"
)

// FingerprintFile stats and hashes one source file.
func FingerprintFile(path string) (cache.Fingerprint, error) {
	st, err := os.Stat(path)
	if err != nil {
		return cache.Fingerprint{}, fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	hash, err := hashFile(path)
	if err != nil {
		return cache.Fingerprint{}, err
	}
	return cache.Fingerprint{
		Size:  st.Size(),
		MTime: st.ModTime().UnixNano(),
		Hash:  hash,
	}, nil
}

// FingerprintBytes fingerprints in-memory content. MTime is left zero.
func FingerprintBytes(data []byte) cache.Fingerprint {
	return cache.Fingerprint{
		Size: int64(len(data)),
		Hash: cache.HashContent(data),
	}
}

// FingerprintChanged compares a file against its cached fingerprint. A
// matching size and mtime short-circuits without hashing; when they differ
// the content hash is authoritative, so a touched-but-identical file reports
// unchanged (with a refreshed fingerprint).
func FingerprintChanged(path string, cached cache.Fingerprint) (bool, cache.Fingerprint, error) {
	st, err := os.Stat(path)
	if err != nil {
		return false, cache.Fingerprint{}, fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	if st.Size() == cached.Size && st.ModTime().UnixNano() == cached.MTime && cached.Hash != "" {
		return false, cached, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return false, cache.Fingerprint{}, err
	}
	fp := cache.Fingerprint{
		Size:  st.Size(),
		MTime: st.ModTime().UnixNano(),
		Hash:  hash,
	}
	return hash != cached.Hash, fp, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
