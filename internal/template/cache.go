package template

import (
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// BundleFile is the template source bundle under the cache directory.
const BundleFile = "templates.bin"

// bundleEntry captures one disk template's identity and text. Size and mtime
// validate freshness without reading the file back.
type bundleEntry struct {
	Name  string `msgpack:"name"`
	Path  string `msgpack:"path"`
	Size  int64  `msgpack:"size"`
	MTime int64  `msgpack:"mtime"`
	Body  string `msgpack:"body"`
}

// loadBundle returns the cached disk-layer sources when the bundle covers
// exactly the current file set and every file's size and mtime still match.
// Any mismatch or decode problem falls back to reading the files.
func loadBundle(cacheDir string, paths map[string]string) (map[string]*source, bool) {
	if cacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(cacheDir, BundleFile))
	if err != nil {
		return nil, false
	}
	var entries []bundleEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	if len(entries) != len(paths) {
		return nil, false
	}

	out := make(map[string]*source, len(entries))
	for _, ent := range entries {
		if paths[ent.Name] != ent.Path {
			return nil, false
		}
		st, err := os.Stat(ent.Path)
		if err != nil || st.Size() != ent.Size || st.ModTime().UnixNano() != ent.MTime {
			return nil, false
		}
		out[ent.Name] = &source{name: ent.Name, path: ent.Path, body: ent.Body}
	}
	return out, true
}

// writeBundle persists the disk-layer sources. Best effort: a bundle that
// cannot be written only costs the next build its read savings.
func writeBundle(cacheDir string, files map[string]*source) {
	entries := make([]bundleEntry, 0, len(files))
	for _, name := range sortedNames(files) {
		src := files[name]
		st, err := os.Stat(src.path)
		if err != nil {
			return
		}
		entries = append(entries, bundleEntry{
			Name:  src.name,
			Path:  src.path,
			Size:  st.Size(),
			MTime: st.ModTime().UnixNano(),
			Body:  src.body,
		})
	}
	data, err := msgpack.Marshal(entries)
	if err != nil {
		return
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return
	}
	tmp := filepath.Join(cacheDir, BundleFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, filepath.Join(cacheDir, BundleFile))
}
