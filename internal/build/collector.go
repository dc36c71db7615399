package build

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/bengal-ssg/bengal/internal/cache"
)

// OutputKind classifies a written file for the reload decision.
type OutputKind string

const (
	KindHTML  OutputKind = "html"
	KindCSS   OutputKind = "css"
	KindJS    OutputKind = "js"
	KindAsset OutputKind = "asset"
	KindOther OutputKind = "other"
)

// OutputRecord is one file the build wrote: output-relative path, kind,
// content hash, and size.
type OutputRecord struct {
	Path string     `json:"path"`
	Kind OutputKind `json:"kind"`
	Hash string     `json:"hash"`
	Size int64      `json:"size"`
}

// Collector writes build outputs beneath one directory and records every
// write. Writes are atomic: a temp file in the destination directory is
// renamed into place, so readers of the output tree never see a partial
// file. Records append under a mutex; reads of the record list are only
// valid after the phases that write have completed.
type Collector struct {
	fs  afero.Fs
	dir string

	mu   sync.Mutex
	tmpN int
	recs []OutputRecord
	idx  map[string]int // rel path -> recs index, last write wins
}

// NewCollector creates a collector rooted at dir on the given filesystem.
func NewCollector(fs afero.Fs, dir string) *Collector {
	return &Collector{
		fs:  fs,
		dir: dir,
		idx: make(map[string]int),
	}
}

// Dir returns the output root the collector writes beneath.
func (c *Collector) Dir() string { return c.dir }

// Write stores data at the output-relative path rel. The parent directory
// is created as needed.
func (c *Collector) Write(rel string, data []byte) error {
	rel, err := cleanOutputPath(rel)
	if err != nil {
		return err
	}
	dest := filepath.Join(c.dir, filepath.FromSlash(rel))

	if err := c.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	c.mu.Lock()
	c.tmpN++
	tmp := fmt.Sprintf("%s.tmp%d", dest, c.tmpN)
	c.mu.Unlock()

	if err := afero.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := c.fs.Rename(tmp, dest); err != nil {
		c.fs.Remove(tmp)
		return fmt.Errorf("writing %s: %w", rel, err)
	}

	rec := OutputRecord{
		Path: rel,
		Kind: KindFor(rel),
		Hash: cache.HashContent(data),
		Size: int64(len(data)),
	}
	c.mu.Lock()
	if i, ok := c.idx[rel]; ok {
		c.recs[i] = rec
	} else {
		c.idx[rel] = len(c.recs)
		c.recs = append(c.recs, rec)
	}
	c.mu.Unlock()
	return nil
}

// WriteIfChanged writes data only when the file is absent or its content
// differs. Regenerated site-wide artifacts (sitemap, feeds, redirects) go
// through here so an unchanged rebuild records no writes and the reload
// decision stays "none".
func (c *Collector) WriteIfChanged(rel string, data []byte) (bool, error) {
	cleaned, err := cleanOutputPath(rel)
	if err != nil {
		return false, err
	}
	existing, err := afero.ReadFile(c.fs, filepath.Join(c.dir, filepath.FromSlash(cleaned)))
	if err == nil && cache.HashContent(existing) == cache.HashContent(data) {
		return false, nil
	}
	return true, c.Write(cleaned, data)
}

// Written reports whether this build already wrote the given path.
func (c *Collector) Written(rel string) bool {
	rel, err := cleanOutputPath(rel)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.idx[rel]
	return ok
}

// Exists reports whether a file is already present at the output-relative
// path, whether written by this build or left over from a previous one.
func (c *Collector) Exists(rel string) bool {
	rel, err := cleanOutputPath(rel)
	if err != nil {
		return false
	}
	ok, err := afero.Exists(c.fs, filepath.Join(c.dir, filepath.FromSlash(rel)))
	return err == nil && ok
}

// Remove deletes an output file if present. Used to clear outputs whose
// source pages disappeared.
func (c *Collector) Remove(rel string) error {
	rel, err := cleanOutputPath(rel)
	if err != nil {
		return err
	}
	err = c.fs.Remove(filepath.Join(c.dir, filepath.FromSlash(rel)))
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// Records returns what the build wrote, in path order.
func (c *Collector) Records() []OutputRecord {
	c.mu.Lock()
	out := make([]OutputRecord, len(c.recs))
	copy(out, c.recs)
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Snapshot returns the written set as a path -> content hash map.
func (c *Collector) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[string]string, len(c.recs))
	for _, r := range c.recs {
		snap[r.Path] = r.Hash
	}
	return snap
}

// Count returns how many distinct paths were written.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

// Bytes returns the total size of all written files.
func (c *Collector) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, r := range c.recs {
		n += r.Size
	}
	return n
}

// KindFor classifies an output path by extension.
func KindFor(rel string) OutputKind {
	switch strings.ToLower(path.Ext(rel)) {
	case ".html", ".htm":
		return KindHTML
	case ".css":
		return KindCSS
	case ".js", ".mjs":
		return KindJS
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
		".woff", ".woff2", ".ttf", ".otf", ".eot",
		".mp4", ".webm", ".mp3", ".pdf":
		return KindAsset
	default:
		return KindOther
	}
}

// cleanOutputPath normalizes a write path and rejects anything that would
// escape the output directory.
func cleanOutputPath(rel string) (string, error) {
	rel = path.Clean(strings.TrimPrefix(filepath.ToSlash(rel), "/"))
	if rel == "." || rel == "" {
		return "", fmt.Errorf("empty output path")
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("output path escapes output directory: %s", rel)
	}
	return rel, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
