// Package xref exports and consumes cross-project reference indexes.
//
// A site with autodoc.export_xref enabled writes xref.json listing its
// addressable pages. Other sites list that file under autodoc.xref_sources
// and gain [[...]] and ref/relref resolution into it. The generated
// timestamp derives from the newest page date rather than the clock, so
// rebuilding an unchanged site reproduces the same bytes.
package xref

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bengal-ssg/bengal/internal/content"
	tmpl "github.com/bengal-ssg/bengal/internal/template"
)

// Version is the only index format this build reads and writes.
const Version = "1"

// Entry describes one addressable item in a project.
type Entry struct {
	Type  string `json:"type"`
	Path  string `json:"path"`
	Title string `json:"title"`
}

// Index is the on-disk xref.json document.
type Index struct {
	Version   string           `json:"version"`
	Project   string           `json:"project"`
	BaseURL   string           `json:"baseurl"`
	Generated string           `json:"generated"`
	Entries   map[string]Entry `json:"entries"`
}

// Export builds the xref.json body for a site. Entries are keyed by the
// canonical source key without its extension. Taxonomy and pagination pages
// are not addressable from other projects and are skipped; extractor output
// is included with type "autodoc". When versioning is enabled the current
// version prefixes every entry path, so consumers link into the right
// release of the docs.
func Export(site *content.Site) ([]byte, error) {
	cfg := site.Config

	prefix := ""
	if cfg.Versioning.Enabled && cfg.Versioning.Current != "" {
		prefix = "/" + strings.Trim(cfg.Versioning.Current, "/")
	}

	newest := time.Unix(0, 0).UTC()
	entries := make(map[string]Entry, len(site.Pages))
	for _, p := range site.Pages {
		if p.Generated && !p.Autodoc {
			continue
		}

		typ := string(p.Kind)
		if p.Autodoc {
			typ = "autodoc"
		}
		name := strings.TrimSuffix(p.Key, ".md")
		entries[name] = Entry{
			Type:  typ,
			Path:  prefix + p.URL,
			Title: p.Title,
		}

		if !p.Date.IsZero() && p.Date.After(newest) {
			newest = p.Date.UTC()
		}
		if !p.Lastmod.IsZero() && p.Lastmod.After(newest) {
			newest = p.Lastmod.UTC()
		}
	}

	ix := Index{
		Version:   Version,
		Project:   cfg.Site.Title,
		BaseURL:   cfg.Site.BaseURL,
		Generated: newest.Format(time.RFC3339),
		Entries:   entries,
	}

	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling xref index: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads an exported index from disk. Indexes written by a newer format
// are refused rather than misread.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading xref index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("parsing xref index %s: %w", path, err)
	}
	if ix.Version != Version {
		return nil, fmt.Errorf("xref index %s: unsupported version %q", path, ix.Version)
	}
	return &ix, nil
}

// Resolver adapts the index for the template engine. Targets match entry
// names first, then titles case-insensitively (unique titles only).
// Resolved URLs are absolute into the foreign project; the page key is
// empty because the target is not a page of this site.
func (ix *Index) Resolver() tmpl.RefResolver {
	var (
		once    sync.Once
		byName  map[string]*Entry
		byTitle map[string]*Entry
	)

	index := func() {
		byName = make(map[string]*Entry, len(ix.Entries))
		byTitle = make(map[string]*Entry, len(ix.Entries))
		for name, e := range ix.Entries {
			byName[strings.Trim(name, "/")] = &e

			title := strings.ToLower(e.Title)
			if title == "" {
				continue
			}
			if _, dup := byTitle[title]; dup {
				byTitle[title] = nil // ambiguous, disable title lookup
			} else {
				byTitle[title] = &e
			}
		}
	}

	base := strings.TrimRight(ix.BaseURL, "/")

	return func(target string) (string, string, bool) {
		once.Do(index)

		cleaned := strings.Trim(strings.TrimSpace(target), "/")
		e := byName[cleaned]
		if e == nil {
			e = byTitle[strings.ToLower(strings.TrimSpace(target))]
		}
		if e == nil {
			return "", "", false
		}
		return base + e.Path, "", true
	}
}
