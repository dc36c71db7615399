package incremental

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
)

// Op is the filesystem event kind attached to a change.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// ChangeKind is the source area a changed path belongs to.
type ChangeKind string

const (
	KindContent  ChangeKind = "content"
	KindTemplate ChangeKind = "template"
	KindData     ChangeKind = "data"
	KindAsset    ChangeKind = "asset"
	KindConfig   ChangeKind = "config"
	KindOther    ChangeKind = "other"
)

// Change is one classified source change. Path is root-relative with slash
// separators. Old and New carry fingerprints when the scanner produced the
// change; watcher-driven changes leave them zero.
type Change struct {
	Path string
	Op   Op
	Kind ChangeKind
	Old  cache.Fingerprint
	New  cache.Fingerprint
}

// Structural reports whether the change added, removed, or moved a file
// rather than editing it in place.
func (c Change) Structural() bool {
	return c.Op == OpCreate || c.Op == OpRemove || c.Op == OpRename
}

// Classifier maps changed paths to their source area and normalizes them to
// the keys the dependency graph uses.
type Classifier struct {
	cfg            *config.Config
	contentDir     string
	templatesDir   string
	themeTemplates string
	dataDir        string
	assetsDir      string
	generatedDir   string
	watchPaths     []string
}

// NewClassifier builds a classifier from the site configuration.
func NewClassifier(cfg *config.Config) *Classifier {
	return &Classifier{
		cfg:            cfg,
		contentDir:     filepath.ToSlash(cfg.Content.Dir),
		templatesDir:   "templates",
		themeTemplates: path.Join(filepath.ToSlash(cfg.Theme.Dir), cfg.Theme.Name, "templates"),
		dataDir:        "data",
		assetsDir:      filepath.ToSlash(cfg.Assets.Dir),
		generatedDir:   ".bengal/generated",
		watchPaths:     cfg.Content.WatchPaths,
	}
}

// Classify returns the source area for a root-relative path.
func (c *Classifier) Classify(rel string) ChangeKind {
	rel = filepath.ToSlash(rel)
	switch {
	case isConfigFile(rel):
		return KindConfig
	case under(rel, c.contentDir), under(rel, c.generatedDir):
		return KindContent
	case under(rel, c.templatesDir), under(rel, c.themeTemplates):
		return KindTemplate
	case under(rel, c.dataDir):
		return KindData
	case under(rel, c.assetsDir):
		return KindAsset
	}
	for _, wp := range c.watchPaths {
		if under(rel, filepath.ToSlash(wp)) {
			return KindContent
		}
	}
	return KindOther
}

// Rel converts an absolute path to the root-relative slash form used
// throughout the cache.
func (c *Classifier) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(c.cfg.RootPath, abs)
	if err != nil {
		return "", fmt.Errorf("relativizing %s: %w", abs, err)
	}
	return filepath.ToSlash(rel), nil
}

// TemplateName strips the templates root from a template path, yielding the
// name templates are resolved and recorded by.
func (c *Classifier) TemplateName(rel string) string {
	rel = filepath.ToSlash(rel)
	if name, ok := trimDir(rel, c.templatesDir); ok {
		return name
	}
	if name, ok := trimDir(rel, c.themeTemplates); ok {
		return name
	}
	return rel
}

// AssetKey strips the assets root, yielding the key asset_url records.
func (c *Classifier) AssetKey(rel string) string {
	rel = filepath.ToSlash(rel)
	if key, ok := trimDir(rel, c.assetsDir); ok {
		return key
	}
	return rel
}

// ContentKey strips the content root, yielding the canonical page key for a
// content source path. Generated sources map to their autodoc keys.
func (c *Classifier) ContentKey(rel string) string {
	rel = filepath.ToSlash(rel)
	if key, ok := trimDir(rel, c.contentDir); ok {
		return key
	}
	if key, ok := trimDir(rel, c.generatedDir); ok {
		return content.AutodocPrefix + key
	}
	return rel
}

// SectionStructural reports whether a content change alters the section
// tree: creation, removal, or move of a section index or a directory.
func (c *Classifier) SectionStructural(ch Change) bool {
	if ch.Kind != KindContent || !ch.Structural() {
		return false
	}
	base := path.Base(ch.Path)
	if strings.HasPrefix(base, "_index.") {
		return true
	}
	// A path with no extension is a directory event.
	return path.Ext(base) == ""
}

func isConfigFile(rel string) bool {
	switch rel {
	case "bengal.yaml", "bengal.yml", "bengal.toml", "bengal.json":
		return true
	}
	return false
}

func under(rel, dir string) bool {
	if dir == "" || dir == "." {
		return false
	}
	return rel == dir || strings.HasPrefix(rel, dir+"/")
}

func trimDir(rel, dir string) (string, bool) {
	if strings.HasPrefix(rel, dir+"/") {
		return rel[len(dir)+1:], true
	}
	return "", false
}

// NavDigest hashes the navigation-affecting state of a page (title, menu,
// weight, date, draft, slug). Neighbors and menus re-render when it changes.
func NavDigest(p *content.Page) string {
	h := blake3.New()
	fmt.Fprintf(h, "title=%s\n", p.Title)
	fmt.Fprintf(h, "weight=%d\n", p.Weight)
	fmt.Fprintf(h, "date=%s\n", p.Date.UTC().Format(time.RFC3339))
	fmt.Fprintf(h, "draft=%t\n", p.Draft)
	fmt.Fprintf(h, "slug=%s\n", p.Slug)
	if menu, ok := p.Metadata["menu"]; ok {
		fmt.Fprintf(h, "menu=%s\n", canonical(menu))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CascadeDigest hashes a page's cascade block; empty when none is declared.
func CascadeDigest(p *content.Page) string {
	cascade, ok := p.Metadata["cascade"]
	if !ok {
		return ""
	}
	sum := blake3.Sum256([]byte(canonical(cascade)))
	return hex.EncodeToString(sum[:])
}

// BodyHash hashes the raw markdown body, ignoring frontmatter.
func BodyHash(p *content.Page) string {
	return cache.HashContent([]byte(p.RawContent))
}

// canonical renders a metadata value deterministically. JSON sorts map keys,
// which yaml marshaling does not guarantee.
func canonical(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
