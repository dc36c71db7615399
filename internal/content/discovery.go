package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
)

// datePrefixRe matches a leading YYYY-MM-DD- date prefix in a filename.
var datePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-`)

// slugifyRe removes characters that are not alphanumeric, hyphens, or periods.
var slugifyRe = regexp.MustCompile(`[^a-z0-9\-.]`)

// multiHyphenRe collapses multiple consecutive hyphens into one.
var multiHyphenRe = regexp.MustCompile(`-{2,}`)

// VirtualPrefix namespaces canonical keys of pages that have no source file.
const VirtualPrefix = "_virtual/"

// AutodocPrefix namespaces canonical keys of extractor-generated pages.
const AutodocPrefix = "_autodoc/"

// DiscoveryResult is everything the discovery phase produced: the pages, the
// section tree they were attached to, the assets, and any recoverable
// warnings (malformed frontmatter admits the file without metadata).
type DiscoveryResult struct {
	Pages    []*Page
	Root     *Section
	Assets   []*Asset
	Warnings []*diagnostics.Diagnostic
}

// Discover walks the configured content tree and builds pages, the section
// tree, and the asset list. Files matched by the include patterns with a
// recognised extension become pages; `_index.md` files become section index
// pages (the root one is the home page); everything else inside the content
// and assets directories becomes an Asset.
//
// Discovery does not render markdown and does not filter drafts; both happen
// in later phases.
func Discover(cfg *config.Config) (*DiscoveryResult, error) {
	result := &DiscoveryResult{
		Root: &Section{Title: cfg.Site.Title},
	}

	if err := discoverContent(cfg, cfg.ContentPath(), "", result); err != nil {
		return nil, err
	}

	// Extractor output is a second content root; its pages carry the
	// generated and autodoc flags and virtual-prefixed keys.
	genDir := cfg.GeneratedPath()
	if _, err := os.Stat(genDir); err == nil {
		if err := discoverContent(cfg, genDir, AutodocPrefix, result); err != nil {
			return nil, err
		}
	}

	assets, err := discoverAssets(cfg)
	if err != nil {
		return nil, err
	}
	result.Assets = assets

	return result, nil
}

// discoverContent walks one content root. keyPrefix is empty for the primary
// tree and AutodocPrefix for extractor output.
func discoverContent(cfg *config.Config, root, keyPrefix string, result *DiscoveryResult) error {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		if keyPrefix != "" {
			return nil
		}
		return diagnostics.Newf(diagnostics.DiscoveryError, "content directory does not exist").
			WithPath(root).
			WithHint("create it, or set content.dir")
	}

	// First pass: directories holding an index.md are page bundles; their
	// other files are page resources, not standalone pages.
	bundleDirs := make(map[string]bool)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Base(p) == "index.md" && filepath.Dir(p) != root {
			bundleDirs[filepath.Dir(p)] = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning for page bundles: %w", err)
	}

	// Second pass: discover pages and content-tree assets.
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", p, err)
		}
		relPath = filepath.ToSlash(relPath)

		if !isContentFile(relPath, cfg) {
			// Non-content files ride along as assets at their relative
			// location (bundle images, downloads).
			if keyPrefix == "" {
				result.Assets = append(result.Assets, &Asset{
					SourcePath: p,
					Key:        relPath,
					Type:       AssetTypeFor(relPath),
				})
			}
			return nil
		}

		// Skip .md files in bundle directories that are not the index.md
		// itself; they are resources of the bundle page.
		dir := filepath.Dir(p)
		if bundleDirs[dir] && filepath.Base(p) != "index.md" {
			return nil
		}

		page, warn, err := loadPage(p, relPath, keyPrefix, bundleDirs[dir])
		if err != nil {
			return err
		}
		if warn != nil {
			result.Warnings = append(result.Warnings, warn)
		}

		attachToTree(result.Root, page)
		result.Pages = append(result.Pages, page)
		return nil
	})
	if err != nil {
		var diag *diagnostics.Diagnostic
		if errors.As(err, &diag) {
			return diag
		}
		return diagnostics.Newf(diagnostics.DiscoveryError, "walking content tree: %v", err).WithPath(root)
	}

	return nil
}

// loadPage reads one content file into a Page. Malformed frontmatter is
// recoverable: the page is admitted without metadata and a warning returned.
func loadPage(absPath, relPath, keyPrefix string, inBundle bool) (*Page, *diagnostics.Diagnostic, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, nil, diagnostics.Newf(diagnostics.DiscoveryError, "reading content file: %v", err).
			WithPath(absPath)
	}

	var warn *diagnostics.Diagnostic
	metadata, body, err := ParseFrontmatter(raw)
	if err != nil {
		warn = diagnostics.Newf(diagnostics.DiscoveryError, "malformed frontmatter: %v", err).
			WithPath(absPath).
			WithHint("the file was admitted without metadata")
		metadata, body = nil, raw
	}

	page := &Page{
		SourcePath: absPath,
		Key:        keyPrefix + relPath,
	}
	if keyPrefix == AutodocPrefix {
		page.Generated = true
		page.Autodoc = true
	}

	if metadata != nil {
		if err := PopulatePage(page, metadata); err != nil {
			// Typed extraction failures are recoverable the same way.
			warn = diagnostics.Newf(diagnostics.DiscoveryError, "invalid frontmatter: %v", err).
				WithPath(absPath)
		}
	}
	page.RawContent = string(body)

	dir := path.Dir(relPath)
	if dir == "." {
		dir = ""
	}
	filename := path.Base(relPath)
	stem := strings.TrimSuffix(strings.TrimSuffix(filename, ".md"), ".html")

	switch {
	case dir == "" && (stem == "_index" || stem == "index"):
		page.Kind = KindHome
	case stem == "_index":
		page.Kind = KindSection
	default:
		page.Kind = KindPage
	}

	// Bundle pages live at their directory's URL.
	bundleName := ""
	if inBundle && filename == "index.md" && dir != "" {
		bundleName = path.Base(dir)
	}

	if page.Slug == "" && page.Kind == KindPage {
		name := strings.TrimSuffix(filename, ".md")
		name = strings.TrimSuffix(name, ".html")
		if bundleName != "" {
			name = bundleName
		}
		name = datePrefixRe.ReplaceAllString(name, "")
		page.Slug = Slugify(name)
	}
	if page.Title == "" {
		switch page.Kind {
		case KindHome:
			page.Title = "Home"
		case KindSection:
			page.Title = titleFromName(path.Base(dir))
		default:
			page.Title = titleFromName(page.Slug)
		}
	}

	page.URL = buildURL(page, dir, bundleName)
	page.WordCount = WordCount(page.RawContent)
	page.ReadingTime = ReadingTime(page.RawContent)

	return page, warn, nil
}

// attachToTree inserts the page into the section tree, creating intermediate
// sections as needed. Index pages become their section's index; the cascade
// block on an index page becomes the section's cascade.
func attachToTree(root *Section, page *Page) {
	dir := path.Dir(strings.TrimPrefix(page.Key, AutodocPrefix))
	if dir == "." {
		dir = ""
	}

	section := root
	if page.Kind == KindHome {
		// Root index.
	} else {
		segments := splitPath(dir)
		// Bundle index pages belong to the bundle's parent section.
		if page.Kind == KindPage && path.Base(page.SourcePath) == "index.md" && len(segments) > 0 {
			segments = segments[:len(segments)-1]
		}
		for _, seg := range segments {
			section = section.ensureChild(seg)
		}
	}

	switch page.Kind {
	case KindHome:
		// If both index.md and _index.md exist at the root, the first in
		// walk order wins.
		if root.IndexPage == nil {
			root.IndexPage = page
			if root.Title == "" {
				root.Title = page.Title
			}
			adoptCascade(root, page)
		} else {
			page.Kind = KindPage
			if page.Slug == "" {
				page.Slug = Slugify(strings.TrimSuffix(path.Base(page.Key), path.Ext(page.Key)))
			}
			page.URL = "/" + page.Slug + "/"
			root.Pages = append(root.Pages, page)
		}
	case KindSection:
		section.IndexPage = page
		section.Title = page.Title
		adoptCascade(section, page)
	default:
		section.Pages = append(section.Pages, page)
	}
	page.section = section
}

// adoptCascade lifts a `cascade` frontmatter block onto the section.
func adoptCascade(s *Section, page *Page) {
	v, ok := page.Metadata["cascade"]
	if !ok {
		return
	}
	if m, ok := toStringMap(v); ok {
		s.Cascade = m
	}
}

// isContentFile reports whether a content-relative path should become a
// page, honoring the configured include and exclude patterns.
func isContentFile(relPath string, cfg *config.Config) bool {
	ext := path.Ext(relPath)
	if ext != ".md" && ext != ".html" {
		return false
	}

	include := cfg.Content.IncludePatterns
	if len(include) == 0 {
		include = []string{"**/*.md", "**/*.html"}
	}
	matched := false
	for _, pat := range include {
		if ok, err := doublestar.Match(pat, relPath); err == nil && ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, pat := range cfg.Content.ExcludePatterns {
		if ok, err := doublestar.Match(pat, relPath); err == nil && ok {
			return false
		}
	}
	return true
}

// discoverAssets walks the assets directory.
func discoverAssets(cfg *config.Config) ([]*Asset, error) {
	assetsDir := cfg.AssetsPath()
	if _, err := os.Stat(assetsDir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var assets []*Asset
	err := filepath.WalkDir(assetsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(assetsDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		assets = append(assets, &Asset{
			SourcePath: p,
			Key:        rel,
			Type:       AssetTypeFor(rel),
		})
		return nil
	})
	if err != nil {
		return nil, diagnostics.Newf(diagnostics.DiscoveryError, "walking assets directory: %v", err).
			WithPath(assetsDir)
	}
	return assets, nil
}

// Slugify converts a name into a URL-safe slug.
// It lowercases, replaces spaces and underscores with hyphens, removes
// non-alphanumeric characters (except hyphens and periods), collapses
// multiple hyphens, and trims leading/trailing hyphens.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = slugifyRe.ReplaceAllString(s, "")
	s = multiHyphenRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}

// splitPath splits a slash-separated relative path into its segments.
func splitPath(p string) []string {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// buildURL generates the relative URL for a discovered page.
func buildURL(p *Page, dir, bundleName string) string {
	switch p.Kind {
	case KindHome:
		return "/"
	case KindSection:
		return "/" + dir + "/"
	default:
		if bundleName != "" {
			parent := path.Dir(dir)
			if parent == "." || parent == "" {
				return "/" + p.Slug + "/"
			}
			return "/" + parent + "/" + p.Slug + "/"
		}
		if dir == "" {
			return "/" + p.Slug + "/"
		}
		return "/" + dir + "/" + p.Slug + "/"
	}
}
