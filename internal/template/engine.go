// Package template wraps Go's html/template with three-layer template
// resolution (embedded default theme, installed theme, project overrides),
// layout candidate chains, dependency-recording template functions, and
// structured syntax and render errors.
package template

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bengal-ssg/bengal/internal/diagnostics"
	"github.com/bengal-ssg/bengal/internal/pool"
)

// source is one resolved template: its name, where it came from, and its
// text. Path is empty for embedded templates.
type source struct {
	name string
	path string
	body string
}

// AssetResolver maps a logical asset key ("css/style.css") to its public,
// possibly fingerprinted URL.
type AssetResolver func(key string) (string, bool)

// RefResolver resolves a reference target to a URL and, for site-local
// targets, the page key the reference lands on.
type RefResolver func(target string) (url, pageKey string, ok bool)

// DepSink receives the dependencies template functions observe while a page
// renders. Implementations must be safe for concurrent use.
type DepSink interface {
	Template(pageKey, name string)
	Asset(pageKey, assetKey string)
	Data(pageKey, name string)
	Page(pageKey, targetKey string)
}

// Bindings are the per-build collaborators the recording functions call
// into. Bind must happen before rendering starts; the engine does not guard
// them afterwards.
type Bindings struct {
	Assets AssetResolver
	Refs   RefResolver
	Data   func(name string) (any, bool)
	Sink   DepSink
}

// Options configure engine construction. Missing directories are fine; the
// embedded layer alone is a working theme.
type Options struct {
	TemplatesDir string // project templates/, overrides everything
	ThemeDir     string // themes/<name>/templates
	Embedded     fs.FS  // default theme, lowest layer
	BaseURL      string // for ref/absURL
	ExtraFuncs   template.FuncMap
	CacheDir     string // source bundle cache; "" disables
}

// Engine holds the merged template set for one build.
type Engine struct {
	templates *template.Template
	files     map[string]*source
	digest    string
	baseURL   string
	bind      Bindings
}

// New loads and parses the three template layers. Later layers override
// earlier ones name-by-name. A parse failure surfaces as a TemplateSyntaxError
// diagnostic naming the file, line, and column.
func New(opts Options) (*Engine, error) {
	e := &Engine{
		files:   make(map[string]*source),
		baseURL: opts.BaseURL,
	}

	if opts.Embedded != nil {
		if err := e.loadEmbedded(opts.Embedded); err != nil {
			return nil, err
		}
	}
	disk, err := loadDiskSources(opts.ThemeDir, opts.TemplatesDir, opts.CacheDir)
	if err != nil {
		return nil, err
	}
	maps.Copy(e.files, disk)

	e.digest = digestSources(e.files)

	funcs := e.funcMap()
	maps.Copy(funcs, opts.ExtraFuncs)

	root := template.New("").Funcs(funcs)
	for _, name := range sortedNames(e.files) {
		src := e.files[name]
		if _, err := root.New(name).Parse(src.body); err != nil {
			return nil, syntaxError(src, err)
		}
	}
	e.templates = root
	return e, nil
}

// Bind wires the per-build collaborators for the recording functions.
func (e *Engine) Bind(b Bindings) { e.bind = b }

// Digest identifies the merged template set; it changes when any template's
// source changes.
func (e *Engine) Digest() string { return e.digest }

// HasTemplate reports whether a template with the given name exists.
func (e *Engine) HasTemplate(name string) bool {
	return e.templates.Lookup(name) != nil
}

// Names returns every loaded template name, sorted.
func (e *Engine) Names() []string { return sortedNames(e.files) }

// Origin returns the file a template was loaded from, or "" for embedded
// templates and unknown names.
func (e *Engine) Origin(name string) string {
	if src, ok := e.files[name]; ok {
		return src.path
	}
	return ""
}

// Resolve returns the first existing template for a page of the given kind
// ("home", "list", "single"), section, and explicit layout. An empty string
// means nothing matched.
func (e *Engine) Resolve(kind, section, layout string) string {
	var candidates []string
	add := func(names ...string) { candidates = append(candidates, names...) }

	if layout != "" {
		if section != "" {
			add(section + "/" + layout + ".html")
		}
		add("_default/"+layout+".html", layout+".html")
	}
	switch kind {
	case "home":
		add("index.html", "home.html", "_default/index.html", "_default/list.html")
	case "list":
		if section != "" {
			add(section + "/list.html")
		}
		add("_default/list.html", "list.html")
	case "single":
		if section != "" {
			add(section + "/single.html")
		}
		add("_default/single.html", "single.html", "page.html")
	}

	for _, name := range candidates {
		if e.templates.Lookup(name) != nil {
			return name
		}
	}
	return ""
}

// Execute renders the named template and returns the output bytes. Render
// failures come back as TemplateRenderError diagnostics with the failing
// template's location. Execution buffers are pooled; the returned slice is
// a copy the caller owns.
func (e *Engine) Execute(name string, data any) ([]byte, error) {
	t := e.templates.Lookup(name)
	if t == nil {
		return nil, diagnostics.Newf(diagnostics.TemplateRenderError, "template %q not found", name)
	}
	buf := pool.SharedBuffers.Get()
	defer pool.SharedBuffers.Put(buf)
	if err := t.Execute(buf, data); err != nil {
		return nil, e.execError(name, err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// RenderString parses src as a one-off template sharing the engine's
// function map and renders it with data.
func (e *Engine) RenderString(src string, data any) (string, error) {
	t, err := e.templates.Clone()
	if err != nil {
		return "", fmt.Errorf("cloning template set: %w", err)
	}
	one, err := t.New("inline").Parse(src)
	if err != nil {
		return "", syntaxError(&source{name: "inline", body: src}, err)
	}
	var buf bytes.Buffer
	if err := one.Execute(&buf, data); err != nil {
		return "", e.execError("inline", err)
	}
	return buf.String(), nil
}

// executePartial renders a partial by name, trying the partials/ prefix
// first. When the context carries a page, the partial is recorded as a
// template dependency of that page.
func (e *Engine) executePartial(name string, ctx any) (template.HTML, error) {
	tmplName := name
	if !strings.HasPrefix(name, "partials/") {
		tmplName = "partials/" + name
	}
	t := e.templates.Lookup(tmplName)
	if t == nil {
		t = e.templates.Lookup(name)
		tmplName = name
	}
	if t == nil {
		return "", fmt.Errorf("partial template %q not found", name)
	}

	if pc, ok := ctx.(*PageContext); ok && pc.Page != nil && e.bind.Sink != nil {
		e.bind.Sink.Template(pc.Page.Key, tmplName)
	}

	buf := pool.SharedBuffers.Get()
	defer pool.SharedBuffers.Put(buf)
	if err := t.Execute(buf, ctx); err != nil {
		return "", fmt.Errorf("executing partial %q: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

func (e *Engine) loadEmbedded(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking embedded templates: %w", err)
		}
		if d.IsDir() || filepath.Ext(p) != ".html" {
			return nil
		}
		body, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading embedded template %s: %w", p, err)
		}
		e.files[p] = &source{name: p, body: string(body)}
		return nil
	})
}

// loadDiskSources merges the theme and project template directories, project
// winning on name collisions. When cacheDir holds a fresh source bundle the
// file reads are skipped.
func loadDiskSources(themeDir, projectDir, cacheDir string) (map[string]*source, error) {
	paths := make(map[string]string)
	for _, dir := range []string{themeDir, projectDir} {
		if dir == "" {
			continue
		}
		found, err := collectTemplateFiles(dir)
		if err != nil {
			return nil, err
		}
		maps.Copy(paths, found)
	}

	if cached, ok := loadBundle(cacheDir, paths); ok {
		return cached, nil
	}

	out := make(map[string]*source, len(paths))
	for name, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", path, err)
		}
		out[name] = &source{name: name, path: path, body: string(body)}
	}
	if cacheDir != "" {
		writeBundle(cacheDir, out)
	}
	return out, nil
}

// collectTemplateFiles walks a directory and returns template name (relative
// slash path) to absolute file path for every .html file. A missing
// directory yields an empty map.
func collectTemplateFiles(dir string) (map[string]string, error) {
	files := make(map[string]string)

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return files, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading templates from %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".html" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates from %s: %w", dir, err)
	}
	return files, nil
}

func digestSources(files map[string]*source) string {
	h := blake3.New()
	for _, name := range sortedNames(files) {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(files[name].body))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedNames(files map[string]*source) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
