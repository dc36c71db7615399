// Package autodoc runs documentation extractors: collaborators that read
// external artifacts (Python docstrings, an OpenAPI spec, CLI help text) and
// emit Markdown virtual sources under the generated tree. Discovery ingests
// that tree on the next build; builds never run extractors themselves.
package autodoc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bengal-ssg/bengal/internal/config"
)

// VirtualSource is one generated Markdown document. Path is slash-relative
// to the extractor's output directory.
type VirtualSource struct {
	Path    string
	Content []byte
}

// Extractor produces virtual sources from an external artifact. Extractors
// must be deterministic: the same artifact yields the same sources.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, cfg *config.Config) ([]VirtualSource, error)
}

// ExtractorResult reports one extractor's output.
type ExtractorResult struct {
	Name  string
	Pages int
}

// Result summarizes an autodoc run.
type Result struct {
	Extractors []ExtractorResult
}

// Runner executes extractors and replaces their output directories under
// .bengal/generated/.
type Runner struct {
	cfg    *config.Config
	log    *slog.Logger
	extras []Extractor
}

// NewRunner creates a runner with the built-in extractors available.
func NewRunner(cfg *config.Config, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{cfg: cfg, log: log}
}

// Register adds a custom extractor. Registered extractors run when named
// explicitly or when listed in no-name runs alongside enabled built-ins.
func (r *Runner) Register(ex Extractor) {
	r.extras = append(r.extras, ex)
}

func (r *Runner) available() []Extractor {
	exs := []Extractor{
		&pythonExtractor{},
		&apiExtractor{},
		&cliExtractor{},
	}
	return append(exs, r.extras...)
}

// enabled reports whether a built-in extractor is switched on in config.
// Registered custom extractors are always considered enabled.
func (r *Runner) enabled(name string) bool {
	switch name {
	case "python":
		return r.cfg.Autodoc.Python.Enabled
	case "api":
		return r.cfg.Autodoc.API.Enabled
	case "cli":
		return r.cfg.Autodoc.CLI.Enabled
	default:
		return true
	}
}

// selectExtractors resolves which extractors a run covers. Explicit names
// run regardless of their enabled flag; a no-name run covers everything
// enabled.
func (r *Runner) selectExtractors(names []string) ([]Extractor, error) {
	byName := make(map[string]Extractor)
	var known []string
	for _, ex := range r.available() {
		byName[ex.Name()] = ex
		known = append(known, ex.Name())
	}

	if len(names) == 0 {
		var exs []Extractor
		for _, ex := range r.available() {
			if r.enabled(ex.Name()) {
				exs = append(exs, ex)
			}
		}
		return exs, nil
	}

	var exs []Extractor
	for _, name := range names {
		ex, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown extractor %q (known: %s)", name, strings.Join(known, ", "))
		}
		exs = append(exs, ex)
	}
	return exs, nil
}

// Run executes the selected extractors and replaces their generated trees.
func (r *Runner) Run(ctx context.Context, names ...string) (*Result, error) {
	exs, err := r.selectExtractors(names)
	if err != nil {
		return nil, err
	}
	if len(exs) == 0 {
		return nil, fmt.Errorf("no extractors enabled; set autodoc.python.enabled, autodoc.api.enabled, or autodoc.cli.enabled")
	}

	res := &Result{}
	for _, ex := range exs {
		sources, err := ex.Extract(ctx, r.cfg)
		if err != nil {
			return nil, fmt.Errorf("extractor %s: %w", ex.Name(), err)
		}
		n, err := r.write(ex.Name(), sources)
		if err != nil {
			return nil, err
		}
		r.log.Info("extractor finished", "extractor", ex.Name(), "pages", n)
		res.Extractors = append(res.Extractors, ExtractorResult{Name: ex.Name(), Pages: n})
	}
	return res, nil
}

// write replaces one extractor's output directory. Clearing first means
// sources removed upstream disappear from the site.
func (r *Runner) write(name string, sources []VirtualSource) (int, error) {
	outDir := filepath.Join(r.cfg.GeneratedPath(), name)
	if err := os.RemoveAll(outDir); err != nil {
		return 0, fmt.Errorf("clearing %s: %w", outDir, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", outDir, err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })

	for _, src := range sources {
		rel := path.Clean(filepath.ToSlash(src.Path))
		if rel == "" || rel == "." || rel == ".." ||
			strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
			return 0, fmt.Errorf("extractor %s produced invalid path %q", name, src.Path)
		}
		full := filepath.Join(outDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return 0, fmt.Errorf("creating directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(full, src.Content, 0o644); err != nil {
			return 0, fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	return len(sources), nil
}

// frontmatter renders a minimal YAML frontmatter block. Values are quoted,
// so titles with colons or quotes stay valid.
func frontmatter(pairs ...[2]string) string {
	var b strings.Builder
	b.WriteString("---\n")
	for _, kv := range pairs {
		fmt.Fprintf(&b, "%s: %q\n", kv[0], kv[1])
	}
	b.WriteString("---\n\n")
	return b.String()
}
