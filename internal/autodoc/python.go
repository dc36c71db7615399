package autodoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bengal-ssg/bengal/internal/config"
)

// pythonModule is the JSON shape the configured docstring command must emit:
// a top-level array of these, one per documented module.
type pythonModule struct {
	Module  string         `json:"module"`
	Doc     string         `json:"doc"`
	Symbols []pythonSymbol `json:"symbols"`
}

type pythonSymbol struct {
	Kind      string `json:"kind"` // function, class, method
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Doc       string `json:"doc"`
}

// pythonExtractor shells out to autodoc.python.command, which receives the
// configured source directories as arguments and prints module JSON on
// stdout. One Markdown page is generated per module, nested by package path.
type pythonExtractor struct{}

func (e *pythonExtractor) Name() string { return "python" }

func (e *pythonExtractor) Extract(ctx context.Context, cfg *config.Config) ([]VirtualSource, error) {
	command := cfg.Autodoc.Python.Command
	if command == "" {
		return nil, fmt.Errorf("autodoc.python.command is not configured")
	}

	// The command string is split on whitespace; arguments with spaces are
	// not supported.
	parts := strings.Fields(command)
	args := append(parts[1:], cfg.Autodoc.Python.SourceDirs...)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Dir = cfg.RootPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running %q: %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}

	var modules []pythonModule
	if err := json.Unmarshal(stdout.Bytes(), &modules); err != nil {
		return nil, fmt.Errorf("parsing %q output: %w", command, err)
	}

	sources := make([]VirtualSource, 0, len(modules))
	for _, mod := range modules {
		if mod.Module == "" {
			continue
		}
		sources = append(sources, VirtualSource{
			Path:    strings.ReplaceAll(mod.Module, ".", "/") + ".md",
			Content: renderPythonModule(mod),
		})
	}
	return sources, nil
}

func renderPythonModule(mod pythonModule) []byte {
	var b strings.Builder
	b.WriteString(frontmatter(
		[2]string{"title", mod.Module},
		[2]string{"layout", "autodoc"},
		[2]string{"module", mod.Module},
	))

	if doc := strings.TrimSpace(mod.Doc); doc != "" {
		b.WriteString(doc)
		b.WriteString("\n\n")
	}

	for _, sym := range mod.Symbols {
		fmt.Fprintf(&b, "## %s\n\n", sym.Name)
		if sig := strings.TrimSpace(sym.Signature); sig != "" {
			fmt.Fprintf(&b, "```python\n%s\n```\n\n", sig)
		}
		if doc := strings.TrimSpace(sym.Doc); doc != "" {
			b.WriteString(doc)
			b.WriteString("\n\n")
		}
	}
	return []byte(b.String())
}
