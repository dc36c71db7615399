package autodoc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bengal-ssg/bengal/internal/config"
)

// httpMethods are the OpenAPI path-item keys that describe operations;
// everything else under a path (parameters, $ref, servers) is skipped.
var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

type openAPIInfo struct {
	Title       string `yaml:"title"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

type openAPIOperation struct {
	Summary     string   `yaml:"summary"`
	Description string   `yaml:"description"`
	OperationID string   `yaml:"operationId"`
	Tags        []string `yaml:"tags"`
	Deprecated  bool     `yaml:"deprecated"`
}

type openAPISpec struct {
	OpenAPI string                           `yaml:"openapi"`
	Swagger string                           `yaml:"swagger"`
	Info    openAPIInfo                      `yaml:"info"`
	Paths   map[string]map[string]*yaml.Node `yaml:"paths"`
}

// apiExtractor reads the OpenAPI document at autodoc.api.spec_path (YAML or
// JSON) and generates a section index plus one page per API path.
type apiExtractor struct{}

func (e *apiExtractor) Name() string { return "api" }

func (e *apiExtractor) Extract(_ context.Context, cfg *config.Config) ([]VirtualSource, error) {
	specPath := cfg.Autodoc.API.SpecPath
	if specPath == "" {
		return nil, fmt.Errorf("autodoc.api.spec_path is not configured")
	}
	if !filepath.IsAbs(specPath) {
		specPath = filepath.Join(cfg.RootPath, specPath)
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("reading OpenAPI spec: %w", err)
	}

	// JSON is a YAML subset, so one decoder covers both spec formats.
	var spec openAPISpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing OpenAPI spec %s: %w", specPath, err)
	}
	if spec.OpenAPI == "" && spec.Swagger == "" {
		return nil, fmt.Errorf("%s does not look like an OpenAPI document (no openapi or swagger field)", specPath)
	}

	title := spec.Info.Title
	if title == "" {
		title = "API Reference"
	}

	sources := []VirtualSource{{
		Path:    "_index.md",
		Content: renderAPIIndex(title, spec.Info),
	}}

	apiPaths := make([]string, 0, len(spec.Paths))
	for p := range spec.Paths {
		apiPaths = append(apiPaths, p)
	}
	sort.Strings(apiPaths)

	for _, apiPath := range apiPaths {
		page, err := renderAPIPath(apiPath, spec.Paths[apiPath])
		if err != nil {
			return nil, fmt.Errorf("path %s: %w", apiPath, err)
		}
		if page == nil {
			continue
		}
		sources = append(sources, VirtualSource{
			Path:    apiPathSlug(apiPath) + ".md",
			Content: page,
		})
	}
	return sources, nil
}

// apiPathSlug turns "/users/{id}/posts" into "users-id-posts".
func apiPathSlug(apiPath string) string {
	s := strings.Trim(apiPath, "/")
	s = strings.NewReplacer("/", "-", "{", "", "}", "").Replace(s)
	s = strings.ToLower(s)
	if s == "" {
		return "root"
	}
	return s
}

func renderAPIIndex(title string, info openAPIInfo) []byte {
	var b strings.Builder
	b.WriteString(frontmatter(
		[2]string{"title", title},
		[2]string{"layout", "autodoc"},
	))
	if info.Version != "" {
		fmt.Fprintf(&b, "Version %s\n\n", info.Version)
	}
	if desc := strings.TrimSpace(info.Description); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// renderAPIPath renders one path's operations, or nil when the path item
// holds no operations at all.
func renderAPIPath(apiPath string, item map[string]*yaml.Node) ([]byte, error) {
	var b strings.Builder
	b.WriteString(frontmatter(
		[2]string{"title", apiPath},
		[2]string{"layout", "autodoc"},
	))

	found := false
	for _, method := range httpMethods {
		node, ok := item[method]
		if !ok || node == nil {
			continue
		}
		var op openAPIOperation
		if err := node.Decode(&op); err != nil {
			return nil, fmt.Errorf("decoding %s operation: %w", method, err)
		}
		found = true

		fmt.Fprintf(&b, "## %s %s\n\n", strings.ToUpper(method), apiPath)
		if op.Deprecated {
			b.WriteString("**Deprecated.**\n\n")
		}
		if s := strings.TrimSpace(op.Summary); s != "" {
			b.WriteString(s)
			b.WriteString("\n\n")
		}
		if d := strings.TrimSpace(op.Description); d != "" {
			b.WriteString(d)
			b.WriteString("\n\n")
		}
		if op.OperationID != "" {
			fmt.Fprintf(&b, "Operation ID: `%s`\n\n", op.OperationID)
		}
		if len(op.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(op.Tags, ", "))
		}
	}
	if !found {
		return nil, nil
	}
	return []byte(b.String()), nil
}
