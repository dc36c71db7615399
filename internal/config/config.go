// Package config handles loading, validating, and managing site configuration
// for the Bengal static site generator.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/bengal-ssg/bengal/internal/diagnostics"
)

// Config is the top-level configuration for a Bengal site.
type Config struct {
	Site        SiteConfig            `yaml:"site"         mapstructure:"site"`
	Build       BuildConfig           `yaml:"build"        mapstructure:"build"`
	Content     ContentConfig         `yaml:"content"      mapstructure:"content"`
	Theme       ThemeConfig           `yaml:"theme"        mapstructure:"theme"`
	Assets      AssetsConfig          `yaml:"assets"       mapstructure:"assets"`
	Autodoc     AutodocConfig         `yaml:"autodoc"      mapstructure:"autodoc"`
	Versioning  VersioningConfig      `yaml:"versioning"   mapstructure:"versioning"`
	Server      ServerConfig          `yaml:"server"       mapstructure:"server"`
	Deploy      DeployConfig          `yaml:"deploy"       mapstructure:"deploy"`
	Menu        map[string][]MenuItem `yaml:"menu"         mapstructure:"menu"`
	Taxonomies  map[string]string     `yaml:"taxonomies"   mapstructure:"taxonomies"`
	Pagination  PaginationConfig      `yaml:"pagination"   mapstructure:"pagination"`
	Feeds       FeedsConfig           `yaml:"feeds"        mapstructure:"feeds"`
	Search      SearchConfig          `yaml:"search"       mapstructure:"search"`
	Highlight   HighlightConfig       `yaml:"highlight"    mapstructure:"highlight"`
	SocialCards SocialCardsConfig     `yaml:"social_cards" mapstructure:"social_cards"`
	Params      map[string]any        `yaml:"params"       mapstructure:"params"`

	// RootPath is the site root the config was loaded from. Not a file key.
	RootPath string `yaml:"-" mapstructure:"-"`
}

// SiteConfig holds site-wide identity injected into the template context.
type SiteConfig struct {
	Title       string `yaml:"title"       mapstructure:"title"`
	BaseURL     string `yaml:"baseurl"     mapstructure:"baseurl"`
	Language    string `yaml:"language"    mapstructure:"language"`
	Description string `yaml:"description" mapstructure:"description"`
	Author      string `yaml:"author"      mapstructure:"author"`
}

// BuildConfig controls the build pipeline.
type BuildConfig struct {
	OutputDir      string `yaml:"output_dir"      mapstructure:"output_dir"`
	Parallel       bool   `yaml:"parallel"        mapstructure:"parallel"`
	Incremental    string `yaml:"incremental"     mapstructure:"incremental"`
	Strict         bool   `yaml:"strict"          mapstructure:"strict"`
	CacheTemplates bool   `yaml:"cache_templates" mapstructure:"cache_templates"`
	Minify         bool   `yaml:"minify"          mapstructure:"minify"`
}

// IncrementalEnabled resolves the tri-state incremental setting. In auto mode
// the cache is used when one is present and loadable.
func (b BuildConfig) IncrementalEnabled(cachePresent bool) bool {
	switch b.Incremental {
	case "true":
		return true
	case "false":
		return false
	default: // auto
		return cachePresent
	}
}

// ContentConfig controls content discovery and summary derivation.
type ContentConfig struct {
	Dir             string   `yaml:"dir"              mapstructure:"dir"`
	WatchPaths      []string `yaml:"watch_paths"      mapstructure:"watch_paths"`
	IncludePatterns []string `yaml:"include_patterns" mapstructure:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	SummaryLength   int      `yaml:"summary_length"   mapstructure:"summary_length"`
}

// ThemeConfig selects the theme and where themes live.
type ThemeConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Dir  string `yaml:"dir"  mapstructure:"dir"`
}

// AssetsConfig controls the asset pipeline.
type AssetsConfig struct {
	Dir           string `yaml:"dir"            mapstructure:"dir"`
	Fingerprint   bool   `yaml:"fingerprint"    mapstructure:"fingerprint"`
	Minify        bool   `yaml:"minify"         mapstructure:"minify"`
	ImageVariants bool   `yaml:"image_variants" mapstructure:"image_variants"`
	ImageWidths   []int  `yaml:"image_widths"   mapstructure:"image_widths"`
	ImageQuality  int    `yaml:"image_quality"  mapstructure:"image_quality"`
}

// AutodocConfig configures the documentation extractors and the xref export.
type AutodocConfig struct {
	Python      AutodocPython `yaml:"python"       mapstructure:"python"`
	API         AutodocAPI    `yaml:"api"          mapstructure:"api"`
	CLI         AutodocCLI    `yaml:"cli"          mapstructure:"cli"`
	ExportXref  bool          `yaml:"export_xref"  mapstructure:"export_xref"`
	XrefSources []string      `yaml:"xref_sources" mapstructure:"xref_sources"`
}

// AutodocPython configures the Python docstring extractor.
type AutodocPython struct {
	Enabled    bool     `yaml:"enabled"     mapstructure:"enabled"`
	Command    string   `yaml:"command"     mapstructure:"command"`
	SourceDirs []string `yaml:"source_dirs" mapstructure:"source_dirs"`
}

// AutodocAPI configures the OpenAPI reference extractor.
type AutodocAPI struct {
	Enabled  bool   `yaml:"enabled"   mapstructure:"enabled"`
	SpecPath string `yaml:"spec_path" mapstructure:"spec_path"`
}

// AutodocCLI configures the CLI help-text extractor.
type AutodocCLI struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Command string `yaml:"command" mapstructure:"command"`
}

// VersioningConfig enables multi-version documentation builds.
type VersioningConfig struct {
	Enabled  bool     `yaml:"enabled"  mapstructure:"enabled"`
	Versions []string `yaml:"versions" mapstructure:"versions"`
	Current  string   `yaml:"current"  mapstructure:"current"`
}

// ServerConfig controls the local development server.
type ServerConfig struct {
	Host       string `yaml:"host"       mapstructure:"host"`
	Port       int    `yaml:"port"       mapstructure:"port"`
	LiveReload bool   `yaml:"livereload" mapstructure:"livereload"`
}

// DeployConfig targets the deploy command at an S3 bucket, optionally fronted
// by a CloudFront distribution.
type DeployConfig struct {
	Bucket       string    `yaml:"bucket"       mapstructure:"bucket"`
	Region       string    `yaml:"region"       mapstructure:"region"`
	Distribution string    `yaml:"distribution" mapstructure:"distribution"`
	URLRewrite   bool      `yaml:"url_rewrite"  mapstructure:"url_rewrite"`
	Headers      bool      `yaml:"headers"      mapstructure:"headers"`
	CSP          CSPConfig `yaml:"csp"          mapstructure:"csp"`
}

// CSPConfig appends extra allowed sources to the production
// Content-Security-Policy applied at the edge.
type CSPConfig struct {
	ScriptSrc  []string `yaml:"script_src"  mapstructure:"script_src"`
	StyleSrc   []string `yaml:"style_src"   mapstructure:"style_src"`
	ImgSrc     []string `yaml:"img_src"     mapstructure:"img_src"`
	FontSrc    []string `yaml:"font_src"    mapstructure:"font_src"`
	ConnectSrc []string `yaml:"connect_src" mapstructure:"connect_src"`
}

// MenuItem represents a single configured navigation menu entry.
type MenuItem struct {
	Name   string `yaml:"name"   mapstructure:"name"`
	URL    string `yaml:"url"    mapstructure:"url"`
	Weight int    `yaml:"weight" mapstructure:"weight"`
	Parent string `yaml:"parent" mapstructure:"parent"`
}

// PaginationConfig controls how content lists are paginated.
type PaginationConfig struct {
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// FeedsConfig controls RSS/Atom feed generation.
type FeedsConfig struct {
	RSS   bool `yaml:"rss"   mapstructure:"rss"`
	Atom  bool `yaml:"atom"  mapstructure:"atom"`
	Limit int  `yaml:"limit" mapstructure:"limit"`
}

// SearchConfig controls the client-side search index.
type SearchConfig struct {
	Enabled       bool `yaml:"enabled"        mapstructure:"enabled"`
	ContentLength int  `yaml:"content_length" mapstructure:"content_length"`
}

// HighlightConfig controls syntax highlighting behaviour.
type HighlightConfig struct {
	Style       string `yaml:"style"        mapstructure:"style"`
	LineNumbers bool   `yaml:"line_numbers" mapstructure:"line_numbers"`
	TabWidth    int    `yaml:"tab_width"    mapstructure:"tab_width"`
}

// SocialCardsConfig controls og:image card generation.
type SocialCardsConfig struct {
	Enabled  bool   `yaml:"enabled"   mapstructure:"enabled"`
	FontPath string `yaml:"font_path" mapstructure:"font_path"`
	Format   string `yaml:"format"    mapstructure:"format"`
}

// Default returns a Config populated with sensible default values.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Language: "en",
		},
		Build: BuildConfig{
			OutputDir:      "public",
			Parallel:       true,
			Incremental:    "auto",
			CacheTemplates: true,
		},
		Content: ContentConfig{
			Dir:             "content",
			IncludePatterns: []string{"**/*.md", "**/*.html"},
			SummaryLength:   280,
		},
		Theme: ThemeConfig{
			Name: "default",
			Dir:  "themes",
		},
		Assets: AssetsConfig{
			Dir:          "assets",
			Fingerprint:  true,
			ImageWidths:  []int{320, 640, 960, 1280},
			ImageQuality: 80,
		},
		Server: ServerConfig{
			Host:       "localhost",
			Port:       1313,
			LiveReload: true,
		},
		Taxonomies: map[string]string{
			"tags":       "tag",
			"categories": "category",
		},
		Pagination: PaginationConfig{
			PageSize: 10,
		},
		Feeds: FeedsConfig{
			RSS:   true,
			Atom:  true,
			Limit: 20,
		},
		Search: SearchConfig{
			Enabled:       true,
			ContentLength: 5000,
		},
		Highlight: HighlightConfig{
			Style:    "github",
			TabWidth: 4,
		},
		SocialCards: SocialCardsConfig{
			Format: "png",
		},
		Params: map[string]any{},
	}
}

// Load reads a configuration file (YAML, TOML, or JSON) and returns a Config
// with defaults applied first and file values overlaid on top.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()

	// Determine format from extension.
	ext := strings.TrimPrefix(filepath.Ext(configPath), ".")
	switch ext {
	case "yaml", "yml":
		v.SetConfigType("yaml")
	case "toml":
		v.SetConfigType("toml")
	case "json":
		v.SetConfigType("json")
	default:
		// Default to yaml if unrecognised.
		v.SetConfigType("yaml")
	}

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("BENGAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, diagnostics.Newf(diagnostics.ConfigError, "reading config file: %v", err).
			WithPath(configPath).
			WithHint("run from the site root, or pass --config")
	}

	// Weak typing lets `incremental: true` land in the tri-state string field.
	weak := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := v.Unmarshal(cfg, weak); err != nil {
		return nil, diagnostics.Newf(diagnostics.ConfigError, "parsing config file: %v", err).
			WithPath(configPath)
	}

	cfg.RootPath = filepath.Dir(configPath)
	if abs, err := filepath.Abs(cfg.RootPath); err == nil {
		cfg.RootPath = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the Config for common errors and normalises tri-state and
// enum fields. It returns a ConfigError diagnostic on the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Site.Title) == "" {
		return diagnostics.New(diagnostics.ConfigError, "site.title is required").
			WithHint("set site.title in bengal.yaml")
	}

	if c.Site.BaseURL != "" && strings.HasSuffix(c.Site.BaseURL, "/") {
		return diagnostics.Newf(diagnostics.ConfigError,
			"site.baseurl must not have a trailing slash (got %q)", c.Site.BaseURL)
	}

	switch strings.ToLower(c.Build.Incremental) {
	case "", "auto":
		c.Build.Incremental = "auto"
	case "1", "true", "yes", "on":
		c.Build.Incremental = "true"
	case "0", "false", "no", "off":
		c.Build.Incremental = "false"
	default:
		return diagnostics.Newf(diagnostics.ConfigError,
			"build.incremental must be true, false, or auto (got %q)", c.Build.Incremental)
	}

	if c.Build.OutputDir == "" {
		return diagnostics.New(diagnostics.ConfigError, "build.output_dir must not be empty")
	}

	switch c.SocialCards.Format {
	case "", "png", "webp":
	default:
		return diagnostics.Newf(diagnostics.ConfigError,
			"social_cards.format must be png or webp (got %q)", c.SocialCards.Format)
	}

	if c.Versioning.Enabled && len(c.Versioning.Versions) == 0 {
		return diagnostics.New(diagnostics.ConfigError,
			"versioning.enabled requires versioning.versions")
	}

	return nil
}

// Hash returns a stable hex digest of the resolved configuration. Builds
// compare it against the cached value to detect config changes.
func (c *Config) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WithOverrides applies CLI flag overrides to the config. Known keys are
// mapped to their corresponding struct fields. The modified config is returned
// for convenient chaining.
func (c *Config) WithOverrides(overrides map[string]any) *Config {
	for key, val := range overrides {
		switch key {
		case "baseurl":
			if s, ok := val.(string); ok {
				c.Site.BaseURL = s
			}
		case "output_dir":
			if s, ok := val.(string); ok {
				c.Build.OutputDir = s
			}
		case "parallel":
			if b, ok := val.(bool); ok {
				c.Build.Parallel = b
			}
		case "incremental":
			if b, ok := val.(bool); ok {
				c.Build.Incremental = fmt.Sprintf("%t", b)
			}
		case "strict":
			if b, ok := val.(bool); ok {
				c.Build.Strict = b
			}
		case "minify":
			if b, ok := val.(bool); ok {
				c.Build.Minify = b
			}
		case "theme":
			if s, ok := val.(string); ok {
				c.Theme.Name = s
			}
		case "host":
			if s, ok := val.(string); ok {
				c.Server.Host = s
			}
		case "port":
			if n, ok := val.(int); ok {
				c.Server.Port = n
			}
		}
	}
	return c
}

// OutputPath returns the absolute output directory.
func (c *Config) OutputPath() string {
	return c.absPath(c.Build.OutputDir)
}

// ContentPath returns the absolute content directory.
func (c *Config) ContentPath() string {
	return c.absPath(c.Content.Dir)
}

// AssetsPath returns the absolute assets directory.
func (c *Config) AssetsPath() string {
	return c.absPath(c.Assets.Dir)
}

// DataPath returns the absolute data directory.
func (c *Config) DataPath() string {
	return c.absPath("data")
}

// TemplatesPath returns the project-level template override directory.
func (c *Config) TemplatesPath() string {
	return c.absPath("templates")
}

// ThemePath returns the directory of the configured theme.
func (c *Config) ThemePath() string {
	return filepath.Join(c.absPath(c.Theme.Dir), c.Theme.Name)
}

// StatePath returns the .bengal state root.
func (c *Config) StatePath() string {
	return c.absPath(".bengal")
}

// CachePath returns the cache directory under the state root.
func (c *Config) CachePath() string {
	return filepath.Join(c.StatePath(), "cache")
}

// GeneratedPath returns the directory virtual-page sources are written to.
func (c *Config) GeneratedPath() string {
	return filepath.Join(c.StatePath(), "generated")
}

func (c *Config) absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootPath, p)
}

// Executor selects the build executor for serve mode. The BENGAL_BUILD_EXECUTOR
// environment variable chooses subprocess or in-process builds.
func Executor() string {
	switch os.Getenv("BENGAL_BUILD_EXECUTOR") {
	case "subprocess":
		return "subprocess"
	default:
		return "inprocess"
	}
}

// ColorEnabled reports whether terminal output should use color. NO_COLOR and
// CI both disable it.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	return true
}

// Interactive reports whether progress output may rewrite lines. CI disables
// interactive output.
func Interactive() bool {
	return os.Getenv("CI") == ""
}
