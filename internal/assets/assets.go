// Package assets plans and processes static assets: blake3 fingerprinting,
// css/js minification, optional image variants, and the generated syntax
// highlighting stylesheet. Planning runs before the render phase so that
// asset_url resolves final fingerprinted URLs; writing happens later, in the
// asset phase proper.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
	"github.com/bengal-ssg/bengal/internal/highlight"
	"github.com/bengal-ssg/bengal/internal/incremental"
	"github.com/bengal-ssg/bengal/internal/pool"
)

// SyntaxCSSKey is the asset key of the generated chroma stylesheet. It has
// no source file; the pipeline synthesizes it from the configured style.
const SyntaxCSSKey = "css/syntax.css"

// fingerprintLen is the number of hash hex characters embedded in
// fingerprinted names.
const fingerprintLen = 8

// Writer is where processed assets land. The build output collector
// implements it.
type Writer interface {
	Write(rel string, data []byte) error
	Exists(rel string) bool
}

// planned is one asset the pipeline has fingerprinted but not yet written.
type planned struct {
	asset  *content.Asset // nil for generated assets
	key    string
	output string // output-relative path
	fp     cache.Fingerprint
	body   []byte // inline body for generated assets
}

// Stats summarizes one asset phase.
type Stats struct {
	Processed int
	Skipped   int
	Variants  int
}

// Pipeline carries the planned asset set for one build. Plan must complete
// before Resolver or Process are used; afterwards the pipeline is read-only
// and safe for concurrent resolution.
type Pipeline struct {
	cfg *config.Config
	min *minify.M
	hl  *highlight.Highlighter

	planned map[string]*planned
}

// NewPipeline creates an asset pipeline for one build.
func NewPipeline(cfg *config.Config) *Pipeline {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)

	return &Pipeline{
		cfg:     cfg,
		min:     m,
		hl:      highlight.New(cfg.Highlight.Style),
		planned: make(map[string]*planned),
	}
}

// Plan fingerprints every site asset and the generated syntax stylesheet,
// assigning each its public output name. Unreadable assets produce an
// AssetProcessingError warning and keep their unfingerprinted name so
// templates still resolve them.
func (p *Pipeline) Plan(site *content.Site) []*diagnostics.Diagnostic {
	var warnings []*diagnostics.Diagnostic

	for _, a := range site.Assets {
		data, err := os.ReadFile(a.SourcePath)
		if err != nil {
			warnings = append(warnings, diagnostics.Newf(diagnostics.AssetProcessingError,
				"reading asset: %v", err).WithPath(a.SourcePath).WithPhase("assets"))
			p.planned[a.Key] = &planned{asset: a, key: a.Key, output: path.Join("assets", a.Key)}
			continue
		}
		pl := &planned{
			asset: a,
			key:   a.Key,
			fp:    incremental.FingerprintBytes(data),
		}
		name := path.Base(a.Key)
		if p.cfg.Assets.Fingerprint {
			name = fingerprintName(name, pl.fp.Hash)
		}
		pl.output = path.Join("assets", path.Dir(a.Key), name)

		a.Hash = pl.fp.Hash
		a.OutputPath = pl.output
		if p.cfg.Assets.Fingerprint {
			a.FingerprintedName = name
		}
		p.planned[a.Key] = pl
	}

	// The syntax stylesheet exists only as generated output. Planned like a
	// real asset so asset_url and the dependency tracker treat it uniformly.
	var buf bytes.Buffer
	if err := p.hl.WriteCSS(&buf); err != nil {
		warnings = append(warnings, diagnostics.Newf(diagnostics.AssetProcessingError,
			"generating syntax stylesheet: %v", err).WithPhase("assets"))
	} else {
		body := buf.Bytes()
		pl := &planned{
			key:  SyntaxCSSKey,
			fp:   incremental.FingerprintBytes(body),
			body: body,
		}
		name := path.Base(SyntaxCSSKey)
		if p.cfg.Assets.Fingerprint {
			name = fingerprintName(name, pl.fp.Hash)
		}
		pl.output = path.Join("assets", path.Dir(SyntaxCSSKey), name)
		p.planned[SyntaxCSSKey] = pl
	}

	return warnings
}

// Resolver maps an asset key to its planned public URL.
func (p *Pipeline) Resolver() func(key string) (string, bool) {
	return func(key string) (string, bool) {
		pl, ok := p.planned[strings.TrimPrefix(key, "/")]
		if !ok {
			return "", false
		}
		return "/" + pl.output, true
	}
}

// OutputFor returns the planned output-relative path for an asset key.
func (p *Pipeline) OutputFor(key string) (string, bool) {
	pl, ok := p.planned[key]
	if !ok {
		return "", false
	}
	return pl.output, true
}

// Keys returns the planned asset keys, sorted.
func (p *Pipeline) Keys() []string {
	keys := make([]string, 0, len(p.planned))
	for k := range p.planned {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Process writes every planned asset through out: css/js are minified when
// configured, images optionally gain resized + webp variants, everything
// else is copied. Assets whose cached fingerprint matches and whose outputs
// already exist are skipped. Failures degrade to a passthrough copy with an
// AssetProcessingError warning; only a failed write is reported as lost.
func (p *Pipeline) Process(ctx context.Context, coord *cache.Coordinator, out Writer, workers int) (Stats, []*diagnostics.Diagnostic) {
	var (
		mu       sync.Mutex
		stats    Stats
		warnings []*diagnostics.Diagnostic
	)
	warn := func(d *diagnostics.Diagnostic) {
		mu.Lock()
		warnings = append(warnings, d.WithPhase("assets"))
		mu.Unlock()
	}

	tasks := make([]*planned, 0, len(p.planned))
	for _, pl := range p.planned {
		tasks = append(tasks, pl)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].key < tasks[j].key })

	pool.Run(ctx, workers, tasks, func(pl *planned) {
		skipped, variants, err := p.processOne(coord, out, pl, warn)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			warnings = append(warnings, diagnostics.Newf(diagnostics.AssetProcessingError,
				"writing asset: %v", err).WithPath(pl.key).WithPhase("assets"))
			return
		}
		if skipped {
			stats.Skipped++
		} else {
			stats.Processed++
		}
		stats.Variants += variants
	})

	return stats, warnings
}

// processOne handles a single asset. It returns skipped=true when the cached
// record made re-processing unnecessary.
func (p *Pipeline) processOne(coord *cache.Coordinator, out Writer, pl *planned, warn func(*diagnostics.Diagnostic)) (skipped bool, variants int, err error) {
	if p.unchanged(coord, out, pl) {
		return true, 0, nil
	}

	body := pl.body
	if body == nil {
		body, err = os.ReadFile(pl.asset.SourcePath)
		if err != nil {
			return false, 0, fmt.Errorf("reading %s: %w", pl.asset.SourcePath, err)
		}
	}

	processed := body
	switch p.assetType(pl) {
	case content.AssetCSS:
		processed = p.minified("text/css", pl.key, body, warn)
	case content.AssetJS:
		processed = p.minified("application/javascript", pl.key, body, warn)
	}

	if err := out.Write(pl.output, processed); err != nil {
		return false, 0, err
	}

	var variantNames []string
	if p.assetType(pl) == content.AssetImage && p.cfg.Assets.ImageVariants {
		variantNames = p.writeVariants(out, pl, body, warn)
	}

	if coord != nil {
		coord.StageAsset(&cache.AssetRecord{
			Source:      pl.key,
			Fingerprint: pl.fp,
			Output:      pl.output,
			Hashed:      path.Base(pl.output),
			Variants:    variantNames,
		})
	}
	return false, len(variantNames), nil
}

// unchanged reports whether the cached asset record covers the planned
// output: same source hash and every output file still present.
func (p *Pipeline) unchanged(coord *cache.Coordinator, out Writer, pl *planned) bool {
	if coord == nil || pl.fp.Hash == "" {
		return false
	}
	rec, err := coord.Manager().GetAsset(pl.key)
	if err != nil || rec == nil {
		return false
	}
	if !rec.Fingerprint.Eq(pl.fp) || rec.Output != pl.output {
		return false
	}
	if !out.Exists(pl.output) {
		return false
	}
	for _, v := range rec.Variants {
		if !out.Exists(v) {
			return false
		}
	}
	return true
}

// minified runs one minifier, degrading to the raw bytes on failure.
func (p *Pipeline) minified(mediaType, key string, body []byte, warn func(*diagnostics.Diagnostic)) []byte {
	if !p.cfg.Assets.Minify {
		return body
	}
	var buf bytes.Buffer
	if err := p.min.Minify(mediaType, &buf, bytes.NewReader(body)); err != nil {
		warn(diagnostics.Newf(diagnostics.AssetProcessingError,
			"minifying: %v", err).WithPath(key).WithHint("the unminified file was copied instead"))
		return body
	}
	return buf.Bytes()
}

// writeVariants emits resized and webp versions of an image. Variant names
// derive from the planned output: hero.ab12cd34.jpg -> hero.ab12cd34.800w.jpg
// and hero.ab12cd34.800w.webp.
func (p *Pipeline) writeVariants(out Writer, pl *planned, body []byte, warn func(*diagnostics.Diagnostic)) []string {
	ext := strings.ToLower(path.Ext(pl.output))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return nil
	}

	img, err := imaging.Decode(bytes.NewReader(body))
	if err != nil {
		warn(diagnostics.Newf(diagnostics.AssetProcessingError,
			"decoding image: %v", err).WithPath(pl.key).WithHint("the original was copied; no variants were generated"))
		return nil
	}

	quality := p.cfg.Assets.ImageQuality
	if quality <= 0 || quality > 100 {
		quality = 82
	}

	var names []string
	origWidth := img.Bounds().Dx()
	stem := strings.TrimSuffix(pl.output, ext)
	for _, width := range p.cfg.Assets.ImageWidths {
		if width <= 0 || width >= origWidth {
			continue
		}
		resized := imaging.Resize(img, width, 0, imaging.Lanczos)

		var buf bytes.Buffer
		var encErr error
		switch ext {
		case ".png":
			encErr = imaging.Encode(&buf, resized, imaging.PNG)
		default:
			encErr = imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(quality))
		}
		if encErr != nil {
			warn(diagnostics.Newf(diagnostics.AssetProcessingError,
				"encoding %dw variant: %v", width, encErr).WithPath(pl.key))
			continue
		}
		name := fmt.Sprintf("%s.%dw%s", stem, width, ext)
		if err := out.Write(name, buf.Bytes()); err != nil {
			warn(diagnostics.Newf(diagnostics.AssetProcessingError,
				"writing %dw variant: %v", width, err).WithPath(pl.key))
			continue
		}
		names = append(names, name)

		var webpBuf bytes.Buffer
		if err := webp.Encode(&webpBuf, resized, &webp.Options{Quality: float32(quality)}); err != nil {
			warn(diagnostics.Newf(diagnostics.AssetProcessingError,
				"encoding %dw webp variant: %v", width, err).WithPath(pl.key))
			continue
		}
		webpName := fmt.Sprintf("%s.%dw.webp", stem, width)
		if err := out.Write(webpName, webpBuf.Bytes()); err != nil {
			warn(diagnostics.Newf(diagnostics.AssetProcessingError,
				"writing %dw webp variant: %v", width, err).WithPath(pl.key))
			continue
		}
		names = append(names, webpName)
	}
	return names
}

func (p *Pipeline) assetType(pl *planned) content.AssetType {
	if pl.asset != nil {
		return pl.asset.Type
	}
	return content.AssetTypeFor(pl.key)
}

// fingerprintName splices the hash prefix in front of the extension:
// style.css + ab12cd34... -> style.ab12cd34.css.
func fingerprintName(name, hash string) string {
	if hash == "" {
		return name
	}
	if len(hash) > fingerprintLen {
		hash = hash[:fingerprintLen]
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + hash + ext
}
