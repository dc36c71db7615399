package build

import (
	"fmt"
	"strings"

	"github.com/bengal-ssg/bengal/internal/diagnostics"
)

// redirectTemplate is the body of a meta-refresh alias page. The moved-to
// URL appears in the refresh directive, the canonical link, and the visible
// fallback anchor.
const redirectTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta http-equiv="refresh" content="0; url=%s">
  <link rel="canonical" href="%s">
  <title>Redirect</title>
</head>
<body>
  <p>This page has moved to <a href="%s">%s</a>.</p>
</body>
</html>
`

// writeRedirects emits a redirect page for every alias a page declares, so
// old URLs keep working after content moves. An alias that collides with a
// path this build already wrote is skipped with a warning rather than
// clobbering the real output.
func (b *Builder) writeRedirects(st *state, stats *Stats) int {
	written := 0
	for _, p := range st.site.Pages {
		for _, alias := range p.Aliases {
			if strings.TrimSpace(alias) == "" {
				continue
			}
			rel := aliasPath(alias)
			if st.out.Written(rel) {
				b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
					"alias %s on %s collides with an existing output", alias, p.Key).
					WithPhase("postprocess").WithPath(p.SourcePath))
				continue
			}
			changed, err := st.out.WriteIfChanged(rel, redirectHTML(p.URL))
			if err != nil {
				b.warn(stats, diagnostics.Newf(diagnostics.AssetProcessingError,
					"writing alias %s: %v", rel, err).WithPhase("postprocess"))
				continue
			}
			if changed {
				written++
			}
		}
	}
	return written
}

func redirectHTML(target string) []byte {
	return []byte(fmt.Sprintf(redirectTemplate, target, target, target, target))
}

// aliasPath converts an alias URL to an output-relative path.
//
//	"/old-post/"  -> old-post/index.html
//	"/old-post"   -> old-post/index.html
//	"/"           -> index.html
func aliasPath(url string) string {
	p := strings.Trim(strings.TrimSpace(url), "/")
	if p == "" {
		return "index.html"
	}
	return p + "/index.html"
}
