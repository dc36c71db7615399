package render

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"html"
	"path"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
)

// ContentHashMeta is the name attribute of the meta tag carrying the page's
// body hash. The dev server compares these tags across builds to decide
// whether a page actually changed.
const ContentHashMeta = "bengal:content-hash"

const tocMarker = "<!-- toc -->"

var (
	xrefPattern = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]+))?\]\]`)
	mdLinkAttr  = regexp.MustCompile(`(href|src)="([^"]+\.md)(#[^"]*)?"`)
	metaPattern = regexp.MustCompile(`<meta name="` + ContentHashMeta + `" content="[0-9a-f]*">`)
)

// postprocess finishes a rendered document: expands the TOC marker, rewrites
// markdown-relative links to final URLs, resolves [[target]] cross
// references, and injects the content-hash meta tag. It returns the final
// bytes and the hash embedded in the tag.
func (r *Renderer) postprocess(p *content.Page, body []byte) ([]byte, string) {
	body = r.injectTOC(p, body)
	body = r.rewriteRelativeLinks(p, body)
	body = r.resolveXrefs(p, body)
	return injectContentHash(body)
}

// injectTOC replaces the literal <!-- toc --> marker with the page's
// rendered table of contents. Templates that place .TableOfContents
// themselves never contain the marker.
func (r *Renderer) injectTOC(p *content.Page, body []byte) []byte {
	if !bytes.Contains(body, []byte(tocMarker)) {
		return body
	}
	return bytes.ReplaceAll(body, []byte(tocMarker), []byte(p.TableOfContents))
}

// rewriteRelativeLinks maps href/src attributes that point at markdown
// sources ("./sibling.md", "../guide/setup.md") onto the target page's URL.
// Links that do not resolve to a site page pass through untouched.
func (r *Renderer) rewriteRelativeLinks(p *content.Page, body []byte) []byte {
	return mdLinkAttr.ReplaceAllFunc(body, func(m []byte) []byte {
		groups := mdLinkAttr.FindSubmatch(m)
		attr, target, fragment := groups[1], string(groups[2]), string(groups[3])

		key, ok := resolveMarkdownLink(p.Key, target)
		if !ok {
			return m
		}
		page, exists := r.site.PageByKey(key)
		if !exists {
			return m
		}
		return fmt.Appendf(nil, `%s="%s%s"`, attr, page.URL, fragment)
	})
}

// resolveXrefs expands [[Target]] and [[Target|Label]] spans. Resolution
// order lives in the bound resolver: site pages first, then external xref
// indexes. Unresolvable targets become marker spans and emit a warning.
func (r *Renderer) resolveXrefs(p *content.Page, body []byte) []byte {
	if !bytes.Contains(body, []byte("[[")) {
		return body
	}
	return xrefPattern.ReplaceAllFunc(body, func(m []byte) []byte {
		groups := xrefPattern.FindSubmatch(m)
		target := strings.TrimSpace(string(groups[1]))
		label := target
		if len(groups[2]) > 0 {
			label = strings.TrimSpace(string(groups[2]))
		}

		if r.refs != nil {
			if url, pageKey, ok := r.refs(target); ok {
				if pageKey != "" {
					r.tracker.AddPage(p.Key, pageKey)
				}
				return fmt.Appendf(nil, `<a href="%s">%s</a>`, url, html.EscapeString(label))
			}
		}

		r.warn(diagnostics.Newf(diagnostics.CrossReferenceBroken,
			"unresolved reference [[%s]]", target).
			WithPhase("render").
			WithPath(p.Key))
		return fmt.Appendf(nil, `<span class="broken-ref">[%s]</span>`, html.EscapeString(label))
	})
}

// injectContentHash hashes the document with any existing hash tag blanked,
// then inserts <meta name="bengal:content-hash" content="HEX"> before
// </head>. Documents without a head section are hashed but not tagged.
func injectContentHash(body []byte) ([]byte, string) {
	hashable := metaPattern.ReplaceAll(body, nil)
	sum := blake3.Sum256(hashable)
	hash := hex.EncodeToString(sum[:16])

	idx := bytes.Index(bytes.ToLower(body), []byte("</head>"))
	if idx < 0 {
		return body, hash
	}
	tag := fmt.Sprintf(`<meta name="%s" content="%s">`+"\n", ContentHashMeta, hash)
	out := make([]byte, 0, len(body)+len(tag))
	out = append(out, body[:idx]...)
	out = append(out, tag...)
	out = append(out, body[idx:]...)
	return out, hash
}

// ExtractContentHash pulls the content-hash meta value out of a rendered
// document, or "" when the document carries no tag.
func ExtractContentHash(body []byte) string {
	m := metaPattern.Find(body)
	if m == nil {
		return ""
	}
	const prefix = `content="`
	start := bytes.Index(m, []byte(prefix))
	if start < 0 {
		return ""
	}
	rest := m[start+len(prefix):]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return string(rest[:end])
}

// resolveMarkdownLink resolves a relative markdown link against the linking
// page's key directory, producing the target's canonical key. Absolute URLs
// and non-markdown targets report false.
func resolveMarkdownLink(fromKey, target string) (string, bool) {
	if strings.Contains(target, "://") || strings.HasPrefix(target, "//") {
		return "", false
	}
	if !strings.HasSuffix(target, ".md") {
		return "", false
	}
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/"), true
	}
	joined := path.Join(path.Dir(fromKey), target)
	if joined == "" || strings.HasPrefix(joined, "..") {
		return "", false
	}
	return joined, true
}

// OutputPathForURL maps a page URL onto its output-relative file path.
// Directory-style URLs get an index.html; URLs naming a file keep it.
func OutputPathForURL(url string) string {
	trimmed := strings.TrimPrefix(url, "/")
	switch {
	case trimmed == "":
		return "index.html"
	case strings.HasSuffix(trimmed, "/"):
		return trimmed + "index.html"
	case path.Ext(trimmed) != "":
		return trimmed
	default:
		return trimmed + "/index.html"
	}
}
