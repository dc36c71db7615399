// Package highlight wraps chroma behind the small contract the render
// pipeline consumes: highlight a code block, never fail, fall back to
// escaped plain text for unknown languages.
package highlight

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Options control per-block rendering.
type Options struct {
	// HLLines lists 1-based line numbers to emphasise.
	HLLines []int
	// LineNumbers renders a line-number gutter.
	LineNumbers bool
}

// Highlighter renders code blocks as HTML with chroma classes. Safe for
// concurrent use; all state is immutable after New.
type Highlighter struct {
	style *chroma.Style
}

// New creates a Highlighter for the named chroma style. Unknown style names
// fall back to chroma's default.
func New(styleName string) *Highlighter {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{style: style}
}

// SupportsLanguage reports whether a lexer is registered for lang.
func (h *Highlighter) SupportsLanguage(lang string) bool {
	return lexers.Get(lang) != nil
}

// Highlight renders code as highlighted HTML. It never returns an error and
// never panics: unknown languages and tokenizer failures degrade to an
// HTML-escaped <pre> block.
func (h *Highlighter) Highlight(code, lang string, opts Options) (out string) {
	defer func() {
		if recover() != nil {
			out = plainBlock(code)
		}
	}()

	lexer := lexers.Get(lang)
	if lexer == nil {
		return plainBlock(code)
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return plainBlock(code)
	}

	formatOpts := []chromahtml.Option{
		chromahtml.WithClasses(true),
	}
	if opts.LineNumbers {
		formatOpts = append(formatOpts, chromahtml.WithLineNumbers(true))
	}
	if len(opts.HLLines) > 0 {
		ranges := make([][2]int, 0, len(opts.HLLines))
		for _, n := range opts.HLLines {
			ranges = append(ranges, [2]int{n, n})
		}
		formatOpts = append(formatOpts, chromahtml.HighlightLines(ranges))
	}

	var buf bytes.Buffer
	formatter := chromahtml.New(formatOpts...)
	if err := formatter.Format(&buf, h.style, iterator); err != nil {
		return plainBlock(code)
	}
	return buf.String()
}

// WriteCSS writes the stylesheet for the highlighter's chroma classes.
func (h *Highlighter) WriteCSS(w io.Writer) error {
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(w, h.style); err != nil {
		return fmt.Errorf("write chroma css: %w", err)
	}
	return nil
}

// plainBlock escapes code and wraps it in a bare pre/code pair.
func plainBlock(code string) string {
	var b strings.Builder
	b.WriteString("<pre><code>")
	b.WriteString(html.EscapeString(code))
	b.WriteString("</code></pre>")
	return b.String()
}
