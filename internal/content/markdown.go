package content

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// MarkdownRenderer converts Markdown source into HTML using goldmark with
// a rich set of extensions (GFM, footnotes, typographer, syntax highlighting,
// auto heading IDs, and attributes). Rendering is deterministic: the same
// source and renderer version produce the same output.
type MarkdownRenderer struct {
	md goldmark.Markdown
}

// ParseResult is the output of parsing one page body.
type ParseResult struct {
	HTML  []byte
	TOC   []byte
	Links []string // outbound link and image destinations, in document order
}

// NewMarkdownRenderer creates a MarkdownRenderer configured with all
// standard extensions enabled. Highlighting emits chroma classes; the
// matching stylesheet is generated by the asset phase.
func NewMarkdownRenderer() *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)

	return &MarkdownRenderer{md: md}
}

// Render converts Markdown source bytes into HTML.
func (r *MarkdownRenderer) Render(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, fmt.Errorf("markdown render: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse converts Markdown source into HTML plus a table of contents and the
// set of outbound links. Escape spans ({! ... !}) are masked before parsing
// and restored verbatim afterwards, so template expressions survive Markdown
// emphasis handling.
func (r *MarkdownRenderer) Parse(source []byte) (*ParseResult, error) {
	masked, spans := maskEscapes(source)

	// Parse the markdown into an AST.
	doc := r.md.Parser().Parse(text.NewReader(masked))

	// Extract the TOC tree from the AST.
	tocTree, err := toc.Inspect(doc, masked)
	if err != nil {
		return nil, fmt.Errorf("toc inspect: %w", err)
	}

	var tocOut []byte
	if tocList := toc.RenderList(tocTree); tocList != nil {
		var tocBuf bytes.Buffer
		if err := r.md.Renderer().Render(&tocBuf, masked, tocList); err != nil {
			return nil, fmt.Errorf("toc render: %w", err)
		}
		tocOut = tocBuf.Bytes()
	}

	links := extractLinks(doc, masked)

	// Render the full document.
	var contentBuf bytes.Buffer
	if err := r.md.Renderer().Render(&contentBuf, masked, doc); err != nil {
		return nil, fmt.Errorf("markdown render: %w", err)
	}

	return &ParseResult{
		HTML:  restoreEscapes(contentBuf.Bytes(), spans),
		TOC:   restoreEscapes(tocOut, spans),
		Links: links,
	}, nil
}

// extractLinks walks the AST collecting link and image destinations.
func extractLinks(doc ast.Node, source []byte) []string {
	var links []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			links = append(links, string(node.Destination))
		case *ast.Image:
			links = append(links, string(node.Destination))
		case *ast.AutoLink:
			links = append(links, string(node.URL(source)))
		}
		return ast.WalkContinue, nil
	})
	return links
}
