package content

import (
	"bytes"
	"fmt"
	"html"

	"github.com/zeebo/blake3"
)

// Escape spans let authors show template syntax literally. Text wrapped in
// {! ... !} passes through Markdown rendering untouched: the span is swapped
// for an opaque placeholder before parsing and the original text is restored,
// HTML-escaped, after rendering. The delimiters avoid *, _ and backtick so
// they never collide with Markdown emphasis or code spans.
const (
	escapeOpen  = "{!"
	escapeClose = "!}"
)

type escapeSpan struct {
	token string
	text  string
}

// maskEscapes replaces each escape span in source with a placeholder token
// and returns the masked source along with the replaced spans in order. An
// unterminated {! is left in place.
func maskEscapes(source []byte) ([]byte, []escapeSpan) {
	if !bytes.Contains(source, []byte(escapeOpen)) {
		return source, nil
	}

	// The nonce ties placeholders to this exact source, so stray
	// placeholder-shaped text in unrelated content cannot be rewritten.
	sum := blake3.Sum256(source)
	nonce := fmt.Sprintf("%x", sum[:4])

	var (
		out   bytes.Buffer
		spans []escapeSpan
		rest  = source
	)
	for {
		start := bytes.Index(rest, []byte(escapeOpen))
		if start < 0 {
			out.Write(rest)
			break
		}
		end := bytes.Index(rest[start+len(escapeOpen):], []byte(escapeClose))
		if end < 0 {
			out.Write(rest)
			break
		}

		out.Write(rest[:start])
		inner := rest[start+len(escapeOpen) : start+len(escapeOpen)+end]
		// Placeholders are alphanumeric so Markdown treats them as
		// plain words.
		token := fmt.Sprintf("besc%sn%dx", nonce, len(spans))
		out.WriteString(token)
		spans = append(spans, escapeSpan{token: token, text: string(inner)})
		rest = rest[start+len(escapeOpen)+end+len(escapeClose):]
	}
	return out.Bytes(), spans
}

// restoreEscapes substitutes placeholder tokens in rendered output with the
// HTML-escaped original span text.
func restoreEscapes(rendered []byte, spans []escapeSpan) []byte {
	if len(spans) == 0 || len(rendered) == 0 {
		return rendered
	}
	for _, span := range spans {
		rendered = bytes.ReplaceAll(rendered, []byte(span.token), []byte(html.EscapeString(span.text)))
	}
	return rendered
}
