package template

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/bengal-ssg/bengal/internal/diagnostics"
)

// html/template error strings look like "template: name:line: msg" for parse
// failures and "template: name:line:col: executing ..." for exec failures.
var tmplErrRe = regexp.MustCompile(`template: (.+?):(\d+)(?::(\d+))?: (.+)`)

// parseTemplateError pulls the failing template name, position, and bare
// message out of an html/template error. Returns ok=false when the error has
// some other shape.
func parseTemplateError(err error) (name string, line, col int, msg string, ok bool) {
	m := tmplErrRe.FindStringSubmatch(err.Error())
	if m == nil {
		return "", 0, 0, err.Error(), false
	}
	line, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		col, _ = strconv.Atoi(m[3])
	}
	return m[1], line, col, m[4], true
}

// syntaxError converts a parse failure into a TemplateSyntaxError diagnostic
// with the offending source line excerpted.
func syntaxError(src *source, err error) error {
	name, line, col, msg, ok := parseTemplateError(err)
	if !ok {
		return diagnostics.Newf(diagnostics.TemplateSyntaxError, "parsing template %s: %v", src.name, err).
			WithPath(displayPath(src))
	}
	if name == "" {
		name = src.name
	}

	d := diagnostics.New(diagnostics.TemplateSyntaxError, msg).
		WithPath(displayPath(src)).
		WithHint("fix the template syntax; the build cannot continue without it")
	if text, found := sourceLine(src.body, line); found {
		d = d.WithExcerpt(line, col, text)
	}
	return d
}

// execError converts a render-time failure into a TemplateRenderError
// diagnostic located in the template that actually failed, which for partial
// chains is not necessarily the entry template.
func (e *Engine) execError(name string, err error) error {
	var d *diagnostics.Diagnostic
	if errors.As(err, &d) {
		return d
	}

	failing, line, col, msg, ok := parseTemplateError(err)
	if !ok || failing == "" {
		failing = name
	}
	src := e.files[failing]

	diag := diagnostics.New(diagnostics.TemplateRenderError, msg)
	if src != nil {
		diag = diag.WithPath(displayPath(src))
		if text, found := sourceLine(src.body, line); found {
			diag = diag.WithExcerpt(line, col, text)
		}
	} else {
		diag = diag.WithPath(failing)
	}
	return diag
}

func displayPath(src *source) string {
	if src.path != "" {
		return src.path
	}
	return src.name
}

// sourceLine returns the n-th line (1-based) of body.
func sourceLine(body string, n int) (string, bool) {
	if n <= 0 {
		return "", false
	}
	lines := strings.Split(body, "\n")
	if n > len(lines) {
		return "", false
	}
	return lines[n-1], true
}
