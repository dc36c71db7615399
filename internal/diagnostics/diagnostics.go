// Package diagnostics defines the structured error records surfaced to users.
// Every fatal or collected build error carries a kind, the phase it occurred
// in, and enough context to act on (path, hint, optional source excerpt).
package diagnostics

import (
	"fmt"
	"strings"
)

// Kind classifies a diagnostic. The set is closed; callers switch on it to
// decide whether an error is fatal, recoverable, or merely a warning.
type Kind string

const (
	ConfigError          Kind = "config"
	DiscoveryError       Kind = "discovery"
	CacheLoadError       Kind = "cache-load"
	TemplateSyntaxError  Kind = "template-syntax"
	TemplateRenderError  Kind = "template-render"
	MarkdownParseError   Kind = "markdown-parse"
	CrossReferenceBroken Kind = "broken-xref"
	AssetProcessingError Kind = "asset-processing"
	OutputWriteError     Kind = "output-write"
	WatcherError         Kind = "watcher"
)

// Fatal reports whether a diagnostic of this kind aborts the build. Per-page
// and per-asset kinds are collected instead; cache-load failures degrade to a
// full build.
func (k Kind) Fatal() bool {
	switch k {
	case ConfigError, OutputWriteError:
		return true
	default:
		return false
	}
}

// Excerpt is a short span of source text around a failure, used to render a
// caret marker under the offending span.
type Excerpt struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

// Diagnostic is a structured, user-facing error record.
type Diagnostic struct {
	Kind    Kind     `json:"kind"`
	Phase   string   `json:"phase,omitempty"`
	Path    string   `json:"path,omitempty"`
	Message string   `json:"message"`
	Hint    string   `json:"hint,omitempty"`
	Excerpt *Excerpt `json:"excerpt,omitempty"`
}

// New creates a diagnostic with the given kind and message.
func New(kind Kind, message string) *Diagnostic {
	return &Diagnostic{Kind: kind, Message: message}
}

// Newf creates a diagnostic with a formatted message.
func Newf(kind Kind, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithPhase records the build phase the diagnostic originated in.
func (d *Diagnostic) WithPhase(phase string) *Diagnostic {
	d.Phase = phase
	return d
}

// WithPath records the source or output path involved.
func (d *Diagnostic) WithPath(path string) *Diagnostic {
	d.Path = path
	return d
}

// WithHint attaches a suggested action.
func (d *Diagnostic) WithHint(hint string) *Diagnostic {
	d.Hint = hint
	return d
}

// WithExcerpt attaches a source excerpt for the failing span.
func (d *Diagnostic) WithExcerpt(line, column int, text string) *Diagnostic {
	d.Excerpt = &Excerpt{Line: line, Column: column, Text: text}
	return d
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.Phase != "" {
		fmt.Fprintf(&b, " [%s]", d.Phase)
	}
	b.WriteString(": ")
	if d.Path != "" {
		b.WriteString(d.Path)
		b.WriteString(": ")
	}
	b.WriteString(d.Message)
	return b.String()
}

// Format renders a multi-line, human-readable form: the one-line summary,
// then the excerpt with a caret under the failing column, then the hint.
func (d *Diagnostic) Format() string {
	var b strings.Builder
	b.WriteString(d.Error())
	if d.Excerpt != nil {
		fmt.Fprintf(&b, "\n  %d | %s", d.Excerpt.Line, d.Excerpt.Text)
		if d.Excerpt.Column > 0 {
			prefix := len(fmt.Sprintf("  %d | ", d.Excerpt.Line))
			b.WriteString("\n")
			b.WriteString(strings.Repeat(" ", prefix+d.Excerpt.Column-1))
			b.WriteString("^")
		}
	}
	if d.Hint != "" {
		fmt.Fprintf(&b, "\n  hint: %s", d.Hint)
	}
	return b.String()
}
