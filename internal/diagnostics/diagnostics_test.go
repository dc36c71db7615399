package diagnostics

import (
	"strings"
	"testing"
)

func TestKindFatal(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{ConfigError, true},
		{OutputWriteError, true},
		{DiscoveryError, false},
		{CacheLoadError, false},
		{TemplateSyntaxError, false},
		{CrossReferenceBroken, false},
		{AssetProcessingError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Fatal(); got != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestDiagnosticError(t *testing.T) {
	d := Newf(TemplateSyntaxError, "unexpected %q", "}}").
		WithPhase("render").
		WithPath("templates/page.html")

	got := d.Error()
	for _, want := range []string{"template-syntax", "[render]", "templates/page.html", `unexpected "}}"`} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestDiagnosticFormat(t *testing.T) {
	d := New(TemplateSyntaxError, "function \"boom\" not defined").
		WithPath("templates/single.html").
		WithExcerpt(12, 9, `{{ boom .Page }}`).
		WithHint("check the template function name")

	got := d.Format()
	if !strings.Contains(got, "12 | {{ boom .Page }}") {
		t.Errorf("Format() missing excerpt line:\n%s", got)
	}
	if !strings.Contains(got, "^") {
		t.Errorf("Format() missing caret marker:\n%s", got)
	}
	if !strings.Contains(got, "hint: check the template function name") {
		t.Errorf("Format() missing hint:\n%s", got)
	}
}
