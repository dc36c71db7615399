package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bengal-ssg/bengal/internal/build"
)

const (
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiReset = "\x1b[0m"
)

// colorEnabled reports whether progress output may use ANSI colors. NO_COLOR
// and CI both turn color off.
func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	return true
}

// consoleReporter prints one line per completed pipeline phase. Installed
// only under --verbose; normal builds print a single summary at the end.
type consoleReporter struct {
	out   io.Writer
	color bool
}

func newConsoleReporter(out io.Writer) *consoleReporter {
	return &consoleReporter{out: out, color: colorEnabled()}
}

func (r *consoleReporter) PhaseStart(string) {}

func (r *consoleReporter) PhaseDone(ps build.PhaseStats) {
	status := "ok"
	if ps.Warnings > 0 {
		status = fmt.Sprintf("%d warning(s)", ps.Warnings)
	}
	if ps.Errors > 0 {
		status = fmt.Sprintf("%d error(s)", ps.Errors)
	}
	if r.color {
		if ps.Errors > 0 {
			status = ansiRed + status + ansiReset
		} else {
			status = ansiGreen + status + ansiReset
		}
	}
	fmt.Fprintf(r.out, "  %-12s %5d item(s) %10s  %s\n",
		ps.Name, ps.Items, ps.Duration.Round(time.Millisecond), status)
}
