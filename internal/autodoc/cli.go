package autodoc

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bengal-ssg/bengal/internal/config"
)

// cliExtractor captures `--help` output from autodoc.cli.command: one index
// page for the root command and one page per subcommand found in its help
// text (the indented list under a "Commands:" heading).
type cliExtractor struct{}

func (e *cliExtractor) Name() string { return "cli" }

func (e *cliExtractor) Extract(ctx context.Context, cfg *config.Config) ([]VirtualSource, error) {
	command := cfg.Autodoc.CLI.Command
	if command == "" {
		return nil, fmt.Errorf("autodoc.cli.command is not configured")
	}
	parts := strings.Fields(command)
	tool := filepath.Base(parts[0])

	rootHelp, err := helpOutput(ctx, cfg.RootPath, parts)
	if err != nil {
		return nil, err
	}

	sources := []VirtualSource{{
		Path:    "_index.md",
		Content: renderCLIHelp(tool, tool, rootHelp),
	}}

	for _, sub := range subcommands(rootHelp) {
		argv := append(append([]string(nil), parts...), sub)
		subHelp, err := helpOutput(ctx, cfg.RootPath, argv)
		if err != nil {
			return nil, fmt.Errorf("subcommand %s: %w", sub, err)
		}
		sources = append(sources, VirtualSource{
			Path:    sub + ".md",
			Content: renderCLIHelp(tool+" "+sub, sub, subHelp),
		})
	}
	return sources, nil
}

// helpOutput runs the command with --help appended. Tools that print help
// with a non-zero exit are accepted as long as they produced output.
func helpOutput(ctx context.Context, dir string, parts []string) (string, error) {
	args := append(append([]string(nil), parts[1:]...), "--help")
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil && len(strings.TrimSpace(string(out))) == 0 {
		return "", fmt.Errorf("running %s --help: %w", strings.Join(parts, " "), err)
	}
	return string(out), nil
}

// subcommands parses the indented name list under a "Commands:" or
// "Available Commands:" heading, the layout cobra and most CLI frameworks
// print.
func subcommands(help string) []string {
	var subs []string
	seen := make(map[string]bool)
	in := false

	scanner := bufio.NewScanner(strings.NewReader(help))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasSuffix(trimmed, "Commands:") {
			in = true
			continue
		}
		if !in {
			continue
		}
		if trimmed == "" || !strings.HasPrefix(line, " ") {
			in = false
			continue
		}

		name := strings.Fields(trimmed)[0]
		if name == "help" || seen[name] {
			continue
		}
		seen[name] = true
		subs = append(subs, name)
	}
	return subs
}

func renderCLIHelp(title, slug, help string) []byte {
	var b strings.Builder
	b.WriteString(frontmatter(
		[2]string{"title", title},
		[2]string{"layout", "autodoc"},
		[2]string{"command", slug},
	))
	fmt.Fprintf(&b, "```text\n%s\n```\n", strings.TrimRight(help, "\n"))
	return []byte(b.String())
}
