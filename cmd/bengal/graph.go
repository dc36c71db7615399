package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bengal-ssg/bengal/internal/cache"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the build dependency graph",
	Long: "Print the dependency graph recorded by the last build: which templates,\n" +
		"data files, assets, and pages each page was rendered from.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		dbPath := filepath.Join(cfg.CachePath(), cache.DBFileName)
		if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(cmd.OutOrStdout(), "No build cache found. Run `bengal build` first.")
			return nil
		}

		mgr, err := cache.Open(cfg.CachePath())
		if err != nil {
			return fmt.Errorf("opening build cache: %w", err)
		}
		defer mgr.Close()

		if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
			return printGraphStats(cmd.OutOrStdout(), mgr)
		}
		return printGraphTree(cmd.OutOrStdout(), mgr)
	},
}

func printGraphTree(out io.Writer, mgr *cache.Manager) error {
	deps, err := mgr.AllDeps()
	if err != nil {
		return fmt.Errorf("reading dependency records: %w", err)
	}
	if len(deps) == 0 {
		fmt.Fprintln(out, "Dependency graph is empty. Run `bengal build` first.")
		return nil
	}

	sort.Slice(deps, func(i, j int) bool { return deps[i].Key < deps[j].Key })
	for i, rec := range deps {
		if i > 0 {
			fmt.Fprintln(out)
		}
		writeDepTree(out, rec)
	}
	return nil
}

// writeDepTree prints one page's dependencies as a tree, grouped by edge
// kind. Empty groups are dropped so the connectors stay honest.
func writeDepTree(out io.Writer, rec cache.DepRecord) {
	type group struct {
		name  string
		items []string
	}
	var groups []group
	for _, g := range []group{
		{"templates", rec.Templates},
		{"data", rec.DataFiles},
		{"assets", rec.Assets},
		{"pages", rec.Pages},
	} {
		if len(g.items) > 0 {
			sort.Strings(g.items)
			groups = append(groups, g)
		}
	}

	fmt.Fprintln(out, rec.Key)
	if len(groups) == 0 {
		fmt.Fprintln(out, "└── (no recorded dependencies)")
		return
	}

	for gi, g := range groups {
		connector, childPrefix := "├── ", "│   "
		if gi == len(groups)-1 {
			connector, childPrefix = "└── ", "    "
		}
		fmt.Fprintf(out, "%s%s\n", connector, g.name)
		for ii, item := range g.items {
			itemConn := "├── "
			if ii == len(g.items)-1 {
				itemConn = "└── "
			}
			fmt.Fprintf(out, "%s%s%s\n", childPrefix, itemConn, item)
		}
	}
}

func printGraphStats(out io.Writer, mgr *cache.Manager) error {
	deps, err := mgr.AllDeps()
	if err != nil {
		return fmt.Errorf("reading dependency records: %w", err)
	}
	st, err := mgr.Stats()
	if err != nil {
		return fmt.Errorf("reading cache stats: %w", err)
	}

	var tmplEdges, dataEdges, assetEdges, pageEdges int
	for _, rec := range deps {
		tmplEdges += len(rec.Templates)
		dataEdges += len(rec.DataFiles)
		assetEdges += len(rec.Assets)
		pageEdges += len(rec.Pages)
	}

	fmt.Fprintf(out, "pages tracked:   %d\n", len(deps))
	fmt.Fprintf(out, "template edges:  %d\n", tmplEdges)
	fmt.Fprintf(out, "data edges:      %d\n", dataEdges)
	fmt.Fprintf(out, "asset edges:     %d\n", assetEdges)
	fmt.Fprintf(out, "page edges:      %d\n", pageEdges)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "cached pages:    %d\n", st.Pages)
	fmt.Fprintf(out, "fingerprints:    %d\n", st.Fingerprints)
	fmt.Fprintf(out, "outputs:         %d\n", st.Outputs)
	fmt.Fprintf(out, "assets:          %d\n", st.Assets)
	fmt.Fprintf(out, "events:          %d\n", st.Events)
	fmt.Fprintf(out, "store objects:   %d (%s)\n", st.StoreObjects, formatBytes(st.StoreBytes))
	return nil
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	graphCmd.Flags().Bool("tree", false, "print per-page dependency trees (the default)")
	graphCmd.Flags().Bool("stats", false, "print edge and cache totals instead")

	graphCmd.MarkFlagsMutuallyExclusive("tree", "stats")

	rootCmd.AddCommand(graphCmd)
}
