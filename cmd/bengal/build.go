package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bengal-ssg/bengal/internal/build"
	"github.com/bengal-ssg/bengal/internal/diagnostics"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the site",
	Long:  "Build the site into the output directory, rebuilding only what changed since the last build.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputPath, _ := cmd.Flags().GetString("input-json"); inputPath != "" {
			return runBuildFromInput(cmd, inputPath)
		}
		return runBuild(cmd)
	},
}

func init() {
	buildCmd.Flags().Bool("incremental", false, "force incremental mode on or off (default: auto)")
	buildCmd.Flags().Bool("parallel", true, "render pages in parallel")
	buildCmd.Flags().Bool("sequential", false, "render pages one at a time")
	buildCmd.Flags().Bool("strict", false, "exit non-zero when any page fails")
	buildCmd.Flags().Bool("explain", false, "print why each page was rebuilt or skipped")
	buildCmd.Flags().Bool("explain-json", false, "like --explain, as JSON")
	buildCmd.Flags().Bool("dry-run", false, "plan the build without writing any output")
	buildCmd.Flags().String("profile", "", "flag preset: writer, theme-dev, or dev")
	buildCmd.Flags().Bool("force", false, "rebuild everything, ignoring the cache")
	buildCmd.Flags().StringP("output", "o", "", "output directory (overrides build.output_dir)")
	buildCmd.Flags().Bool("drafts", false, "include draft content")
	buildCmd.Flags().Bool("future", false, "include future-dated content")
	buildCmd.Flags().Bool("minify", false, "minify HTML output")
	buildCmd.Flags().String("base-url", "", "override site.baseurl")

	// Subprocess entry point used by the dev server's out-of-process
	// executor. Not for interactive use.
	buildCmd.Flags().String("input-json", "", "read build input JSON from a file, or - for stdin")
	_ = buildCmd.Flags().MarkHidden("input-json")

	buildCmd.MarkFlagsMutuallyExclusive("parallel", "sequential")
	buildCmd.MarkFlagsMutuallyExclusive("explain", "explain-json")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command) error {
	profile, _ := cmd.Flags().GetString("profile")
	if err := validProfile(profile); err != nil {
		return &exitError{code: 3, err: err}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fatalExit(cmd, err)
	}
	cfg.WithOverrides(buildOverrides(cmd.Flags()))

	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	var reporter build.ProgressReporter = build.NopReporter
	if verbose && !quiet {
		reporter = newConsoleReporter(cmd.OutOrStdout())
	}

	builder := build.New(cfg, build.Options{
		Logger:   newLogger(cmd, slog.LevelWarn),
		Reporter: reporter,
	})

	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	drafts, _ := cmd.Flags().GetBool("drafts")
	future, _ := cmd.Flags().GetBool("future")

	stats, err := builder.Build(cmd.Context(), build.Input{
		Force:   force,
		DryRun:  dryRun,
		Drafts:  drafts,
		Future:  future,
		Profile: profile,
	})
	if err != nil {
		return fatalExit(cmd, err)
	}

	if explainJSON, _ := cmd.Flags().GetBool("explain-json"); explainJSON {
		if err := stats.Manifest.WriteExplainJSON(cmd.OutOrStdout()); err != nil {
			return fatalExit(cmd, err)
		}
	} else if explain, _ := cmd.Flags().GetBool("explain"); explain {
		if err := stats.Manifest.WriteExplain(cmd.OutOrStdout()); err != nil {
			return fatalExit(cmd, err)
		}
	}

	for _, pe := range stats.PageErrors {
		fmt.Fprintln(cmd.ErrOrStderr(), pe.Diag.Format())
	}

	if !quiet {
		printBuildSummary(cmd.OutOrStdout(), stats, dryRun)
	}

	if cfg.Build.Strict && stats.Failed() {
		return &exitError{code: 2}
	}
	return nil
}

// runBuildFromInput is the subprocess half of the out-of-process executor:
// it decodes a build.Input from the given file (or stdin for "-"), runs one
// build, and writes the resulting stats as JSON to stdout. Logs go to stderr
// so stdout stays parseable. Page errors do not fail the process; the parent
// reads them out of the stats.
func runBuildFromInput(cmd *cobra.Command, path string) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return &exitError{code: 3, err: fmt.Errorf("opening build input: %w", err)}
		}
		defer f.Close()
		r = f
	}

	var in build.Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return &exitError{code: 3, err: fmt.Errorf("decoding build input: %w", err)}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return &exitError{code: 3, err: err}
	}

	builder := build.New(cfg, build.Options{Logger: newLogger(cmd, slog.LevelWarn)})
	stats, err := builder.Build(cmd.Context(), in)
	if err != nil {
		return &exitError{code: 3, err: err}
	}

	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(stats); err != nil {
		return &exitError{code: 3, err: fmt.Errorf("encoding build stats: %w", err)}
	}
	return nil
}

// buildOverrides collects the config overrides for flags the user actually
// set, keyed the way config.WithOverrides expects.
func buildOverrides(f *pflag.FlagSet) map[string]any {
	ov := make(map[string]any)
	if f.Changed("output") {
		v, _ := f.GetString("output")
		ov["output_dir"] = v
	}
	if f.Changed("base-url") {
		v, _ := f.GetString("base-url")
		ov["baseurl"] = v
	}
	if f.Changed("minify") {
		v, _ := f.GetBool("minify")
		ov["minify"] = v
	}
	if f.Changed("strict") {
		v, _ := f.GetBool("strict")
		ov["strict"] = v
	}
	if f.Changed("incremental") {
		v, _ := f.GetBool("incremental")
		ov["incremental"] = v
	}
	if f.Changed("sequential") {
		if v, _ := f.GetBool("sequential"); v {
			ov["parallel"] = false
		}
	} else if f.Changed("parallel") {
		v, _ := f.GetBool("parallel")
		ov["parallel"] = v
	}
	return ov
}

func validProfile(p string) error {
	switch p {
	case "", build.ProfileWriter, build.ProfileThemeDev, build.ProfileDev:
		return nil
	}
	return fmt.Errorf("unknown profile %q (expected writer, theme-dev, or dev)", p)
}

// fatalExit maps a fatal build error to exit code 3. Diagnostics print their
// full form, excerpt and hint included; anything else is left for main to
// report.
func fatalExit(cmd *cobra.Command, err error) error {
	var diag *diagnostics.Diagnostic
	if errors.As(err, &diag) {
		fmt.Fprintln(cmd.ErrOrStderr(), diag.Format())
		return &exitError{code: 3}
	}
	return &exitError{code: 3, err: err}
}

func printBuildSummary(w io.Writer, stats *build.Stats, dryRun bool) {
	mode := "full"
	if stats.Incremental {
		mode = "incremental"
	}
	dur := stats.Duration.Round(time.Millisecond)

	if dryRun {
		fmt.Fprintf(w, "Dry run (%s): %d page(s) would rebuild, %d skipped\n",
			mode, len(stats.Manifest.Entries), len(stats.Manifest.Skipped))
		return
	}

	fmt.Fprintf(w, "Build complete (%s): %d page(s) rendered, %d skipped, %d asset(s) in %s\n",
		mode, stats.Rendered, stats.Skipped, stats.AssetsProcessed, dur)
	if len(stats.Warnings) > 0 {
		fmt.Fprintf(w, "%d warning(s)\n", len(stats.Warnings))
	}
	if stats.Failed() {
		fmt.Fprintf(w, "%d page(s) failed\n", len(stats.PageErrors))
	}
}
