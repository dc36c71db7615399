package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bengal-ssg/bengal/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "bengal",
	Short: "An incremental static site generator",
	Long: "Bengal transforms Markdown content into a deployable static website,\n" +
		"rebuilding only the pages a change actually affects.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "bengal.yaml", "path to config file")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-error output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// exitError carries a specific process exit code out through cobra. A nil
// inner error means the command already reported the failure itself.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// loadConfig loads and validates the site configuration named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds a stderr text logger at the given level. --verbose lowers
// the level to Debug, --quiet discards everything.
func newLogger(cmd *cobra.Command, level slog.Level) *slog.Logger {
	if quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet"); quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
