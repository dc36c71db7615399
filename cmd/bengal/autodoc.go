package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bengal-ssg/bengal/internal/autodoc"
)

var autodocCmd = &cobra.Command{
	Use:   "autodoc [python|api|cli]...",
	Short: "Run documentation extractors",
	Long: "Run the configured documentation extractors and write their pages under\n" +
		".bengal/generated/, where the next build picks them up. With no arguments\n" +
		"every enabled extractor runs; naming extractors runs exactly those.",
	ValidArgs: []string{"python", "api", "cli"},
	Args:      cobra.OnlyValidArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		runner := autodoc.NewRunner(cfg, newLogger(cmd, slog.LevelInfo))
		res, err := runner.Run(cmd.Context(), args...)
		if err != nil {
			return err
		}

		total := 0
		for _, ex := range res.Extractors {
			total += ex.Pages
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %d page(s)\n", ex.Name, ex.Pages)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %d page(s); run `bengal build` to publish them\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(autodocCmd)
}
