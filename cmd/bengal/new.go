package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bengal-ssg/bengal/internal/scaffold"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new site or page",
}

var newSiteCmd = &cobra.Command{
	Use:   "site <name>",
	Short: "Create a new site",
	Long:  "Create a site skeleton in a new directory: config, content tree, and a first post.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		seed, _ := cmd.Flags().GetBool("seed")

		var err error
		if seed {
			err = scaffold.NewSiteSeeded(dir)
		} else {
			err = scaffold.NewSite(dir)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Site created: %s/\n\n", dir)
		fmt.Fprintf(cmd.OutOrStdout(), "  cd %s\n  bengal serve\n", dir)
		return nil
	},
}

var newPageCmd = &cobra.Command{
	Use:   "page <path>",
	Short: "Create a new page",
	Long: "Create a Markdown page under content/. The path may carry sections and a\n" +
		"date prefix, e.g. `bengal new page docs/install` or\n" +
		"`bengal new page blog/2025-06-01-release-notes`.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining site root: %w", err)
		}

		rel, err := scaffold.NewPage(root, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Page created: %s\n", rel)
		return nil
	},
}

func init() {
	newSiteCmd.Flags().Bool("seed", false, "fill the new site with demo content")

	newCmd.AddCommand(newSiteCmd)
	newCmd.AddCommand(newPageCmd)

	rootCmd.AddCommand(newCmd)
}
