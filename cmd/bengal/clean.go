package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove generated output",
	Long:  "Delete the output directory; with --cache the build cache goes too.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		targets := []string{cfg.OutputPath()}
		if withCache, _ := cmd.Flags().GetBool("cache"); withCache {
			targets = append(targets, cfg.CachePath())
		}

		if force, _ := cmd.Flags().GetBool("force"); !force {
			if os.Getenv("CI") != "" {
				return fmt.Errorf("refusing to prompt in CI; pass --force")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delete %s? [y/N] ", strings.Join(targets, " and "))
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			switch strings.ToLower(strings.TrimSpace(answer)) {
			case "y", "yes":
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		for _, dir := range targets {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("removing %s: %w", dir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", dir)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().Bool("force", false, "delete without asking")
	cleanCmd.Flags().Bool("cache", false, "also delete the build cache")

	rootCmd.AddCommand(cleanCmd)
}
