package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bengal-ssg/bengal/internal/theme"
)

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Manage theme templates",
	Long:  "Copy theme templates into the project for editing and keep them current.",
}

var themeSwizzleCmd = &cobra.Command{
	Use:   "swizzle <template>",
	Short: "Copy a theme template into the project",
	Long: "Copy a template out of the active theme into templates/ so it can be\n" +
		"edited, recording its origin for later update checks. For example:\n" +
		"`bengal theme swizzle _default/single.html`.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := themeManager(cmd)
		if err != nil {
			return err
		}

		rec, err := mgr.Swizzle(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Swizzled %s (from %s)\n", rec.Target, rec.Source)
		return nil
	},
}

var themeSwizzleListCmd = &cobra.Command{
	Use:   "swizzle-list",
	Short: "List swizzled templates and their state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := themeManager(cmd)
		if err != nil {
			return err
		}

		statuses, err := mgr.List()
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No swizzled templates.")
			return nil
		}

		for _, st := range statuses {
			fmt.Fprintf(cmd.OutOrStdout(), "%-48s %-18s %s\n",
				st.Record.Target, st.State, st.Record.Theme)
		}
		return nil
	},
}

var themeSwizzleUpdateCmd = &cobra.Command{
	Use:   "swizzle-update",
	Short: "Refresh unmodified swizzled templates from the theme",
	Long: "Re-copy swizzled templates whose upstream changed, skipping any with\n" +
		"local edits.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := themeManager(cmd)
		if err != nil {
			return err
		}

		results, err := mgr.Update()
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No swizzled templates.")
			return nil
		}

		updated := 0
		for _, res := range results {
			if res.Updated {
				updated++
				fmt.Fprintf(cmd.OutOrStdout(), "updated  %s\n", res.Target)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kept     %s (%s)\n", res.Target, res.State)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d template(s) updated\n", updated, len(results))
		return nil
	},
}

func themeManager(cmd *cobra.Command) (*theme.Manager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return theme.NewManager(cfg, newLogger(cmd, slog.LevelWarn)), nil
}

func init() {
	themeCmd.AddCommand(themeSwizzleCmd)
	themeCmd.AddCommand(themeSwizzleListCmd)
	themeCmd.AddCommand(themeSwizzleUpdateCmd)

	rootCmd.AddCommand(themeCmd)
}
