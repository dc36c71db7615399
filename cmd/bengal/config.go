package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: "Print the effective configuration after defaults, the config file, and\n" +
		"environment overrides have been merged.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalExit(cmd, err)
		}

		if hashOnly, _ := cmd.Flags().GetBool("hash"); hashOnly {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Hash())
			return nil
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	configCmd.Flags().Bool("hash", false, "print only the configuration hash")

	rootCmd.AddCommand(configCmd)
}
