package main

import (
	"fmt"

	"mightyhooks/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Print which config file would be used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Locate(configFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)

		if cfg, err := config.Load(path); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "blake3: %s\n", cfg.Fingerprint())
		}
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s (%d hooks)\n", cfg.Path(), len(cfg.Hooks))
		for _, key := range cfg.Routes().Keys() {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s -> %d destination(s)\n", key, len(cfg.Hooks[key].Out))
		}
		for _, w := range cfg.Warnings() {
			fmt.Fprintf(cmd.OutOrStdout(), "Warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configFindCmd)
	configCmd.AddCommand(configValidateCmd)
}
