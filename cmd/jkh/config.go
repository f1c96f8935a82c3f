package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Print the effective configuration",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if jsonOutput {
			configFormat = "json"
		}
		switch configFormat {
		case "json":
			return printJSON(cmd.OutOrStdout(), cfg.Map())
		case "toml":
			if err := toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg.Map()); err != nil {
				return fmt.Errorf("encoding TOML: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("unknown format %q (must be json or toml)", configFormat)
		}
	},
}

func init() {
	configCmd.Flags().StringVar(&configFormat, "format", "json", "output format (json or toml)")
}
