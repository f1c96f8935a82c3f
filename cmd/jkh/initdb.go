package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initdbCmd = &cobra.Command{
	Use:     "initdb",
	Short:   "Create the key/value schema (idempotent)",
	GroupID: "app",
	Long: `Apply the schema to the configured store directly, or ask a running
server to do it when --url is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverURL != "" {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			msg, err := c.InitDB(cmd.Context())
			if err != nil {
				return fmt.Errorf("initdb: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Init(cmd.Context()); err != nil {
			return fmt.Errorf("initdb: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "kv_store ready")
		return nil
	},
}

func init() {
	addURLFlag(initdbCmd)
}
