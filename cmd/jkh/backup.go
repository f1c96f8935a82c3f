package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/jkh/internal/backup"
	"github.com/alfredjeanlab/jkh/internal/ui"
)

var backupOutput string

var backupCmd = &cobra.Command{
	Use:     "backup",
	Short:   "Write, list and restore JSONL snapshots",
	GroupID: "data",
}

var backupNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Write one snapshot to the configured destinations (or --output)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if backupOutput != "" {
			out := cmd.OutOrStdout()
			if backupOutput != "-" {
				f, err := os.Create(backupOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			n, err := backup.ExportJSONL(cmd.Context(), st, out)
			if err != nil {
				return err
			}
			if backupOutput != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d records to %s\n", ui.RenderOK("exported"), n, backupOutput)
			}
			return nil
		}

		dests, err := backupDestinations(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if err := backup.NewScheduler(st, dests, 0, nil, nil).RunOnce(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s snapshot written to %d destination(s)\n", ui.RenderOK("backup"), len(dests))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local snapshots, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		names, err := backup.NewFileDestination(cfg.Path("backups"), cfg.BackupKeep).Snapshots()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), names)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tSIZE\tWRITTEN")
		for _, name := range names {
			info, err := os.Stat(name)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", filepath.Base(name), humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
		}
		w.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d snapshots in %s\n", len(names), cfg.Path("backups"))
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Upsert every record of a snapshot in one transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := backup.ImportJSONL(cmd.Context(), st, f)
		if err != nil {
			return fmt.Errorf("restore %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s records from %s\n", ui.RenderOK("restored"), humanize.Comma(int64(n)), args[0])
		return nil
	},
}

func init() {
	backupNowCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "write the snapshot to this file (- for stdout) instead")
	backupCmd.AddCommand(backupNowCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}
