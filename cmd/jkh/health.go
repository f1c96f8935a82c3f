package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/jkh/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a running server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		report, err := c.Health(cmd.Context())
		if report == nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if perr := printJSON(out, report); perr != nil {
				return perr
			}
		} else {
			status := ui.RenderOK(report.Status)
			if report.Status != "ok" {
				status = ui.RenderError(report.Status)
			}
			bundle := "-"
			if report.BundleDir != nil {
				bundle = *report.BundleDir
			}
			uptime := time.Duration(report.UptimeSeconds * float64(time.Second)).Round(time.Second)

			fmt.Fprintf(out, "Health:      %s\n", status)
			fmt.Fprintf(out, "App:         %s\n", report.App)
			fmt.Fprintf(out, "Port:        %d\n", report.Port)
			fmt.Fprintf(out, "Root:        %s\n", report.Root)
			fmt.Fprintf(out, "Web dir:     %s (index: %t)\n", report.WebDir, report.IndexExists)
			fmt.Fprintf(out, "Packaged:    %t (bundle: %s)\n", report.Packaged, bundle)
			fmt.Fprintf(out, "Store:       %s\n", report.Store)
			fmt.Fprintf(out, "Uptime:      %s %s\n", uptime, ui.RenderMuted("(started "+humanize.Time(time.Now().Add(-uptime))+")"))
			fmt.Fprintf(out, "Memory:      %s\n", humanize.IBytes(report.RSSBytes))
		}

		if report.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", report.Status)
		}
		return nil
	},
}

func init() {
	addURLFlag(healthCmd)
}
