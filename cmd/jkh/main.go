// Command jkh runs the per-owner key/value service: the launcher that
// supervises the server, the server itself, and client/admin commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/jkh/internal/config"
	"github.com/alfredjeanlab/jkh/internal/ui"
)

var (
	rootFlag   string
	jsonOutput bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "jkh",
	Short: "Per-owner key/value store with a bundled web app",
	Long: `jkh serves a per-owner key/value API and a static web bundle.

Run without a command to launch: pick a port, start the server in the
background, wait until it is healthy and open the browser.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.ForceNoColor()
		}
	},
	RunE: runLaunch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "installation root (default $JKH_ROOT or the executable's directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	addLaunchFlags(rootCmd)

	rootCmd.AddGroup(
		&cobra.Group{ID: "app", Title: "Application:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Application
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initdbCmd)

	// Data
	rootCmd.AddCommand(kvCmd)
	rootCmd.AddCommand(backupCmd)

	// System
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the installation root, creates its directory layout
// and loads the effective configuration with cmd's flags applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	root, err := config.ResolveRoot(rootFlag)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureLayout(root); err != nil {
		return nil, err
	}
	cfg, err := config.Load(root, config.WithFlags(cmd.Flags()))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		prefix := "Error:"
		if !noColor && ui.ShouldUseColor(os.Stderr) {
			prefix = ui.RenderError(prefix)
		}
		fmt.Fprintln(os.Stderr, prefix, err)
		os.Exit(1)
	}
}
