package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/jkh/internal/config"
	"github.com/alfredjeanlab/jkh/internal/launcher"
)

var launchCmd = &cobra.Command{
	Use:     "launch",
	Short:   "Start the server in the background and open the browser",
	GroupID: "app",
	RunE:    runLaunch,
}

func init() {
	addLaunchFlags(launchCmd)
}

// addLaunchFlags registers the flags that override launcher config keys.
func addLaunchFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", config.DefaultHost, "address to bind")
	cmd.Flags().Int("port", config.DefaultPort, "port for the fixed-port policy")
	cmd.Flags().Int("threads", config.DefaultThreads, "concurrent request handlers")
	cmd.Flags().Bool("open-browser", true, "open the browser once the server is healthy")
}

// runLaunch supervises `jkh serve` until interrupted. Port and health
// failures are fatal.
func runLaunch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return launcher.New(cfg).Run(ctx)
}
