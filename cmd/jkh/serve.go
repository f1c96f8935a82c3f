package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/jkh/internal/backup"
	"github.com/alfredjeanlab/jkh/internal/config"
	"github.com/alfredjeanlab/jkh/internal/events"
	"github.com/alfredjeanlab/jkh/internal/metrics"
	"github.com/alfredjeanlab/jkh/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP server in the foreground",
	GroupID: "app",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := slog.Default()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (JKH_NATS_URL not set)")
		}

		m := metrics.New(metrics.DefaultNamespace)
		assets := server.ResolveAssets(cfg.WebIndex, server.WebDirs(cfg.Root, cfg.BundleDir))
		if !assets.IndexExists() {
			logger.Warn("web index not found", "web_dir", assets.Dir(), "web_index", cfg.WebIndex)
		}
		kv := server.NewKVServer(st, publisher, m, assets, server.Info{
			AppName:   cfg.AppName,
			Host:      cfg.Host,
			Port:      cfg.Port,
			WebIndex:  cfg.WebIndex,
			Root:      cfg.Root,
			BundleDir: cfg.BundleDir,
			Threads:   cfg.Threads,
		})

		// Start the backup scheduler unless disabled.
		var scheduler *backup.Scheduler
		if cfg.BackupInterval > 0 {
			dests, err := backupDestinations(context.Background(), cfg)
			if err != nil {
				logger.Error("backup destination unavailable", "err", err)
			}
			scheduler = backup.NewScheduler(st, dests, cfg.BackupInterval, logger, m)
			scheduler.Start()
			logger.Info("backup scheduler started", "interval", cfg.BackupInterval, "destinations", len(dests))
		}

		logger.Info("jkh server started",
			"addr", cfg.Addr(),
			"root", cfg.Root,
			"web_dir", assets.Dir(),
			"threads", cfg.Threads,
		)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		serveErr := server.ListenAndServe(ctx, cfg.Addr(), kv.NewHTTPHandler(), cfg.Threads)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("backup scheduler stopped")
		}
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		if serveErr != nil {
			return serveErr
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", config.DefaultHost, "address to bind")
	serveCmd.Flags().Int("port", config.DefaultPort, "port to listen on")
	serveCmd.Flags().Int("threads", config.DefaultThreads, "concurrent request handlers")
}
