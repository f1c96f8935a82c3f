package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/jkh/internal/backup"
	"github.com/alfredjeanlab/jkh/internal/config"
	"github.com/alfredjeanlab/jkh/internal/store"
	"github.com/alfredjeanlab/jkh/internal/store/postgres"
	"github.com/alfredjeanlab/jkh/internal/store/sqlite"
)

// openStore connects to PostgreSQL when database_url is set and otherwise
// opens the embedded SQLite file under the root.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("store opened", "backend", "postgres")
		return s, nil
	}

	path := cfg.Path(cfg.DatabasePath)
	s, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	slog.Info("store opened", "backend", "sqlite", "path", path)
	return s, nil
}

// backupDestinations returns the file destination under backups/ plus S3
// when a bucket is configured.
func backupDestinations(ctx context.Context, cfg *config.Config) ([]backup.Destination, error) {
	dests := []backup.Destination{backup.NewFileDestination(cfg.Path("backups"), cfg.BackupKeep)}
	if cfg.BackupS3Bucket != "" {
		s3Dest, err := backup.NewS3Destination(ctx,
			cfg.BackupS3Bucket,
			cfg.BackupS3Key,
			cfg.BackupS3Region,
			cfg.BackupS3Endpoint,
		)
		if err != nil {
			return dests, fmt.Errorf("create S3 backup destination: %w", err)
		}
		dests = append(dests, s3Dest)
		slog.Info("backup S3 destination enabled", "bucket", cfg.BackupS3Bucket, "key", cfg.BackupS3Key)
	}
	return dests, nil
}
