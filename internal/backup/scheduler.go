package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/jkh/internal/store"
)

// Destination is a backup target (local directory, S3).
type Destination interface {
	Name() string
	// Write stores one JSONL snapshot.
	Write(ctx context.Context, data []byte) error
}

// Recorder observes each destination write.
type Recorder interface {
	BackupCompleted(destination string, at time.Time, err error)
}

// Scheduler runs periodic backups to one or more destinations.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	recorder     Recorder

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval. rec may be nil.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger, rec Recorder) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		recorder:     rec,
	}
}

// Start begins periodic backups. It runs one immediately, then on each
// tick. A non-positive interval disables the scheduler.
func (s *Scheduler) Start() {
	if s.interval <= 0 || len(s.destinations) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current backup (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce exports one snapshot and writes it to every destination. A failed
// destination does not stop the others; all failures are returned joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, s.store, &buf)
	if err != nil {
		s.logger.Error("backup export failed", "err", err)
		for _, dest := range s.destinations {
			s.record(dest.Name(), err)
		}
		return err
	}
	data := buf.Bytes()

	var errs []error
	for _, dest := range s.destinations {
		err := dest.Write(ctx, data)
		s.record(dest.Name(), err)
		if err != nil {
			s.logger.Error("backup destination write failed", "destination", dest.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}

	s.logger.Info("backup completed", "destinations", len(s.destinations), "records", n, "bytes", len(data))
	return errors.Join(errs...)
}

func (s *Scheduler) record(dest string, err error) {
	if s.recorder != nil {
		s.recorder.BackupCompleted(dest, time.Now(), err)
	}
}
