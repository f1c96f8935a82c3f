package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "kv-"
	fileSuffix = ".jsonl"
	fileLayout = "20060102T150405Z"
)

// FileDestination writes timestamped snapshots into a local directory and
// keeps only the newest ones.
type FileDestination struct {
	dir  string
	keep int // <= 0 keeps every snapshot
	now  func() time.Time
}

// NewFileDestination returns a destination writing into dir.
func NewFileDestination(dir string, keep int) *FileDestination {
	return &FileDestination{dir: dir, keep: keep, now: time.Now}
}

// Name implements Destination.
func (d *FileDestination) Name() string { return "file" }

// Write stores data as kv-YYYYMMDDTHHMMSSZ.jsonl. The file appears under its
// final name only once fully written.
func (d *FileDestination) Write(_ context.Context, data []byte) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, ".kv-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	name := filepath.Join(d.dir, filePrefix+d.now().UTC().Format(fileLayout)+fileSuffix)
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return d.prune()
}

// Snapshots returns the snapshot files in dir, oldest first.
func (d *FileDestination) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(n, filePrefix) && strings.HasSuffix(n, fileSuffix) {
			names = append(names, filepath.Join(d.dir, n))
		}
	}
	// The timestamp layout sorts lexically in time order.
	sort.Strings(names)
	return names, nil
}

func (d *FileDestination) prune() error {
	if d.keep <= 0 {
		return nil
	}
	names, err := d.Snapshots()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for len(names) > d.keep {
		if err := os.Remove(names[0]); err != nil {
			return fmt.Errorf("prune %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}
