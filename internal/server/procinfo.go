package server

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// processStats is a point-in-time sample of this process.
type processStats struct {
	RSS    uint64
	Uptime time.Duration
}

// sampleProcess reads RSS and start time from the OS. When the OS query
// fails the uptime is measured from fallbackStart and RSS is zero.
func sampleProcess(ctx context.Context, fallbackStart time.Time) processStats {
	stats := processStats{Uptime: time.Since(fallbackStart)}

	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return stats
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.RSS = mem.RSS
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
		stats.Uptime = time.Since(time.UnixMilli(created))
	}
	return stats
}
