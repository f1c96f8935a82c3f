package launcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProber fails until the given attempt succeeds (0 = never).
type fakeProber struct {
	succeedOn int32
	attempts  atomic.Int32
	block     bool // wait for the attempt context instead of answering
}

func (f *fakeProber) Probe(ctx context.Context, _ string) error {
	n := f.attempts.Add(1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.succeedOn != 0 && n >= f.succeedOn {
		return nil
	}
	return errors.New("connection refused")
}

func TestWaitHealthy_SucceedsAfterRetries(t *testing.T) {
	p := &fakeProber{succeedOn: 3}
	err := WaitHealthy(context.Background(), p, "/api/health", HealthPolicy{
		Timeout:        2 * time.Second,
		Interval:       10 * time.Millisecond,
		AttemptTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), p.attempts.Load())
}

func TestWaitHealthy_Timeout(t *testing.T) {
	p := &fakeProber{}
	start := time.Now()
	err := WaitHealthy(context.Background(), p, "/api/health", HealthPolicy{
		Timeout:        200 * time.Millisecond,
		Interval:       20 * time.Millisecond,
		AttemptTimeout: 50 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrHealthTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Greater(t, p.attempts.Load(), int32(2))
}

func TestWaitHealthy_AttemptTimeoutBoundsHangingServer(t *testing.T) {
	p := &fakeProber{block: true}
	start := time.Now()
	err := WaitHealthy(context.Background(), p, "/api/health", HealthPolicy{
		Timeout:        150 * time.Millisecond,
		Interval:       10 * time.Millisecond,
		AttemptTimeout: 40 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrHealthTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitHealthy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	err := WaitHealthy(ctx, &fakeProber{}, "/api/health", HealthPolicy{
		Timeout:        5 * time.Second,
		Interval:       10 * time.Millisecond,
		AttemptTimeout: 50 * time.Millisecond,
	})
	require.ErrorIs(t, err, context.Canceled)
}
