package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrHealthTimeout is returned when the child never answers its health
// endpoint with a 2xx status inside the overall window.
var ErrHealthTimeout = errors.New("server did not become healthy")

// Prober issues one health request and succeeds on a 2xx response.
type Prober interface {
	Probe(ctx context.Context, path string) error
}

// HealthPolicy bounds the health poll.
type HealthPolicy struct {
	Timeout        time.Duration // overall window
	Interval       time.Duration // pause between attempts
	AttemptTimeout time.Duration // per-request timeout
}

// WaitHealthy polls path until the first successful probe, the policy's
// window elapses, or ctx ends.
func WaitHealthy(ctx context.Context, p Prober, path string, policy HealthPolicy) error {
	deadline := time.Now().Add(policy.Timeout)
	var lastErr error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		lastErr = p.Probe(attemptCtx, path)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w after %d attempts in %s: %v", ErrHealthTimeout, attempt, policy.Timeout, lastErr)
		}
		wait := min(policy.Interval, remaining)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
