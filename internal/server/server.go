// Package server implements the HTTP API over the key/value store, the
// static asset server for the web bundle, and the change stream.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/jkh/internal/events"
	"github.com/alfredjeanlab/jkh/internal/metrics"
	"github.com/alfredjeanlab/jkh/internal/store"
)

// Info describes the running installation for /api/config and /api/health.
type Info struct {
	AppName   string
	Host      string
	Port      int
	WebIndex  string
	Root      string
	BundleDir string
	Threads   int // concurrent request handlers; <= 0 means unlimited
}

// KVServer holds the process-wide store handle and serves every route.
type KVServer struct {
	store     store.Store
	publisher events.Publisher // external publisher fanned out with sseHub
	sseHub    *sseHub
	metrics   *metrics.Metrics
	assets    *Assets
	info      Info
	startedAt time.Time
}

// NewKVServer returns a KVServer backed by the given store. Store calls are
// instrumented on m; events go to p and to connected stream clients.
func NewKVServer(s store.Store, p events.Publisher, m *metrics.Metrics, assets *Assets, info Info) *KVServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if m == nil {
		m = metrics.New(metrics.DefaultNamespace)
	}
	hub := newSSEHub()
	return &KVServer{
		store:     store.Instrument(s, m),
		publisher: events.Fanout{hub, p},
		sseHub:    hub,
		metrics:   m,
		assets:    assets,
		info:      info,
		startedAt: time.Now(),
	}
}

// publish sends a change event to NATS and stream clients. Failures are
// logged and do not affect the response.
func (s *KVServer) publish(ctx context.Context, topic string, event any) {
	err := s.publisher.Publish(ctx, topic, event)
	if err != nil {
		slog.Warn("failed to publish event", "topic", topic, "owner", events.OwnerOf(event), "error", err)
	}
	s.metrics.EventPublished(topic, err)
}
