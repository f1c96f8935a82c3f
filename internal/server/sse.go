package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/jkh/internal/events"
	"github.com/alfredjeanlab/jkh/internal/model"
)

const (
	// sseRingBufferSize is the number of recent events kept in memory for
	// Last-Event-ID reconnection support.
	sseRingBufferSize = 1000

	// sseKeepaliveInterval is how often keepalive comments are sent to
	// prevent connection timeouts.
	sseKeepaliveInterval = 15 * time.Second
)

// sseEventNames maps event topics onto SSE event names.
var sseEventNames = map[string]string{
	events.TopicRecordSet:     "set",
	events.TopicRecordDeleted: "deleted",
}

// sseEvent is a single event stored in the ring buffer and sent to SSE clients.
type sseEvent struct {
	ID    uint64 // monotonically increasing sequence number
	Owner string
	Name  string
	Data  []byte // JSON-encoded payload
}

// sseHub fans out record changes to stream clients of the same owner.
// It maintains an in-memory ring buffer for Last-Event-ID reconnection.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  atomic.Uint64

	ringMu  sync.RWMutex
	ring    [sseRingBufferSize]sseEvent
	ringPos int // next write position (wraps around)
	ringLen int // number of valid entries (up to sseRingBufferSize)
}

// sseClient represents a single connected SSE consumer.
type sseClient struct {
	owner string
	ch    chan *sseEvent
}

var _ events.Publisher = (*sseHub)(nil)

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
	}
}

// Publish implements events.Publisher. Events without an owner or with an
// unknown topic are ignored.
func (h *sseHub) Publish(_ context.Context, topic string, event any) error {
	name, ok := sseEventNames[topic]
	owner := events.OwnerOf(event)
	if !ok || owner == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event for stream: %w", err)
	}
	h.broadcast(owner, name, payload)
	return nil
}

// Close disconnects nothing; handlers end with their request context.
func (h *sseHub) Close() error { return nil }

// broadcast records an event and sends it to every client of owner.
func (h *sseHub) broadcast(owner, name string, payload []byte) {
	evt := &sseEvent{
		ID:    h.nextID.Add(1),
		Owner: owner,
		Name:  name,
		Data:  payload,
	}

	h.ringMu.Lock()
	h.ring[h.ringPos] = *evt
	h.ringPos = (h.ringPos + 1) % sseRingBufferSize
	if h.ringLen < sseRingBufferSize {
		h.ringLen++
	}
	h.ringMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.owner != owner {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// Slow client; drop rather than block the writer.
		}
	}
}

// subscribe registers a new SSE client and returns it. Call unsubscribe when done.
func (h *sseHub) subscribe(owner string) *sseClient {
	c := &sseClient{
		owner: owner,
		ch:    make(chan *sseEvent, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns buffered events for owner with ID > lastID, in order.
func (h *sseHub) eventsSince(owner string, lastID uint64) []*sseEvent {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	var result []*sseEvent
	start := h.ringPos - h.ringLen
	if start < 0 {
		start += sseRingBufferSize
	}
	for i := range h.ringLen {
		evt := &h.ring[(start+i)%sseRingBufferSize]
		if evt.ID > lastID && evt.Owner == owner {
			copied := *evt
			result = append(result, &copied)
		}
	}
	return result
}

// handleStream handles GET /api/store/stream?owner= (SSE endpoint).
func (s *KVServer) handleStream(w http.ResponseWriter, r *http.Request) {
	owner, err := model.ValidateOwner(r.URL.Query().Get("owner"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, model.CodeInternal)
		return
	}

	client := s.sseHub.subscribe(owner)
	defer s.sseHub.unsubscribe(client)
	s.metrics.SSEConnected()
	defer s.metrics.SSEDisconnected()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, evt := range s.sseHub.eventsSince(owner, lastID) {
				writeSSEEvent(w, evt)
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the writer.
func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Name)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
