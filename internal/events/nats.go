package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// OwnerHeader carries the record owner on every published message so
// subscribers can filter without decoding the payload.
const OwnerHeader = "Jkh-Owner"

const (
	subscriberBuffer = 64
	flushTimeout     = time.Second
)

// connect dials url with reconnection enabled, naming the connection so it
// shows up in NATS monitoring.
func connect(url, name string, opts []nats.Option) (*nats.Conn, error) {
	all := append([]nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "jkh-server", opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	if owner := OwnerOf(event); owner != "" {
		msg.Header.Set(OwnerHeader, owner)
	}
	return p.conn.PublishMsg(msg)
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	_ = p.conn.FlushTimeout(flushTimeout)
	p.conn.Close()
	return nil
}

// NATSSubscriber delivers record events from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects with automatic reconnection. Extra options such
// as disconnect handlers are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "jkh-watch", opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers messages for topic, which may use NATS wildcards such
// as "kv.record.>". Messages arriving while the channel is full are dropped.
// cancel unsubscribes, discards anything still buffered and closes the
// channel; it is safe to call more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, subscriberBuffer)
	var (
		mu     sync.Mutex
		closed bool
	)

	sub, err := s.conn.Subscribe(topic, func(m *nats.Msg) {
		msg := Message{Topic: m.Subject, Data: m.Data}
		if m.Header != nil {
			msg.Owner = m.Header.Get(OwnerHeader)
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg:
		default:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before messages published on
	// other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		_ = sub.Unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		closed = true
		for len(ch) > 0 {
			<-ch
		}
		close(ch)
	}
	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
