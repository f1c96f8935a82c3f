package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/jkh/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSSubscriber_ReceivesAndDecodes(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	if err := pub.Publish(ctx, TopicRecordSet, RecordSet{Record: &model.Record{Owner: "alice", Key: "a", Value: "1"}}); err != nil {
		t.Fatalf("publishing set: %v", err)
	}
	if err := pub.Publish(ctx, TopicRecordDeleted, RecordDeleted{Owner: "alice", Key: "a"}); err != nil {
		t.Fatalf("publishing delete: %v", err)
	}
	pub.conn.Flush()

	var got []any
	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			event, err := msg.Decode()
			if err != nil {
				t.Fatalf("decode %s: %v", msg.Topic, err)
			}
			got = append(got, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}

	set, ok := got[0].(RecordSet)
	if !ok || set.Record.Value != "1" {
		t.Errorf("first event = %#v, want RecordSet", got[0])
	}
	del, ok := got[1].(RecordDeleted)
	if !ok || del.Key != "a" {
		t.Errorf("second event = %#v, want RecordDeleted", got[1])
	}
}

func TestNATSSubscriber_OwnerHeader(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicRecordDeleted)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	if err := pub.Publish(context.Background(), TopicRecordDeleted, RecordDeleted{Owner: "bob", Key: "k"}); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	// Raw publishes carry no header.
	if err := pub.conn.Publish(TopicRecordDeleted, []byte(`{"owner":"bob","key":"raw"}`)); err != nil {
		t.Fatalf("raw publish: %v", err)
	}
	pub.conn.Flush()

	for _, want := range []string{"bob", ""} {
		select {
		case msg := <-ch:
			if msg.Owner != want {
				t.Errorf("Owner = %q, want %q", msg.Owner, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message with owner %q", want)
		}
	}
}

func TestMessageDecode_UnknownTopic(t *testing.T) {
	if _, err := (Message{Topic: "kv.other", Data: []byte(`{}`)}).Decode(); err == nil {
		t.Fatal("expected error for unknown topic")
	}
	if _, err := (Message{Topic: TopicRecordSet, Data: []byte(`not json`)}).Decode(); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	cancel()
	// Calling cancel twice should not panic.
	cancel()

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_CancelDuringMessages(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = pub.conn.Publish(TopicRecordSet, []byte(`{"record":null}`))
		}
		pub.conn.Flush()
	}()

	// Cancel while messages are being sent -- must not panic.
	cancel()
	<-done

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_ImplementsSubscriber(t *testing.T) {
	var _ Subscriber = (*NATSSubscriber)(nil)
}
