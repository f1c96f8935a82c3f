package events

import (
	"encoding/json"
	"fmt"
)

// Message is a raw event payload together with the subject it arrived on.
// Owner comes from the OwnerHeader and is empty for messages published
// without it.
type Message struct {
	Topic string
	Owner string
	Data  []byte
}

// Decode unmarshals the payload into the event type for its topic.
func (m Message) Decode() (any, error) {
	switch m.Topic {
	case TopicRecordSet:
		var e RecordSet
		if err := json.Unmarshal(m.Data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", m.Topic, err)
		}
		return e, nil
	case TopicRecordDeleted:
		var e RecordDeleted
		if err := json.Unmarshal(m.Data, &e); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", m.Topic, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown topic %q", m.Topic)
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
