// Package events carries record change notifications out of the server:
// to NATS for other processes and to the in-process SSE hub for browsers.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/jkh/internal/model"
)

// Event topic constants
const (
	TopicRecordSet     = "kv.record.set"
	TopicRecordDeleted = "kv.record.deleted"

	// TopicAll matches every record topic.
	TopicAll = "kv.record.>"
)

// Event types

type RecordSet struct {
	Record *model.Record `json:"record"`
}

type RecordDeleted struct {
	Owner     string    `json:"owner"`
	Key       string    `json:"key"`
	DeletedAt time.Time `json:"deleted_at"`
}

// OwnerOf returns the owner an event belongs to, or "" for unknown events.
func OwnerOf(event any) string {
	switch e := event.(type) {
	case RecordSet:
		if e.Record != nil {
			return e.Record.Owner
		}
	case *RecordSet:
		if e != nil && e.Record != nil {
			return e.Record.Owner
		}
	case RecordDeleted:
		return e.Owner
	case *RecordDeleted:
		if e != nil {
			return e.Owner
		}
	}
	return ""
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
