package store

import (
	"context"

	"github.com/alfredjeanlab/jkh/internal/model"
)

// Store defines the persistence interface for owner-scoped key/value records.
//
// Get returns sql.ErrNoRows when the (owner, key) pair does not exist.
// Callers validate owner and key before reaching the store.
type Store interface {
	// Key/value operations
	ListKeys(ctx context.Context, owner string) ([]string, error) // sorted ascending, bytewise
	Get(ctx context.Context, owner, key string) (*model.Record, error)
	Set(ctx context.Context, rec *model.Record) error // upsert; fills rec.UpdatedAt
	Delete(ctx context.Context, owner, key string) (bool, error)

	// Bulk access for backup export.
	ListRecords(ctx context.Context) ([]*model.Record, error)

	// Schema management (idempotent).
	Init(ctx context.Context) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
