package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/jkh/internal/model"
)

// Observer receives the duration and outcome of every store operation.
type Observer interface {
	ObserveStore(op string, d time.Duration, err error)
}

// Instrument wraps s so each call is reported to obs. Transactions are
// reported as a single "transaction" operation; calls made through the tx
// store are reported individually as well.
func Instrument(s Store, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{next: s, obs: obs}
}

type instrumented struct {
	next Store
	obs  Observer
}

var _ Store = (*instrumented)(nil)

func (s *instrumented) observe(op string, start time.Time, err error) {
	s.obs.ObserveStore(op, time.Since(start), err)
}

func (s *instrumented) ListKeys(ctx context.Context, owner string) (keys []string, err error) {
	defer func(start time.Time) { s.observe("list_keys", start, err) }(time.Now())
	return s.next.ListKeys(ctx, owner)
}

func (s *instrumented) Get(ctx context.Context, owner, key string) (rec *model.Record, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())
	return s.next.Get(ctx, owner, key)
}

func (s *instrumented) Set(ctx context.Context, rec *model.Record) (err error) {
	defer func(start time.Time) { s.observe("set", start, err) }(time.Now())
	return s.next.Set(ctx, rec)
}

func (s *instrumented) Delete(ctx context.Context, owner, key string) (deleted bool, err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	return s.next.Delete(ctx, owner, key)
}

func (s *instrumented) ListRecords(ctx context.Context) (recs []*model.Record, err error) {
	defer func(start time.Time) { s.observe("list_records", start, err) }(time.Now())
	return s.next.ListRecords(ctx)
}

func (s *instrumented) Init(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("init", start, err) }(time.Now())
	return s.next.Init(ctx)
}

func (s *instrumented) RunInTransaction(ctx context.Context, fn func(tx Store) error) (err error) {
	defer func(start time.Time) { s.observe("transaction", start, err) }(time.Now())
	return s.next.RunInTransaction(ctx, func(tx Store) error {
		return fn(&instrumented{next: tx, obs: s.obs})
	})
}

func (s *instrumented) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("ping", start, err) }(time.Now())
	return s.next.Ping(ctx)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}
