package backup

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"sort"
	"time"

	"github.com/alfredjeanlab/jkh/internal/model"
	"github.com/alfredjeanlab/jkh/internal/store"
)

// mockStore is a minimal in-memory store for backup tests.
type mockStore struct {
	records map[[2]string]*model.Record
	listErr error
	setErr  error // returned by Set for keys named "fail"
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[[2]string]*model.Record)}
}

func (m *mockStore) put(owner, key, value string) {
	m.records[[2]string{owner, key}] = &model.Record{Owner: owner, Key: key, Value: value, UpdatedAt: time.Now().UTC()}
}

func (m *mockStore) ListKeys(_ context.Context, owner string) ([]string, error) {
	var keys []string
	for k := range m.records {
		if k[0] == owner {
			keys = append(keys, k[1])
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *mockStore) Get(_ context.Context, owner, key string) (*model.Record, error) {
	rec, ok := m.records[[2]string{owner, key}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rec, nil
}

func (m *mockStore) Set(_ context.Context, rec *model.Record) error {
	if m.setErr != nil && rec.Key == "fail" {
		return m.setErr
	}
	rec.UpdatedAt = time.Now().UTC()
	clone := *rec
	m.records[[2]string{rec.Owner, rec.Key}] = &clone
	return nil
}

func (m *mockStore) Delete(_ context.Context, owner, key string) (bool, error) {
	k := [2]string{owner, key}
	_, ok := m.records[k]
	delete(m.records, k)
	return ok, nil
}

func (m *mockStore) ListRecords(_ context.Context) ([]*model.Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*model.Record
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (m *mockStore) Init(_ context.Context) error { return nil }

// RunInTransaction restores the previous contents when fn fails.
func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	saved := maps.Clone(m.records)
	if err := fn(m); err != nil {
		m.records = saved
		return err
	}
	return nil
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }

var errBoom = errors.New("boom")
