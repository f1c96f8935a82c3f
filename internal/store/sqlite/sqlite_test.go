package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/jkh/internal/model"
	"github.com/alfredjeanlab/jkh/internal/store"
)

// newTestStore opens a fresh database file under t.TempDir.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "kv.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustSet(t *testing.T, s store.Store, owner, key, value string) *model.Record {
	t.Helper()
	rec := &model.Record{Owner: owner, Key: key, Value: value}
	if err := s.Set(context.Background(), rec); err != nil {
		t.Fatalf("Set(%q, %q): %v", owner, key, err)
	}
	return rec
}

func TestSetGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, value := range []string{"dark", "", "日本語 ✓", `{"nested":"json"}`, "line1\nline2"} {
		mustSet(t, s, "alice", "k", value)
		got, err := s.Get(ctx, "alice", "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Value != value {
			t.Errorf("Get value = %q, want %q", got.Value, value)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "alice", "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestSet_OverwriteAdvancesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := base
	orig := now
	now = func() time.Time { return tick }
	t.Cleanup(func() { now = orig })

	first := mustSet(t, s, "alice", "theme", "light")
	tick = base.Add(time.Second)
	second := mustSet(t, s, "alice", "theme", "dark")

	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	got, err := s.Get(ctx, "alice", "theme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "dark" || !got.UpdatedAt.Equal(tick) {
		t.Fatalf("got %+v", got)
	}

	keys, _ := s.ListKeys(ctx, "alice")
	if len(keys) != 1 {
		t.Fatalf("overwrite created a duplicate row: keys=%v", keys)
	}
}

func TestListKeys_SortedAndScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"b", "a", "B", "c", "_x"} {
		mustSet(t, s, "alice", k, "v")
	}
	mustSet(t, s, "bob", "zzz", "v")

	keys, err := s.ListKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []string{"B", "_x", "a", "b", "c"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Fatalf("ListKeys = %v, want %v", keys, want)
	}

	empty, err := s.ListKeys(ctx, "carol")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestOwnerIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustSet(t, s, "alice", "shared", "from-alice")
	mustSet(t, s, "bob", "shared", "from-bob")

	got, err := s.Get(ctx, "alice", "shared")
	if err != nil || got.Value != "from-alice" {
		t.Fatalf("alice sees %+v, %v", got, err)
	}

	if ok, err := s.Delete(ctx, "bob", "shared"); err != nil || !ok {
		t.Fatalf("Delete bob: %v, %v", ok, err)
	}
	if _, err := s.Get(ctx, "alice", "shared"); err != nil {
		t.Fatalf("deleting bob's key removed alice's: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustSet(t, s, "alice", "k", "v")

	ok, err := s.Delete(ctx, "alice", "k")
	if err != nil || !ok {
		t.Fatalf("first Delete = %v, %v; want true", ok, err)
	}
	ok, err = s.Delete(ctx, "alice", "k")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v; want false", ok, err)
	}
	if _, err := s.Get(ctx, "alice", "k"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after delete, got %v", err)
	}
}

func TestListRecords(t *testing.T) {
	s := newTestStore(t)
	mustSet(t, s, "bob", "a", "2")
	mustSet(t, s, "alice", "b", "1")
	mustSet(t, s, "alice", "a", "0")

	recs, err := s.ListRecords(context.Background())
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	var got []string
	for _, r := range recs {
		got = append(got, r.Owner+"/"+r.Key+"="+r.Value)
	}
	want := []string{"alice/a=0", "alice/b=1", "bob/a=2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("ListRecords = %v, want %v", got, want)
	}
}

func TestConcurrentSetsSamePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Set(ctx, &model.Record{Owner: "alice", Key: "counter", Value: fmt.Sprint(i)})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Set: %v", err)
		}
	}

	keys, err := s.ListKeys(ctx, "alice")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected exactly one row, got keys=%v", keys)
	}
}

func TestRunInTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		mustSet(t, tx, "alice", "a", "1")
		mustSet(t, tx, "alice", "b", "2")
		return nil
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err = s.RunInTransaction(ctx, func(tx store.Store) error {
		mustSet(t, tx, "alice", "c", "3")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	keys, _ := s.ListKeys(ctx, "alice")
	if fmt.Sprint(keys) != "[a b]" {
		t.Fatalf("rolled back write leaked: keys=%v", keys)
	}
}

func TestInitIdempotentAndPersistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustSet(t, s, "alice", "k", "v")
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), "alice", "k")
	if err != nil || got.Value != "v" {
		t.Fatalf("after reopen got %+v, %v", got, err)
	}
}
