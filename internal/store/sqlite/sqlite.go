// Package sqlite implements the store.Store interface on an embedded SQLite
// file. It is the default backend for the desktop deployment.
//
// The pool is pinned to a single connection, so every transaction is
// serialized against every other writer and reader.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/jkh/internal/model"
	"github.com/alfredjeanlab/jkh/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var errInitInTransaction = errors.New("sqlite: schema init is not available inside a transaction")

// pragmas are applied to every connection the driver opens.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// SQLiteStore implements store.Store backed by a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens (creating if needed) the database file at path and applies
// pending migrations. The parent directory is created when missing.
func New(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Init(_ context.Context) error {
	return runMigrations(s.db)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListKeys(ctx context.Context, owner string) ([]string, error) {
	return queryListKeys(ctx, s.db, owner)
}

func (s *SQLiteStore) Get(ctx context.Context, owner, key string) (*model.Record, error) {
	return queryGet(ctx, s.db, owner, key)
}

func (s *SQLiteStore) Set(ctx context.Context, rec *model.Record) error {
	return querySet(ctx, s.db, rec)
}

func (s *SQLiteStore) Delete(ctx context.Context, owner, key string) (bool, error) {
	return queryDelete(ctx, s.db, owner, key)
}

func (s *SQLiteStore) ListRecords(ctx context.Context) ([]*model.Record, error) {
	return queryListRecords(ctx, s.db)
}

// RunInTransaction runs fn inside a transaction. fn must only use the tx
// store it is given; the parent store has no spare connection.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

var _ store.Store = (*txStore)(nil)

func (s *txStore) ListKeys(ctx context.Context, owner string) ([]string, error) {
	return queryListKeys(ctx, s.tx, owner)
}

func (s *txStore) Get(ctx context.Context, owner, key string) (*model.Record, error) {
	return queryGet(ctx, s.tx, owner, key)
}

func (s *txStore) Set(ctx context.Context, rec *model.Record) error {
	return querySet(ctx, s.tx, rec)
}

func (s *txStore) Delete(ctx context.Context, owner, key string) (bool, error) {
	return queryDelete(ctx, s.tx, owner, key)
}

func (s *txStore) ListRecords(ctx context.Context) ([]*model.Record, error) {
	return queryListRecords(ctx, s.tx)
}

func (s *txStore) Init(_ context.Context) error { return errInitInTransaction }

func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) Ping(_ context.Context) error { return nil }

func (s *txStore) Close() error { return nil }
