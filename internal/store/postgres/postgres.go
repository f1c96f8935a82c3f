// Package postgres implements the store.Store interface backed by PostgreSQL.
// It serves the hosted deployment; transactions run at the server default
// isolation level (READ COMMITTED).
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/jkh/internal/model"
	"github.com/alfredjeanlab/jkh/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// errInitInTransaction is returned by Init on a transaction-scoped store.
var errInitInTransaction = errors.New("postgres: schema init is not available inside a transaction")

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Init applies pending migrations. It is a no-op when the schema is current.
func (s *PostgresStore) Init(_ context.Context) error {
	return runMigrations(s.db)
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ListKeys(ctx context.Context, owner string) ([]string, error) {
	return queryListKeys(ctx, s.db, owner)
}

func (s *PostgresStore) Get(ctx context.Context, owner, key string) (*model.Record, error) {
	return queryGet(ctx, s.db, owner, key)
}

func (s *PostgresStore) Set(ctx context.Context, rec *model.Record) error {
	return querySet(ctx, s.db, rec)
}

func (s *PostgresStore) Delete(ctx context.Context, owner, key string) (bool, error) {
	return queryDelete(ctx, s.db, owner, key)
}

func (s *PostgresStore) ListRecords(ctx context.Context) ([]*model.Record, error) {
	return queryListRecords(ctx, s.db)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
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

func (s *txStore) Init(_ context.Context) error {
	return errInitInTransaction
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Ping is a no-op; the transaction already holds a live connection.
func (s *txStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
