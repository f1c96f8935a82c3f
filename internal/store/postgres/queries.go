package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/jkh/internal/model"
)

// recordColumns is the column list used for SELECT statements on the kv_store table.
const recordColumns = `owner, k, v, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// The "C" collation orders keys bytewise regardless of the database locale.
func queryListKeys(ctx context.Context, db executor, owner string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT k FROM kv_store
		WHERE owner = $1
		ORDER BY k COLLATE "C"`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func queryGet(ctx context.Context, db executor, owner, key string) (*model.Record, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM kv_store WHERE owner = $1 AND k = $2`, owner, key)
	return scanRecord(row)
}

// querySet upserts in a single statement, so concurrent writers to the same
// pair are serialized by the uq_owner_key constraint.
func querySet(ctx context.Context, db executor, rec *model.Record) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO kv_store (owner, k, v)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, k) DO UPDATE SET v = EXCLUDED.v, updated_at = NOW()
		RETURNING updated_at`,
		rec.Owner, rec.Key, rec.Value,
	).Scan(&rec.UpdatedAt)
}

func queryDelete(ctx context.Context, db executor, owner, key string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM kv_store WHERE owner = $1 AND k = $2`, owner, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func queryListRecords(ctx context.Context, db executor) ([]*model.Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM kv_store ORDER BY owner COLLATE "C", k COLLATE "C"`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}
