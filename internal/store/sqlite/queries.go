package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alfredjeanlab/jkh/internal/model"
)

const recordColumns = `owner, k, v, updated_at`

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// updated_at is stored as unix milliseconds.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func queryListKeys(ctx context.Context, db executor, owner string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT k FROM kv_store
		WHERE owner = ?
		ORDER BY k COLLATE BINARY`, owner)
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
		FROM kv_store WHERE owner = ? AND k = ?`, owner, key)
	return scanRecord(row)
}

func querySet(ctx context.Context, db executor, rec *model.Record) error {
	ts := now().Truncate(time.Millisecond)
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv_store (owner, k, v, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, k) DO UPDATE SET v = excluded.v, updated_at = excluded.updated_at`,
		rec.Owner, rec.Key, rec.Value, toMillis(ts),
	)
	if err != nil {
		return err
	}
	rec.UpdatedAt = ts
	return nil
}

func queryDelete(ctx context.Context, db executor, owner, key string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM kv_store WHERE owner = ? AND k = ?`, owner, key)
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
		FROM kv_store ORDER BY owner COLLATE BINARY, k COLLATE BINARY`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var (
		r  model.Record
		ms int64
	)
	if err := row.Scan(&r.Owner, &r.Key, &r.Value, &ms); err != nil {
		return nil, err
	}
	r.UpdatedAt = fromMillis(ms)
	return &r, nil
}
