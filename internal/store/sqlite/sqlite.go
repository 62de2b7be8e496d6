// Package sqlite stores record store collections in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"medipos/backend/internal/store"
)

const schema = `CREATE TABLE IF NOT EXISTS medipos_collections (
    key TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

type Medium struct {
	db *sqlx.DB
}

// Open connects to the database at path, enables WAL and creates the
// collection table when missing.
func Open(ctx context.Context, path string) (*Medium, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare sqlite %s: %w", path, err)
		}
	}
	return &Medium{db: db}, nil
}

func (m *Medium) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := m.db.GetContext(ctx, &payload, `SELECT payload FROM medipos_collections WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	return payload, true, nil
}

func (m *Medium) Save(ctx context.Context, key string, payload []byte) error {
	_, err := m.db.ExecContext(ctx, `
        INSERT INTO medipos_collections (key, payload, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, mapError(err))
	}
	return nil
}

func (m *Medium) Remove(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM medipos_collections WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, mapError(err))
	}
	return nil
}

func (m *Medium) Close() error {
	return m.db.Close()
}

func mapError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_FULL {
		return fmt.Errorf("%w: %v", store.ErrStorageFull, err)
	}
	return err
}
