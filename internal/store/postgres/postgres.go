package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"medipos/backend/internal/store"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Medium keeps each record store collection as one JSONB row.
type Medium struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Medium, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Medium{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (m *Medium) Close() error {
	return m.db.Close()
}

func (m *Medium) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT payload
		FROM medipos_collections
		WHERE key = $1
	`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	return payload, true, nil
}

func (m *Medium) Save(ctx context.Context, key string, payload []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO medipos_collections (key, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, key, string(payload))
	if err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("save %s: %w: %v", key, store.ErrStorageFull, err)
		}
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (m *Medium) Remove(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM medipos_collections WHERE key = $1`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func isDiskFull(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "53100"
	}
	return false
}
