package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Well-known config keys.
const (
	ConfigKeyTicketCounter   = "ticket_counter"
	ConfigKeyWebappSettings  = "webapp_settings"
	ConfigKeyMigrationMarker = "migration_done"
)

// ConfigRepository is the key/value table holding JSON settings and counters.
type ConfigRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// NextSequence atomically increments the counter stored under key and returns the new value.
	NextSequence(ctx context.Context, key string) (int64, error)
}

// sequenceQuery renders the counter upsert for a driver's placeholder style.
// Postgres and SQLite both accept the statement.
func sequenceQuery(placeholder string) string {
	return `
        INSERT INTO config (key, value) VALUES (` + placeholder + `, '1')
        ON CONFLICT (key) DO UPDATE SET value=CAST(CAST(config.value AS INTEGER) + 1 AS TEXT)
        RETURNING value`
}

type configRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository builds the Postgres repository.
func NewConfigRepository(pool *pgxpool.Pool) ConfigRepository {
	return &configRepository{pool: pool}
}

func (r *configRepository) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM config WHERE key=$1`
	var value string
	if err := r.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (r *configRepository) Set(ctx context.Context, key, value string) error {
	const query = `
        INSERT INTO config (key, value) VALUES ($1,$2)
        ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`
	_, err := r.pool.Exec(ctx, query, key, value)
	return err
}

func (r *configRepository) NextSequence(ctx context.Context, key string) (int64, error) {
	var raw string
	if err := r.pool.QueryRow(ctx, sequenceQuery("$1"), key).Scan(&raw); err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
