package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens and pings a Postgres connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// The CHECK keeps exactly one of content/payload populated, matching type.
// seq records write order and breaks sent_at ties, so the later-written of
// two same-instant messages sorts last.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id           UUID PRIMARY KEY,
	from_user_id TEXT NOT NULL,
	to_user_id   TEXT NOT NULL,
	type         TEXT NOT NULL,
	content      TEXT,
	payload      JSONB,
	sent_at      TIMESTAMPTZ NOT NULL,
	delivered_at TIMESTAMPTZ,
	CHECK (
		(type = 'CHAT' AND content IS NOT NULL AND payload IS NULL) OR
		(type = 'GAME_INVITE' AND payload IS NOT NULL AND content IS NULL)
	)
);
ALTER TABLE messages ADD COLUMN IF NOT EXISTS seq BIGINT GENERATED ALWAYS AS IDENTITY;
CREATE INDEX IF NOT EXISTS messages_from_to_idx ON messages (from_user_id, to_user_id, sent_at);
CREATE INDEX IF NOT EXISTS messages_to_idx ON messages (to_user_id, sent_at);
CREATE INDEX IF NOT EXISTS messages_undelivered_idx ON messages (to_user_id, sent_at) WHERE delivered_at IS NULL;
`

// MigratePostgres creates the messages table and its indexes.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// DropPostgres removes the messages table. Development use only.
func DropPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS messages`); err != nil {
		return fmt.Errorf("drop postgres: %w", err)
	}
	return nil
}
