package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS urls (
		id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		original_url TEXT NOT NULL,
		slug         TEXT NOT NULL,
		visits       BIGINT NOT NULL DEFAULT 0 CHECK (visits >= 0),
		user_id      UUID NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT urls_slug_key UNIQUE (slug)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_user_original ON urls (user_id, original_url)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_user_created ON urls (user_id, created_at DESC)`,
}

// Migrate creates the tables the service needs. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	zap.L().Info("Database schema ready", zap.Int("statements", len(schema)))
	return nil
}
