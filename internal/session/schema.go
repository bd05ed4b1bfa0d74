package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup; statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		code           TEXT PRIMARY KEY,
		admin_user_id  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'recruiting',
		platforms      JSONB,
		mode           TEXT NOT NULL DEFAULT '',
		admin_profile  JSONB,
		group_analysis JSONB,
		movie_batches  JSONB,
		final_verdict  BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at     TIMESTAMPTZ NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		session_code   TEXT NOT NULL REFERENCES sessions(code) ON DELETE CASCADE,
		user_id        TEXT NOT NULL,
		is_admin       BOOLEAN NOT NULL DEFAULT FALSE,
		username       TEXT NOT NULL DEFAULT '',
		display_name   TEXT NOT NULL DEFAULT '',
		avatar_url     TEXT NOT NULL DEFAULT '',
		letterboxd_url TEXT NOT NULL DEFAULT '',
		quiz_answers   JSONB,
		joined_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (session_code, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at)`,
}

// EnsureSchema creates the tables the store needs if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
