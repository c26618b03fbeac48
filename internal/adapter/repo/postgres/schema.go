package postgres

import (
	"context"
	"fmt"
)

// schemaDDL is applied idempotently at startup; the deployment has a single
// writer so CREATE IF NOT EXISTS is sufficient.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS jobs (
    id             TEXT PRIMARY KEY,
    session_id     TEXT NOT NULL,
    kind           TEXT NOT NULL,
    status         TEXT NOT NULL,
    prompt         TEXT NOT NULL,
    artifact_key   TEXT,
    error_kind     TEXT,
    error_msg      TEXT,
    created_at     TIMESTAMPTZ NOT NULL,
    started_at     TIMESTAMPTZ,
    completed_at   TIMESTAMPTZ,
    attempt        INT NOT NULL DEFAULT 0,
    user_ordinal   INT NOT NULL,
    override_level INT NOT NULL DEFAULT 0,
    UNIQUE (session_id, kind, user_ordinal)
);

CREATE INDEX IF NOT EXISTS idx_jobs_session_kind_status
    ON jobs (session_id, kind, status, completed_at DESC);

CREATE INDEX IF NOT EXISTS idx_jobs_status_started
    ON jobs (status, started_at);

CREATE TABLE IF NOT EXISTS session_counters (
    session_id TEXT NOT NULL,
    kind       TEXT NOT NULL,
    n          INT NOT NULL,
    PRIMARY KEY (session_id, kind)
);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("op=postgres.ensure_schema: %w", err)
	}
	return nil
}
