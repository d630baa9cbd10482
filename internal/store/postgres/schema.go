// Package postgres provides a PostgreSQL-backed [store.Store].
//
// Calls live in the calls table; their transcript lines live in call_entries,
// keyed by call and ordered by (ordinal, position, seq). [Migrate] creates
// both tables idempotently.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCalls = `
CREATE TABLE IF NOT EXISTS calls (
    call_id       TEXT         PRIMARY KEY,
    stream_id     TEXT         NOT NULL DEFAULT '',
    mode          TEXT         NOT NULL,
    status        TEXT         NOT NULL,
    started_at    TIMESTAMPTZ  NOT NULL,
    ended_at      TIMESTAMPTZ  NOT NULL,
    caller_bytes  BIGINT       NOT NULL DEFAULT 0,
    summary       TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_calls_ended_at
    ON calls (ended_at DESC);
`

const ddlCallEntries = `
CREATE TABLE IF NOT EXISTS call_entries (
    call_id    TEXT         NOT NULL REFERENCES calls (call_id) ON DELETE CASCADE,
    ordinal    INTEGER      NOT NULL,
    position   INTEGER      NOT NULL,
    seq        BIGINT       NOT NULL,
    speaker    TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    spoken_at  TIMESTAMPTZ,
    PRIMARY KEY (call_id, ordinal, position, seq)
);

CREATE INDEX IF NOT EXISTS idx_call_entries_fts
    ON call_entries USING GIN (to_tsvector('english', text));
`

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlCalls, ddlCallEntries} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
