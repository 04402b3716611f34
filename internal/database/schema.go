package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS harvest_runs (
		id            UUID PRIMARY KEY,
		profile       TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		pages_visited INTEGER NOT NULL DEFAULT 0,
		page_errors   INTEGER NOT NULL DEFAULT 0,
		record_count  INTEGER NOT NULL DEFAULT 0,
		artifact      TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS product_listings (
		run_id        UUID NOT NULL REFERENCES harvest_runs(id) ON DELETE CASCADE,
		position      INTEGER NOT NULL,
		page          INTEGER NOT NULL,
		title         TEXT NOT NULL,
		link          TEXT NOT NULL DEFAULT '',
		price_text    TEXT NOT NULL,
		price_amount  NUMERIC(12,2),
		rating_text   TEXT NOT NULL,
		rating_value  NUMERIC(3,2),
		reviews_text  TEXT NOT NULL,
		reviews_count INTEGER,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS harvest_outbox (
		id           UUID PRIMARY KEY,
		run_id       UUID NOT NULL,
		event_type   TEXT NOT NULL,
		profile      TEXT NOT NULL,
		outcome      TEXT NOT NULL DEFAULT '',
		record_count INTEGER NOT NULL DEFAULT 0,
		payload      JSONB NOT NULL,
		stream       TEXT NOT NULL,
		state        TEXT NOT NULL,
		attempts     INTEGER NOT NULL DEFAULT 0,
		last_error   TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		due_at       TIMESTAMPTZ NOT NULL,
		relayed_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_harvest_outbox_due
		ON harvest_outbox (state, due_at, created_at)`,
}

// EnsureSchema creates the harvest and outbox tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
