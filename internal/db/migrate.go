package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Statements are idempotent so the broker can bootstrap a fresh database at
// startup without an external migration runner.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS clinics (
		id           UUID PRIMARY KEY,
		name         TEXT NOT NULL,
		city         TEXT NOT NULL,
		specialty    TEXT,
		api_key_hash TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_seen    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS slots (
		id        UUID PRIMARY KEY,
		clinic_id UUID NOT NULL REFERENCES clinics(id),
		date      TEXT NOT NULL,
		time      TEXT NOT NULL,
		status    TEXT NOT NULL DEFAULT 'AVAILABLE',
		UNIQUE (clinic_id, date, time)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         UUID PRIMARY KEY,
		clinic_id  UUID NOT NULL REFERENCES clinics(id),
		type       TEXT NOT NULL,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_clinic_date ON slots (clinic_id, date, time)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_clinic_created ON messages (clinic_id, created_at)`,
}

// Migrate applies the broker schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
