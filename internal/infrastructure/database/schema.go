package database

import (
	"context"
	"fmt"
)

// schema holds the idempotent DDL for the HavenSync store. The schema is
// small enough that versioned migration files would be overhead; every
// statement is CREATE ... IF NOT EXISTS and safe to re-run on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		id         TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id         TEXT PRIMARY KEY,
		user_id    TEXT,
		device_id  TEXT NOT NULL,
		action     TEXT NOT NULL,
		status     TEXT NOT NULL,
		detail     TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_device ON audit_logs(device_id, created_at)`,
}

// Migrate applies the schema to the database. Safe to call on every startup.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any DDL statement fails
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
