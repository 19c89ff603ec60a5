// Package migrations applies the database schema at startup. Statements are
// idempotent so Apply can run on every boot.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		parent_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		jar_id TEXT NOT NULL DEFAULT '',
		pin_hash TEXT NOT NULL DEFAULT '',
		balance BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_phone_number_idx
		ON accounts (phone_number) WHERE phone_number <> ''`,
	`CREATE TABLE IF NOT EXISTS savings_transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS savings_transactions_account_idx
		ON savings_transactions (account_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS savings_goals (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL,
		target_sats BIGINT NOT NULL,
		saved_sats BIGINT NOT NULL DEFAULT 0,
		achieved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mpesa_deposit_requests (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		checkout_request_id TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		amount_kes BIGINT NOT NULL,
		amount_sats BIGINT NOT NULL,
		status TEXT NOT NULL,
		result_desc TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS mpesa_checkout_request_idx
		ON mpesa_deposit_requests (checkout_request_id)`,
	`CREATE TABLE IF NOT EXISTS lightning_invoices (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		payment_hash TEXT NOT NULL UNIQUE,
		payment_request TEXT NOT NULL,
		amount_sats BIGINT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		settled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS achievements (
		id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		progress BIGINT NOT NULL DEFAULT 0,
		max_progress BIGINT NOT NULL,
		unlocked BOOLEAN NOT NULL DEFAULT FALSE,
		reward_sats BIGINT NOT NULL DEFAULT 0,
		unlocked_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (account_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS notification_settings (
		account_id TEXT PRIMARY KEY,
		sms_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		goal_alerts BOOLEAN NOT NULL DEFAULT TRUE,
		deposit_alerts BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allowances (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		amount_sats BIGINT NOT NULL,
		schedule TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		last_run TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
