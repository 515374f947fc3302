package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements creates the tables this dashboard writes to. The bot owns
// every other table, including json_data, and is responsible for its schema.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dashboard_audit_log (
		id BIGSERIAL PRIMARY KEY,
		staff_id BIGINT NOT NULL,
		staff_name TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		target_id BIGINT,
		details TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dashboard_audit_log_created ON dashboard_audit_log(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS staff_roles (
		id BIGSERIAL PRIMARY KEY,
		discord_user_id BIGINT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		permission_tier INT NOT NULL CHECK (permission_tier BETWEEN 1 AND 3),
		added_by BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS role_config (
		id BIGSERIAL PRIMARY KEY,
		discord_role_id TEXT NOT NULL UNIQUE,
		role_name TEXT NOT NULL DEFAULT '',
		permission_tier INT NOT NULL CHECK (permission_tier BETWEEN 1 AND 3),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS pending_dashboard_actions (
		id BIGSERIAL PRIMARY KEY,
		action_type TEXT NOT NULL,
		target_user_id BIGINT NOT NULL,
		staff_id BIGINT NOT NULL,
		staff_name TEXT NOT NULL DEFAULT '',
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		status TEXT NOT NULL DEFAULT 'pending',
		result TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		executed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_dashboard_actions_status ON pending_dashboard_actions(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_dashboard_actions_target ON pending_dashboard_actions(target_user_id, created_at DESC)`,
}

// EnsureSchema creates the dashboard-owned tables when they are missing. It is
// safe to run on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, statement := range schemaStatements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema statement %d: %w", i, err)
		}
	}
	return nil
}
