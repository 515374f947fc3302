package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const defaultCommandTimeout = 15 * time.Second

type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresStore(db *sql.DB, commandTimeout time.Duration) *PostgresStore {
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	return &PostgresStore{db: db, timeout: commandTimeout}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// withTimeout bounds a single logical call. Connections are taken from the
// pool per statement and never held across calls.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// LoadBlob returns the raw document stored under key, or nil when there is no
// such row.
func (s *PostgresStore) LoadBlob(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM json_data WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load blob %s: %w", key, err)
	}
	return data, nil
}

// =============================================================================
// Outbox
// =============================================================================

func (s *PostgresStore) EnqueueAction(ctx context.Context, action PendingAction) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	params := action.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pending_dashboard_actions (action_type, target_user_id, staff_id, staff_name, params, status)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		RETURNING id
	`, action.ActionType, action.TargetUserID, action.StaffID, action.StaffName, string(params), ActionStatusPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue action: %w", err)
	}
	return id, nil
}

const pendingActionColumns = `id, action_type, target_user_id, staff_id, staff_name, params, status, result, created_at, executed_at`

func (s *PostgresStore) ListPendingActions(ctx context.Context, limit int) ([]PendingAction, error) {
	return s.listActions(ctx, "list pending actions", `
		SELECT `+pendingActionColumns+`
		FROM pending_dashboard_actions
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, ActionStatusPending, normalizeLimit(limit, 100))
}

func (s *PostgresStore) ListActionsForTarget(ctx context.Context, targetUserID int64, limit int) ([]PendingAction, error) {
	return s.listActions(ctx, "list actions for target", `
		SELECT `+pendingActionColumns+`
		FROM pending_dashboard_actions
		WHERE target_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, targetUserID, normalizeLimit(limit, 50))
}

func (s *PostgresStore) ListRecentActions(ctx context.Context, limit int) ([]PendingAction, error) {
	return s.listActions(ctx, "list recent actions", `
		SELECT `+pendingActionColumns+`
		FROM pending_dashboard_actions
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, normalizeLimit(limit, 50))
}

func (s *PostgresStore) listActions(ctx context.Context, op, query string, args ...any) ([]PendingAction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]PendingAction, 0)
	for rows.Next() {
		var item PendingAction
		var params []byte
		var result sql.NullString
		var executedAt sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.ActionType,
			&item.TargetUserID,
			&item.StaffID,
			&item.StaffName,
			&params,
			&item.Status,
			&result,
			&item.CreatedAt,
			&executedAt,
		); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		item.Params = json.RawMessage(params)
		if result.Valid {
			item.Result = &result.String
		}
		if executedAt.Valid {
			item.ExecutedAt = &executedAt.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return items, nil
}

// =============================================================================
// Audit log
// =============================================================================

func (s *PostgresStore) InsertAuditLog(ctx context.Context, entry AuditLogEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var targetID sql.NullInt64
	if entry.TargetID != nil {
		targetID = sql.NullInt64{Int64: *entry.TargetID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dashboard_audit_log (staff_id, staff_name, action, target_id, details)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.StaffID, entry.StaffName, entry.Action, targetID, entry.Details)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, staff_name, action, target_id, details, created_at
		FROM dashboard_audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, normalizeLimit(limit, 100))
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	items := make([]AuditLogEntry, 0)
	for rows.Next() {
		var item AuditLogEntry
		var targetID sql.NullInt64
		if err := rows.Scan(&item.ID, &item.StaffID, &item.StaffName, &item.Action, &targetID, &item.Details, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if targetID.Valid {
			item.TargetID = &targetID.Int64
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return items, nil
}

// =============================================================================
// Staff roles and role config
// =============================================================================

// GetStaffRole returns the explicit grant for userID, or nil when there is none.
func (s *PostgresStore) GetStaffRole(ctx context.Context, userID int64) (*StaffRole, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var item StaffRole
	err := s.db.QueryRowContext(ctx, `
		SELECT id, discord_user_id, display_name, permission_tier, added_by, created_at
		FROM staff_roles
		WHERE discord_user_id = $1
	`, userID).Scan(&item.ID, &item.DiscordUserID, &item.DisplayName, &item.PermissionTier, &item.AddedBy, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staff role: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) ListStaffRoles(ctx context.Context) ([]StaffRole, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, discord_user_id, display_name, permission_tier, added_by, created_at
		FROM staff_roles
		ORDER BY permission_tier DESC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list staff roles: %w", err)
	}
	defer rows.Close()

	items := make([]StaffRole, 0)
	for rows.Next() {
		var item StaffRole
		if err := rows.Scan(&item.ID, &item.DiscordUserID, &item.DisplayName, &item.PermissionTier, &item.AddedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff role: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff roles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertStaffRole(ctx context.Context, role StaffRole) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_roles (discord_user_id, display_name, permission_tier, added_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (discord_user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, permission_tier = EXCLUDED.permission_tier, added_by = EXCLUDED.added_by
	`, role.DiscordUserID, role.DisplayName, role.PermissionTier, role.AddedBy)
	if err != nil {
		return fmt.Errorf("upsert staff role: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteStaffRole(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM staff_roles WHERE discord_user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete staff role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete staff role rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListRoleConfig(ctx context.Context) ([]RoleConfig, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, discord_role_id, role_name, permission_tier, created_at
		FROM role_config
		ORDER BY permission_tier DESC, role_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list role config: %w", err)
	}
	defer rows.Close()

	items := make([]RoleConfig, 0)
	for rows.Next() {
		var item RoleConfig
		if err := rows.Scan(&item.ID, &item.DiscordRoleID, &item.RoleName, &item.PermissionTier, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role config: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role config: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertRoleConfig(ctx context.Context, role RoleConfig) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_config (discord_role_id, role_name, permission_tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (discord_role_id) DO UPDATE
		SET role_name = EXCLUDED.role_name, permission_tier = EXCLUDED.permission_tier
	`, role.DiscordRoleID, role.RoleName, role.PermissionTier)
	if err != nil {
		return fmt.Errorf("upsert role config: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRoleConfig(ctx context.Context, roleID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM role_config WHERE discord_role_id = $1`, roleID)
	if err != nil {
		return false, fmt.Errorf("delete role config: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete role config rows: %w", err)
	}
	return affected > 0, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}
