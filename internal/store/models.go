package store

import (
	"encoding/json"
	"time"
)

// Blob keys in json_data, written by the bot.
const (
	BlobMainData      = "main_data"
	BlobDuelsData     = "duels_data"
	BlobWarningsData  = "warnings_data"
	BlobGuardianStats = "guardian_stats"
)

// Outbox statuses. Only ActionStatusPending is ever written here; the bot
// moves rows to executed or failed.
const (
	ActionStatusPending  = "pending"
	ActionStatusExecuted = "executed"
	ActionStatusFailed   = "failed"
)

// PendingAction is a row of pending_dashboard_actions.
type PendingAction struct {
	ID           int64           `json:"id"`
	ActionType   string          `json:"action_type"`
	TargetUserID int64           `json:"target_user_id,string"`
	StaffID      int64           `json:"staff_id,string"`
	StaffName    string          `json:"staff_name"`
	Params       json.RawMessage `json:"params"`
	Status       string          `json:"status"`
	Result       *string         `json:"result"`
	CreatedAt    time.Time       `json:"created_at"`
	ExecutedAt   *time.Time      `json:"executed_at"`
}

// AuditLogEntry is a row of dashboard_audit_log.
type AuditLogEntry struct {
	ID        int64     `json:"id"`
	StaffID   int64     `json:"staff_id,string"`
	StaffName string    `json:"staff_name"`
	Action    string    `json:"action"`
	TargetID  *int64    `json:"target_id,string,omitempty"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// StaffRole grants a tier to one user, regardless of the roles they hold.
type StaffRole struct {
	ID             int64     `json:"id"`
	DiscordUserID  int64     `json:"discord_user_id,string"`
	DisplayName    string    `json:"display_name"`
	PermissionTier int       `json:"permission_tier"`
	AddedBy        int64     `json:"added_by,string"`
	CreatedAt      time.Time `json:"created_at"`
}

// RoleConfig maps an identity provider role onto a tier.
type RoleConfig struct {
	ID             int64     `json:"id"`
	DiscordRoleID  string    `json:"discord_role_id"`
	RoleName       string    `json:"role_name"`
	PermissionTier int       `json:"permission_tier"`
	CreatedAt      time.Time `json:"created_at"`
}

// RaidStat is a row of raid_stats.
type RaidStat struct {
	UserID            int64 `json:"user_id,string"`
	RaidsParticipated int64 `json:"raids_participated"`
	RaidsWon          int64 `json:"raids_won"`
	RaidsLost         int64 `json:"raids_lost"`
	TotalXPEarned     int64 `json:"total_xp_earned"`
	TotalCoinsEarned  int64 `json:"total_coins_earned"`
	MVPCount          int64 `json:"mvp_count"`
}

type WarRecord struct {
	Total  int64 `json:"total"`
	Wins   int64 `json:"wins"`
	Losses int64 `json:"losses"`
	Draws  int64 `json:"draws"`
}

// Application is a recruitment application submitted through the dashboard.
type Application struct {
	ID         int64           `json:"id"`
	PositionID int64           `json:"position_id"`
	UserID     int64           `json:"user_id,string"`
	Username   string          `json:"username"`
	Answers    json.RawMessage `json:"answers"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Row is a record of a table whose columns are owned by the bot.
type Row map[string]any
