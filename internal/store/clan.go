package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Raid, war and recruitment tables are created by the bot. They may be absent
// on a fresh deployment or carry fewer columns than expected.

// TableColumns lists the column names of table, empty when it does not exist.
func (s *PostgresStore) TableColumns(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}

func (s *PostgresStore) RecentRaids(ctx context.Context, limit int) ([]Row, error) {
	return s.recentRows(ctx, "raid_sessions", normalizeLimit(limit, 20))
}

func (s *PostgresStore) Wars(ctx context.Context, limit int) ([]Row, error) {
	return s.recentRows(ctx, "wars", normalizeLimit(limit, 10))
}

func (s *PostgresStore) Tournaments(ctx context.Context, limit int) ([]Row, error) {
	return s.recentRows(ctx, "tournaments", normalizeLimit(limit, 10))
}

// recentRows orders by created_at when the table has it and by id otherwise.
// table is always one of the constants above, never caller input.
func (s *PostgresStore) recentRows(ctx context.Context, table string, limit int) ([]Row, error) {
	columns, err := s.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("read %s: %w", table, ErrTableMissing)
	}
	order := "id"
	if containsString(columns, "created_at") {
		order = "created_at"
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY %s DESC LIMIT $1`, table, order), limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return scanRows(rows)
}

func (s *PostgresStore) RaidLeaderboard(ctx context.Context, limit int) ([]RaidStat, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, raids_participated, raids_won, raids_lost, total_xp_earned, total_coins_earned, mvp_count
		FROM raid_stats
		ORDER BY raids_participated DESC
		LIMIT $1
	`, normalizeLimit(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("raid leaderboard: %w", err)
	}
	defer rows.Close()

	items := make([]RaidStat, 0)
	for rows.Next() {
		var item RaidStat
		var participated, won, lost, xp, coins, mvp sql.NullInt64
		if err := rows.Scan(&item.UserID, &participated, &won, &lost, &xp, &coins, &mvp); err != nil {
			return nil, fmt.Errorf("scan raid stat: %w", err)
		}
		item.RaidsParticipated = participated.Int64
		item.RaidsWon = won.Int64
		item.RaidsLost = lost.Int64
		item.TotalXPEarned = xp.Int64
		item.TotalCoinsEarned = coins.Int64
		item.MVPCount = mvp.Int64
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raid stats: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) WarRecord(ctx context.Context) (WarRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var record WarRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'won') AS wins,
			COUNT(*) FILTER (WHERE status = 'lost') AS losses,
			COUNT(*) FILTER (WHERE status = 'draw') AS draws
		FROM wars WHERE status IN ('won', 'lost', 'draw')
	`).Scan(&record.Total, &record.Wins, &record.Losses, &record.Draws)
	if err != nil {
		return WarRecord{}, fmt.Errorf("war record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) OpenPositions(ctx context.Context) ([]Row, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM recruitment_positions WHERE status = 'open'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}
	return scanRows(rows)
}

// Applications lists applications, filtered by status unless status is empty.
func (s *PostgresStore) Applications(ctx context.Context, status string, limit int) ([]Row, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM recruitment_applications
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, normalizeLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return scanRows(rows)
}

func (s *PostgresStore) UserApplications(ctx context.Context, userID int64) ([]Row, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.*, p.title AS position_title
		FROM recruitment_applications a
		LEFT JOIN recruitment_positions p ON a.position_id = p.id
		WHERE a.user_id = $1
		ORDER BY a.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user applications: %w", err)
	}
	return scanRows(rows)
}

func (s *PostgresStore) SubmitApplication(ctx context.Context, app Application) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	answers := app.Answers
	if len(answers) == 0 {
		answers = json.RawMessage(`{}`)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recruitment_applications (position_id, user_id, username, answers, status)
		VALUES ($1, $2, $3, $4::jsonb, 'pending')
		RETURNING id
	`, app.PositionID, app.UserID, app.Username, string(answers)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("submit application: %w", err)
	}
	return id, nil
}

// PositionIsOpen reports whether positionID exists and accepts applications.
func (s *PostgresStore) PositionIsOpen(ctx context.Context, positionID int64) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var open bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM recruitment_positions WHERE id = $1 AND status = 'open')
	`, positionID).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("check position: %w", err)
	}
	return open, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	items := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		item := make(Row, len(columns))
		for i, column := range columns {
			item[column] = normalizeValue(values[i])
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return items, nil
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		if json.Valid(v) && len(v) > 0 && (v[0] == '{' || v[0] == '[') {
			return json.RawMessage(append([]byte(nil), v...))
		}
		return string(v)
	case time.Time:
		return v.UTC()
	default:
		return v
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
