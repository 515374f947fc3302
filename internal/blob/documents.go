// Package blob decodes the schemaless documents the bot keeps in json_data
// into typed records. Nothing untyped leaves this package.
package blob

import (
	"encoding/json"
	"sort"
)

const (
	RosterSize = 10
	DefaultElo = 1000
)

// Profile is one entry of main_data.users. Numeric fields default to zero when
// absent, null or not a number.
type Profile struct {
	UserID             int64    `json:"user_id,string"`
	XP                 int64    `json:"xp"`
	Level              int64    `json:"level"`
	Coins              int64    `json:"coins"`
	VoiceTime          int64    `json:"voice_time"`
	Messages           int64    `json:"messages"`
	Wins               int64    `json:"wins"`
	Losses             int64    `json:"losses"`
	RaidWins           int64    `json:"raid_wins"`
	RaidLosses         int64    `json:"raid_losses"`
	RaidParticipation  int64    `json:"raid_participation"`
	WeeklyXP           int64    `json:"weekly_xp"`
	MonthlyXP          int64    `json:"monthly_xp"`
	TrainingAttendance int64    `json:"training_attendance"`
	TryoutAttendance   int64    `json:"tryout_attendance"`
	RobloxUsername     string   `json:"roblox_username"`
	Verified           bool     `json:"verified"`
	Inventory          []string `json:"inventory"`
	Achievements       []string `json:"achievements"`
	AvatarURL          string   `json:"avatar_url,omitempty"`
	// LastActive is kept as written by the bot; it may be empty or unparsable.
	LastActive string `json:"last_active,omitempty"`
}

// Field returns the value of a numeric profile field by its document name.
// ok is false for names that are not numeric profile fields.
func (p Profile) Field(name string) (value int64, ok bool) {
	switch name {
	case "xp":
		return p.XP, true
	case "level":
		return p.Level, true
	case "coins":
		return p.Coins, true
	case "voice_time":
		return p.VoiceTime, true
	case "messages":
		return p.Messages, true
	case "wins":
		return p.Wins, true
	case "losses":
		return p.Losses, true
	case "raid_wins":
		return p.RaidWins, true
	case "raid_losses":
		return p.RaidLosses, true
	case "raid_participation":
		return p.RaidParticipation, true
	case "weekly_xp":
		return p.WeeklyXP, true
	case "monthly_xp":
		return p.MonthlyXP, true
	case "training_attendance":
		return p.TrainingAttendance, true
	case "tryout_attendance":
		return p.TryoutAttendance, true
	default:
		return 0, false
	}
}

// Roster is the fixed ten slot stage roster. A nil slot is empty.
type Roster [RosterSize]*int64

// StageRank returns the 1-based index of the first slot holding userID.
func (r Roster) StageRank(userID int64) (int, bool) {
	for i, slot := range r {
		if slot != nil && *slot == userID {
			return i + 1, true
		}
	}
	return 0, false
}

func (r Roster) MarshalJSON() ([]byte, error) {
	slots := make([]*string, RosterSize)
	for i, slot := range r {
		if slot != nil {
			value := formatID(*slot)
			slots[i] = &value
		}
	}
	return json.Marshal(slots)
}

// MainData is the main_data document.
type MainData struct {
	Users  map[int64]Profile
	Roster Roster
}

func DefaultMainData() MainData {
	return MainData{Users: map[int64]Profile{}}
}

// UserIDs returns every user ID in ascending order.
func (d MainData) UserIDs() []int64 {
	return sortedKeys(d.Users)
}

// Duel is one entry of duels_data.duel_history.
type Duel struct {
	WinnerID  int64           `json:"winner_id,string"`
	LoserID   int64           `json:"loser_id,string"`
	Timestamp string          `json:"timestamp"`
	EloChange int64           `json:"elo_change"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// DuelsData is the duels_data document.
type DuelsData struct {
	Elo     map[int64]int64
	History []Duel
}

func DefaultDuelsData() DuelsData {
	return DuelsData{Elo: map[int64]int64{}, History: []Duel{}}
}

// Rating returns the stored ELO rating for userID, DefaultElo when absent.
func (d DuelsData) Rating(userID int64) int64 {
	if rating, ok := d.Elo[userID]; ok {
		return rating
	}
	return DefaultElo
}

// Warning is one moderation warning. Active is derived from Expired.
type Warning struct {
	UserID      int64  `json:"user_id,string,omitempty"`
	Category    string `json:"category"`
	Reason      string `json:"reason"`
	Points      int64  `json:"points"`
	ModeratorID int64  `json:"moderator_id,string,omitempty"`
	Timestamp   string `json:"timestamp"`
	Expired     bool   `json:"expired"`
	Active      bool   `json:"active"`
}

// WarningSummary is the per-user entry of warnings_data.users.
type WarningSummary struct {
	Warnings    []Warning `json:"warnings"`
	TotalPoints int64     `json:"total_points"`
}

func EmptyWarningSummary() WarningSummary {
	return WarningSummary{Warnings: []Warning{}}
}

// WarningsData is the warnings_data document.
type WarningsData struct {
	Users  map[int64]WarningSummary
	Recent []Warning
}

func DefaultWarningsData() WarningsData {
	return WarningsData{Users: map[int64]WarningSummary{}, Recent: []Warning{}}
}

// Summary returns the warning entry for userID, empty when absent.
func (d WarningsData) Summary(userID int64) WarningSummary {
	if summary, ok := d.Users[userID]; ok {
		return summary
	}
	return EmptyWarningSummary()
}

func (d WarningsData) UserIDs() []int64 {
	return sortedKeys(d.Users)
}

// GuardianStats is the abuse monitoring snapshot. Its shape belongs to the bot
// and is passed through untouched.
type GuardianStats json.RawMessage

func DefaultGuardianStats() GuardianStats {
	return GuardianStats(`{}`)
}

func (g GuardianStats) MarshalJSON() ([]byte, error) {
	if len(g) == 0 {
		return []byte(`{}`), nil
	}
	return []byte(g), nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
