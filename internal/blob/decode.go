package blob

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrEmptyDocument     = errors.New("empty document")
	ErrMalformedDocument = errors.New("malformed document")
)

// parseDocument validates raw and unwraps documents that were stored as a JSON
// encoded string instead of a JSON object.
func parseDocument(raw []byte) (gjson.Result, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return gjson.Result{}, ErrEmptyDocument
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, ErrMalformedDocument
	}
	root := gjson.ParseBytes(raw)
	if root.Type == gjson.String {
		inner := root.String()
		if !gjson.Valid(inner) {
			return gjson.Result{}, ErrMalformedDocument
		}
		root = gjson.Parse(inner)
	}
	if root.Type == gjson.Null {
		return gjson.Result{}, ErrEmptyDocument
	}
	if !root.IsObject() {
		return gjson.Result{}, ErrMalformedDocument
	}
	return root, nil
}

// ParseID normalizes a user ID written either as a number or as its decimal
// string form. Only positive IDs are valid.
func ParseID(value gjson.Result) (int64, bool) {
	switch value.Type {
	case gjson.Number:
		id := value.Int()
		return id, id > 0
	case gjson.String:
		return ParseIDString(value.Str)
	default:
		return 0, false
	}
}

func ParseIDString(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// DecodeMain decodes main_data. skipped counts user keys that were dropped
// because they are not user IDs.
func DecodeMain(raw []byte) (doc MainData, skipped int, err error) {
	doc = DefaultMainData()
	root, err := parseDocument(raw)
	if err != nil {
		return doc, 0, err
	}

	root.Get("users").ForEach(func(key, value gjson.Result) bool {
		id, ok := ParseIDString(key.String())
		if !ok || !value.IsObject() {
			skipped++
			return true
		}
		doc.Users[id] = decodeProfile(id, value)
		return true
	})

	slot := 0
	root.Get("roster").ForEach(func(_, value gjson.Result) bool {
		if slot >= RosterSize {
			return false
		}
		if id, ok := ParseID(value); ok {
			doc.Roster[slot] = &id
		}
		slot++
		return true
	})
	return doc, skipped, nil
}

func decodeProfile(id int64, value gjson.Result) Profile {
	return Profile{
		UserID:             id,
		XP:                 value.Get("xp").Int(),
		Level:              value.Get("level").Int(),
		Coins:              value.Get("coins").Int(),
		VoiceTime:          value.Get("voice_time").Int(),
		Messages:           value.Get("messages").Int(),
		Wins:               value.Get("wins").Int(),
		Losses:             value.Get("losses").Int(),
		RaidWins:           value.Get("raid_wins").Int(),
		RaidLosses:         value.Get("raid_losses").Int(),
		RaidParticipation:  value.Get("raid_participation").Int(),
		WeeklyXP:           value.Get("weekly_xp").Int(),
		MonthlyXP:          value.Get("monthly_xp").Int(),
		TrainingAttendance: value.Get("training_attendance").Int(),
		TryoutAttendance:   value.Get("tryout_attendance").Int(),
		RobloxUsername:     stringOrEmpty(value.Get("roblox_username")),
		Verified:           value.Get("verified").Bool(),
		Inventory:          stringList(value.Get("inventory")),
		Achievements:       stringList(value.Get("achievements")),
		AvatarURL:          stringOrEmpty(value.Get("avatar_url")),
		LastActive:         stringOrEmpty(value.Get("last_active")),
	}
}

// DecodeDuels decodes duels_data.
func DecodeDuels(raw []byte) (DuelsData, error) {
	doc := DefaultDuelsData()
	root, err := parseDocument(raw)
	if err != nil {
		return doc, err
	}

	root.Get("elo").ForEach(func(key, value gjson.Result) bool {
		id, ok := ParseIDString(key.String())
		if !ok || (value.Type != gjson.Number && value.Type != gjson.String) {
			return true
		}
		doc.Elo[id] = value.Int()
		return true
	})

	root.Get("duel_history").ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		winner, _ := ParseID(firstOf(value, "winner_id", "winner"))
		loser, _ := ParseID(firstOf(value, "loser_id", "loser"))
		duel := Duel{
			WinnerID:  winner,
			LoserID:   loser,
			Timestamp: stringOrEmpty(firstOf(value, "timestamp", "completed_at")),
			EloChange: value.Get("elo_change").Int(),
		}
		if metadata := value.Get("metadata"); metadata.IsObject() {
			duel.Metadata = json.RawMessage(metadata.Raw)
		}
		doc.History = append(doc.History, duel)
		return true
	})
	return doc, nil
}

// DecodeWarnings decodes warnings_data.
func DecodeWarnings(raw []byte) (WarningsData, error) {
	doc := DefaultWarningsData()
	root, err := parseDocument(raw)
	if err != nil {
		return doc, err
	}

	root.Get("users").ForEach(func(key, value gjson.Result) bool {
		id, ok := ParseIDString(key.String())
		if !ok || !value.IsObject() {
			return true
		}
		summary := EmptyWarningSummary()
		value.Get("warnings").ForEach(func(_, entry gjson.Result) bool {
			if entry.IsObject() {
				summary.Warnings = append(summary.Warnings, decodeWarning(id, entry))
			}
			return true
		})
		summary.TotalPoints = value.Get("total_points").Int()
		doc.Users[id] = summary
		return true
	})

	root.Get("recent_warnings").ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		id, _ := ParseID(entry.Get("user_id"))
		doc.Recent = append(doc.Recent, decodeWarning(id, entry))
		return true
	})
	return doc, nil
}

func decodeWarning(userID int64, entry gjson.Result) Warning {
	moderator, _ := ParseID(firstOf(entry, "moderator_id", "moderator"))
	expired := entry.Get("expired").Bool()
	return Warning{
		UserID:      userID,
		Category:    stringOrEmpty(firstOf(entry, "category", "type")),
		Reason:      stringOrEmpty(entry.Get("reason")),
		Points:      entry.Get("points").Int(),
		ModeratorID: moderator,
		Timestamp:   stringOrEmpty(entry.Get("timestamp")),
		Expired:     expired,
		Active:      !expired,
	}
}

// DecodeGuardian validates the guardian_stats snapshot and returns it as is.
func DecodeGuardian(raw []byte) (GuardianStats, error) {
	root, err := parseDocument(raw)
	if err != nil {
		return DefaultGuardianStats(), err
	}
	return GuardianStats(root.Raw), nil
}

func firstOf(value gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if result := value.Get(path); result.Exists() && result.Type != gjson.Null {
			return result
		}
	}
	return gjson.Result{}
}

func stringOrEmpty(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return value.Str
	case gjson.Number:
		return value.Raw
	default:
		return ""
	}
}

func stringList(value gjson.Result) []string {
	items := make([]string, 0)
	value.ForEach(func(_, item gjson.Result) bool {
		if text := stringOrEmpty(item); text != "" {
			items = append(items, text)
		}
		return true
	})
	return items
}
