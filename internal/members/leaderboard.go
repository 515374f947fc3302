package members

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"fallen/dashboard/internal/blob"
	"fallen/dashboard/internal/store"
)

const (
	SortXP  = "xp"
	SortElo = "elo_rating"

	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 200
	defaultSearchLimit      = 20
	maxSearchLimit          = 100
)

var sortFields = map[string]struct{}{
	"xp":                  {},
	"level":               {},
	"coins":               {},
	"elo_rating":          {},
	"voice_time":          {},
	"messages":            {},
	"wins":                {},
	"raid_wins":           {},
	"raid_participation":  {},
	"weekly_xp":           {},
	"monthly_xp":          {},
	"training_attendance": {},
	"tryout_attendance":   {},
}

// NormalizeSortField returns field when it may be sorted on and SortXP for
// anything else.
func NormalizeSortField(field string) string {
	if _, ok := sortFields[field]; ok {
		return field
	}
	return SortXP
}

// Entry is one leaderboard or search row.
type Entry struct {
	blob.Profile
	Position  int    `json:"position"`
	EloRating int64  `json:"elo_rating"`
	StageRank *int   `json:"stage_rank"`
	AvatarURL string `json:"avatar_url"`
}

type Leaderboard struct {
	SortBy  string  `json:"sort_by"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	Entries []Entry `json:"entries"`
}

// GetLeaderboard sorts every user by field, descending, and returns the
// requested page. Ties are ordered by ascending user ID.
func (s *Service) GetLeaderboard(ctx context.Context, field string, limit, offset int) (Leaderboard, store.Status) {
	field = NormalizeSortField(field)
	limit = clampLimit(limit, defaultLeaderboardLimit, maxLeaderboardLimit)
	if offset < 0 {
		offset = 0
	}

	doc, docStatus := s.blobs.Main(ctx)
	duels, duelsStatus := s.blobs.Duels(ctx)

	ids := sortedByField(doc, duels, field)
	board := Leaderboard{SortBy: field, Total: len(ids), Limit: limit, Offset: offset, Entries: []Entry{}}
	if offset < len(ids) {
		end := offset + limit
		if end > len(ids) {
			end = len(ids)
		}
		for i, id := range ids[offset:end] {
			entry := newEntry(doc, duels, id)
			entry.Position = offset + i + 1
			board.Entries = append(board.Entries, entry)
		}
	}
	return board, store.Combine(docStatus, duelsStatus)
}

// GetUserRank returns 1 plus the number of other users with a strictly greater
// value for field. Users absent from main_data get 0.
func (s *Service) GetUserRank(ctx context.Context, userID int64, field string) (int, store.Status) {
	field = NormalizeSortField(field)
	doc, docStatus := s.blobs.Main(ctx)
	if _, ok := doc.Users[userID]; !ok {
		return 0, docStatus
	}
	duels := blob.DefaultDuelsData()
	status := docStatus
	if field == SortElo {
		var duelsStatus store.Status
		duels, duelsStatus = s.blobs.Duels(ctx)
		status = store.Combine(docStatus, duelsStatus)
	}

	own := sortValue(doc, duels, userID, field)
	rank := 1
	for id := range doc.Users {
		if id != userID && sortValue(doc, duels, id, field) > own {
			rank++
		}
	}
	return rank, status
}

// SearchUsers matches query case-insensitively against Roblox usernames. The
// matches are ordered by XP before limit is applied.
func (s *Service) SearchUsers(ctx context.Context, query string, limit int) ([]Entry, store.Status) {
	limit = clampLimit(limit, defaultSearchLimit, maxSearchLimit)
	query = strings.ToLower(strings.TrimSpace(query))

	doc, docStatus := s.blobs.Main(ctx)
	duels, duelsStatus := s.blobs.Duels(ctx)

	matches := make([]int64, 0)
	for _, id := range doc.UserIDs() {
		if strings.Contains(strings.ToLower(doc.Users[id].RobloxUsername), query) {
			matches = append(matches, id)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return doc.Users[matches[i]].XP > doc.Users[matches[j]].XP
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]Entry, 0, len(matches))
	for i, id := range matches {
		entry := newEntry(doc, duels, id)
		entry.Position = i + 1
		results = append(results, entry)
	}
	return results, store.Combine(docStatus, duelsStatus)
}

// sortedByField starts from ascending IDs so the stable sort leaves ties in
// ID order.
func sortedByField(doc blob.MainData, duels blob.DuelsData, field string) []int64 {
	ids := doc.UserIDs()
	values := make(map[int64]int64, len(ids))
	for _, id := range ids {
		values[id] = sortValue(doc, duels, id, field)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return values[ids[i]] > values[ids[j]]
	})
	return ids
}

func sortValue(doc blob.MainData, duels blob.DuelsData, userID int64, field string) int64 {
	if field == SortElo {
		return duels.Rating(userID)
	}
	value, _ := doc.Users[userID].Field(field)
	return value
}

func newEntry(doc blob.MainData, duels blob.DuelsData, userID int64) Entry {
	profile := doc.Users[userID]
	return Entry{
		Profile:   profile,
		EloRating: duels.Rating(userID),
		StageRank: stageRank(doc.Roster, userID),
		AvatarURL: AvatarURL(userID, profile.AvatarURL),
	}
}

func clampLimit(limit, fallback, ceiling int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
