package members

import (
	"context"
	"sort"

	"fallen/dashboard/internal/blob"
	"fallen/dashboard/internal/store"
)

const (
	defaultWarningsLimit = 50
	defaultDuelsLimit    = 20
	maxActivityLimit     = 200
)

// GetUserWarnings returns the warnings entry for userID, empty when the user
// has none.
func (s *Service) GetUserWarnings(ctx context.Context, userID int64) (blob.WarningSummary, store.Status) {
	warnings, status := s.blobs.Warnings(ctx)
	return warnings.Summary(userID), status
}

// GetRecentWarnings prefers the bot's prebuilt recent list. Without one it
// collects every user's warnings, newest first.
func (s *Service) GetRecentWarnings(ctx context.Context, limit int) ([]blob.Warning, store.Status) {
	limit = clampLimit(limit, defaultWarningsLimit, maxActivityLimit)
	warnings, status := s.blobs.Warnings(ctx)

	if len(warnings.Recent) > 0 {
		return headWarnings(warnings.Recent, limit), status
	}

	all := make([]blob.Warning, 0)
	for _, id := range warnings.UserIDs() {
		all = append(all, warnings.Users[id].Warnings...)
	}
	// Timestamps are ISO strings written by the bot, so they order lexically.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})
	return headWarnings(all, limit), status
}

// RecentDuels returns the newest duels first.
func (s *Service) RecentDuels(ctx context.Context, limit int) ([]blob.Duel, store.Status) {
	limit = clampLimit(limit, defaultDuelsLimit, maxActivityLimit)
	duels, status := s.blobs.Duels(ctx)
	return newestDuels(duels.History, limit, func(blob.Duel) bool { return true }), status
}

// UserDuels returns the newest duels userID won or lost.
func (s *Service) UserDuels(ctx context.Context, userID int64, limit int) ([]blob.Duel, store.Status) {
	limit = clampLimit(limit, defaultDuelsLimit, maxActivityLimit)
	duels, status := s.blobs.Duels(ctx)
	return newestDuels(duels.History, limit, func(d blob.Duel) bool {
		return d.WinnerID == userID || d.LoserID == userID
	}), status
}

// newestDuels walks history from the end, where the bot appends.
func newestDuels(history []blob.Duel, limit int, keep func(blob.Duel) bool) []blob.Duel {
	out := make([]blob.Duel, 0)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(history[i]) {
			out = append(out, history[i])
		}
	}
	return out
}

func headWarnings(warnings []blob.Warning, limit int) []blob.Warning {
	if len(warnings) > limit {
		return warnings[:limit]
	}
	return warnings
}
