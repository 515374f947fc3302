package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fallen/dashboard/internal/blob"
	"fallen/dashboard/internal/logging"
	"fallen/dashboard/internal/store"
)

type fakeDocs struct {
	main   blob.MainData
	duels  blob.DuelsData
	status store.Status
}

func (f fakeDocs) Main(context.Context) (blob.MainData, store.Status) {
	return f.main, f.status
}

func (f fakeDocs) Duels(context.Context) (blob.DuelsData, store.Status) {
	return f.duels, store.StatusLoaded
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, mainJSON, duelsJSON string) *Service {
	t.Helper()
	docs := fakeDocs{main: blob.DefaultMainData(), duels: blob.DefaultDuelsData(), status: store.StatusLoaded}
	var err error
	if mainJSON != "" {
		docs.main, _, err = blob.DecodeMain([]byte(mainJSON))
		require.NoError(t, err)
	}
	if duelsJSON != "" {
		docs.duels, err = blob.DecodeDuels([]byte(duelsJSON))
		require.NoError(t, err)
	}
	clock := quartz.NewMock(t)
	clock.Set(fixedNow)
	return NewService(docs, clock, logging.Discard())
}

const membersFixture = `{"users": {
	"1": {"xp": 500, "level": 12, "coins": 100, "messages": 40, "voice_time": 10, "wins": 3, "losses": 1, "verified": true,
	      "raid_participation": 2, "training_attendance": 1, "last_active": "2025-06-15T06:00:00Z", "roblox_username": "One"},
	"2": {"xp": 200, "level": 5, "coins": 300, "messages": 10, "wins": 1, "last_active": "2025-06-12 12:00:00", "roblox_username": "Two"},
	"3": {"xp": 900, "level": 27, "coins": "0", "messages": 99, "verified": true, "last_active": "2025-05-25T12:00:00", "roblox_username": "Three"},
	"4": {"xp": 10, "level": 3, "coins": 1, "last_active": "yesterday-ish"},
	"5": {"xp": 0, "level": 0, "last_active": "1749988800"}
}}`

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{raw: "2025-06-15T06:00:00Z", want: time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC), ok: true},
		{raw: "2025-06-15T08:00:00+02:00", want: time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC), ok: true},
		{raw: "2025-06-15T06:00:00.123456", want: time.Date(2025, 6, 15, 6, 0, 0, 123456000, time.UTC), ok: true},
		{raw: "2025-06-15 06:00:00", want: time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC), ok: true},
		{raw: "2025-06-15 06:00:00+00:00", want: time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC), ok: true},
		{raw: "1749988800", want: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), ok: true},
		{raw: "", ok: false},
		{raw: "last tuesday", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestServerStats(t *testing.T) {
	svc := newTestService(t, membersFixture, "")

	stats, status := svc.ServerStats(context.Background())
	assert.Equal(t, store.StatusLoaded, status)
	assert.Equal(t, ServerStats{
		TotalUsers:              5,
		VerifiedUsers:           2,
		TotalXP:                 1610,
		TotalCoins:              401,
		TotalMessages:           149,
		AvgLevel:                9,
		MaxLevel:                27,
		TotalDuels:              5,
		TotalRaidParticipations: 2,
		TotalTrainings:          1,
		Active24h:               2,
		Active7d:                3,
	}, stats)
}

func TestServerStatsEmpty(t *testing.T) {
	svc := newTestService(t, "", "")

	stats, _ := svc.ServerStats(context.Background())
	assert.Equal(t, ServerStats{}, stats)
}

func TestAnalyticsWindowsAreExclusive(t *testing.T) {
	svc := newTestService(t, membersFixture, "")

	report, _ := svc.Analytics(context.Background())
	assert.Equal(t, ActivityWindows{Under1d: 2, Under7d: 1, Under30d: 1, Inactive: 1}, report.Activity)
	windows := report.Activity
	assert.Equal(t, report.TotalUsers, windows.Under1d+windows.Under7d+windows.Under30d+windows.Inactive)

	assert.Equal(t, 2, report.VerifiedUsers)
	assert.Equal(t, int64(149), report.TotalMessages)
	assert.Equal(t, int64(10), report.TotalVoiceTime)
	assert.Equal(t, int64(401), report.TotalCoins)
}

func TestAnalyticsLevelBands(t *testing.T) {
	svc := newTestService(t, membersFixture, "")

	report, _ := svc.Analytics(context.Background())
	assert.Equal(t, []LevelBand{
		{Label: "0-9", Min: 0, Count: 3},
		{Label: "10-19", Min: 10, Count: 1},
		{Label: "20-29", Min: 20, Count: 1},
	}, report.LevelBands)
}

func TestAnalyticsTopLists(t *testing.T) {
	svc := newTestService(t, membersFixture, "")

	report, _ := svc.Analytics(context.Background())
	require.Len(t, report.Top, len(TopMetrics))

	xp := report.Top["xp"]
	require.Len(t, xp, 5)
	assert.Equal(t, TopEntry{UserID: 3, RobloxUsername: "Three", Value: 900}, xp[0])
	assert.Equal(t, int64(1), xp[1].UserID)

	// Users without wins tie and keep ascending ID order.
	wins := report.Top["wins"]
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, topIDs(wins))
}

func topIDs(entries []TopEntry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.UserID)
	}
	return ids
}

func TestEconomy(t *testing.T) {
	svc := newTestService(t, membersFixture, "")

	economy, _ := svc.Economy(context.Background())
	assert.Equal(t, int64(401), economy.TotalCirculation)
	assert.Equal(t, int64(80), economy.AverageCoins)
	assert.Equal(t, 3, economy.Holders)
	assert.Equal(t, []int64{2, 1, 4, 3, 5}, topIDs(economy.Richest))
}

func TestEconomyEmptyDoesNotDivideByZero(t *testing.T) {
	svc := newTestService(t, "", "")

	economy, _ := svc.Economy(context.Background())
	assert.Zero(t, economy.AverageCoins)
	assert.NotNil(t, economy.Richest)
	assert.Empty(t, economy.Richest)
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		rating int64
		want   string
	}{
		{2400, "Grandmaster"},
		{2000, "Grandmaster"},
		{1999, "Diamond"},
		{1800, "Diamond"},
		{1600, "Platinum"},
		{1400, "Gold"},
		{1200, "Silver"},
		{1199, "Bronze"},
		{1000, "Bronze"},
		{-20, "Bronze"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.rating), "rating %d", tt.rating)
	}
}

func TestEloDistributionCoversEveryMember(t *testing.T) {
	svc := newTestService(t, membersFixture, `{"elo": {"1": 2050, "2": 1450, "99": 1900}}`)

	tiers, status := svc.EloDistribution(context.Background())
	assert.Equal(t, store.StatusLoaded, status)

	counts := map[string]int{}
	total := 0
	for _, tier := range tiers {
		counts[tier.Name] = tier.Count
		total += tier.Count
	}
	assert.Equal(t, 5, total)
	assert.Equal(t, 1, counts["Grandmaster"])
	assert.Equal(t, 0, counts["Diamond"])
	assert.Equal(t, 1, counts["Gold"])
	assert.Equal(t, 3, counts["Bronze"])
	assert.Equal(t, "Grandmaster", tiers[0].Name)
	assert.Equal(t, "Bronze", tiers[len(tiers)-1].Name)
}
