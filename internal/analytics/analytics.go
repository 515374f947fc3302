// Package analytics aggregates the merged member set into server statistics,
// distributions and top lists. Aggregates are computed on every call.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/blob"
	"fallen/dashboard/internal/store"
)

const (
	day = 24 * time.Hour

	topListSize = 5
	richestSize = 10
)

// TopMetrics are the profile fields that get a top list.
var TopMetrics = []string{"xp", "messages", "voice_time", "raid_participation", "wins"}

type Documents interface {
	Main(ctx context.Context) (blob.MainData, store.Status)
	Duels(ctx context.Context) (blob.DuelsData, store.Status)
}

type Service struct {
	docs  Documents
	clock quartz.Clock
	log   logrus.FieldLogger
}

func NewService(docs Documents, clock quartz.Clock, log logrus.FieldLogger) *Service {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{docs: docs, clock: clock, log: log}
}

type ServerStats struct {
	TotalUsers              int   `json:"total_users"`
	VerifiedUsers           int   `json:"verified_users"`
	TotalXP                 int64 `json:"total_xp"`
	TotalCoins              int64 `json:"total_coins"`
	TotalMessages           int64 `json:"total_messages"`
	AvgLevel                int64 `json:"avg_level"`
	MaxLevel                int64 `json:"max_level"`
	TotalDuels              int64 `json:"total_duels"`
	TotalRaidParticipations int64 `json:"total_raid_participations"`
	TotalTrainings          int64 `json:"total_trainings"`
	Active24h               int   `json:"active_24h"`
	Active7d                int   `json:"active_7d"`
}

// ServerStats totals the profile fields. Active24h and Active7d overlap: a user
// active in the last day is counted in both.
func (s *Service) ServerStats(ctx context.Context) (ServerStats, store.Status) {
	doc, status := s.docs.Main(ctx)
	now := s.clock.Now()

	var stats ServerStats
	var totalLevel int64
	for _, id := range doc.UserIDs() {
		p := doc.Users[id]
		stats.TotalUsers++
		if p.Verified {
			stats.VerifiedUsers++
		}
		stats.TotalXP += p.XP
		stats.TotalCoins += p.Coins
		stats.TotalMessages += p.Messages
		totalLevel += p.Level
		if p.Level > stats.MaxLevel {
			stats.MaxLevel = p.Level
		}
		stats.TotalDuels += p.Wins + p.Losses
		stats.TotalRaidParticipations += p.RaidParticipation
		stats.TotalTrainings += p.TrainingAttendance

		if idle, ok := s.idleFor(id, p, now); ok {
			if idle < day {
				stats.Active24h++
			}
			if idle < 7*day {
				stats.Active7d++
			}
		}
	}
	if stats.TotalUsers > 0 {
		stats.AvgLevel = totalLevel / int64(stats.TotalUsers)
	}
	return stats, status
}

type LevelBand struct {
	Label string `json:"label"`
	Min   int64  `json:"min"`
	Count int    `json:"count"`
}

// ActivityWindows are exclusive: each user lands in exactly one window.
type ActivityWindows struct {
	Under1d  int `json:"under_1d"`
	Under7d  int `json:"under_7d"`
	Under30d int `json:"under_30d"`
	Inactive int `json:"inactive"`
}

type TopEntry struct {
	UserID         int64  `json:"user_id,string"`
	RobloxUsername string `json:"roblox_username"`
	Value          int64  `json:"value"`
}

type Report struct {
	TotalUsers     int                   `json:"total_users"`
	VerifiedUsers  int                   `json:"verified_users"`
	TotalMessages  int64                 `json:"total_messages"`
	TotalVoiceTime int64                 `json:"total_voice_time"`
	TotalCoins     int64                 `json:"total_coins"`
	LevelBands     []LevelBand           `json:"level_distribution"`
	Activity       ActivityWindows       `json:"activity"`
	Top            map[string][]TopEntry `json:"top"`
}

// Analytics makes a single pass over the members for the distributions, then
// builds a top list per metric.
func (s *Service) Analytics(ctx context.Context) (Report, store.Status) {
	doc, status := s.docs.Main(ctx)
	now := s.clock.Now()
	ids := doc.UserIDs()

	report := Report{Top: make(map[string][]TopEntry, len(TopMetrics))}
	bands := make(map[int64]int)
	for _, id := range ids {
		p := doc.Users[id]
		report.TotalUsers++
		if p.Verified {
			report.VerifiedUsers++
		}
		report.TotalMessages += p.Messages
		report.TotalVoiceTime += p.VoiceTime
		report.TotalCoins += p.Coins
		bands[bandFloor(p.Level)]++

		idle, ok := s.idleFor(id, p, now)
		switch {
		case !ok:
			report.Activity.Inactive++
		case idle < day:
			report.Activity.Under1d++
		case idle < 7*day:
			report.Activity.Under7d++
		case idle < 30*day:
			report.Activity.Under30d++
		default:
			report.Activity.Inactive++
		}
	}
	report.LevelBands = levelBands(bands)
	for _, metric := range TopMetrics {
		report.Top[metric] = topBy(doc, ids, metric, topListSize)
	}
	return report, status
}

type Economy struct {
	TotalCirculation int64      `json:"total_circulation"`
	AverageCoins     int64      `json:"average_coins"`
	Holders          int        `json:"holders"`
	Richest          []TopEntry `json:"richest"`
}

func (s *Service) Economy(ctx context.Context) (Economy, store.Status) {
	doc, status := s.docs.Main(ctx)
	ids := doc.UserIDs()

	var economy Economy
	for _, id := range ids {
		coins := doc.Users[id].Coins
		economy.TotalCirculation += coins
		if coins > 0 {
			economy.Holders++
		}
	}
	count := int64(len(ids))
	if count < 1 {
		count = 1
	}
	economy.AverageCoins = economy.TotalCirculation / count
	economy.Richest = topBy(doc, ids, "coins", richestSize)
	return economy, status
}

type EloTier struct {
	Name  string `json:"tier"`
	Min   int64  `json:"min"`
	Count int    `json:"count"`
}

// eloTiers is ordered from the highest threshold down.
var eloTiers = []struct {
	name string
	min  int64
}{
	{"Grandmaster", 2000},
	{"Diamond", 1800},
	{"Platinum", 1600},
	{"Gold", 1400},
	{"Silver", 1200},
	{"Bronze", 0},
}

// TierFor names the ELO tier of rating. Anything under the Silver threshold,
// negative ratings included, is Bronze.
func TierFor(rating int64) string {
	for _, tier := range eloTiers {
		if rating >= tier.min {
			return tier.name
		}
	}
	return eloTiers[len(eloTiers)-1].name
}

// EloDistribution buckets every member by ELO tier. Members without a rating
// count at the default rating.
func (s *Service) EloDistribution(ctx context.Context) ([]EloTier, store.Status) {
	doc, mainStatus := s.docs.Main(ctx)
	duels, duelsStatus := s.docs.Duels(ctx)

	counts := make(map[string]int, len(eloTiers))
	for id := range doc.Users {
		counts[TierFor(duels.Rating(id))]++
	}
	out := make([]EloTier, 0, len(eloTiers))
	for _, tier := range eloTiers {
		out = append(out, EloTier{Name: tier.name, Min: tier.min, Count: counts[tier.name]})
	}
	return out, store.Combine(mainStatus, duelsStatus)
}

// idleFor returns how long ago the user was last active. ok is false when the
// timestamp is absent or cannot be parsed.
func (s *Service) idleFor(userID int64, p blob.Profile, now time.Time) (time.Duration, bool) {
	if p.LastActive == "" {
		return 0, false
	}
	ts, ok := ParseTimestamp(p.LastActive)
	if !ok {
		s.log.WithFields(logrus.Fields{
			"user_id":     userID,
			"last_active": p.LastActive,
		}).Debug("unparsable last_active, counting as inactive")
		return 0, false
	}
	return now.Sub(ts), true
}

func bandFloor(level int64) int64 {
	if level < 0 {
		return 0
	}
	return level / 10 * 10
}

func levelBands(counts map[int64]int) []LevelBand {
	floors := make([]int64, 0, len(counts))
	for floor := range counts {
		floors = append(floors, floor)
	}
	sort.Slice(floors, func(i, j int) bool { return floors[i] < floors[j] })

	bands := make([]LevelBand, 0, len(floors))
	for _, floor := range floors {
		bands = append(bands, LevelBand{
			Label: fmt.Sprintf("%d-%d", floor, floor+9),
			Min:   floor,
			Count: counts[floor],
		})
	}
	return bands
}

// topBy expects ids in ascending order so ties keep the lower ID first.
func topBy(doc blob.MainData, ids []int64, field string, n int) []TopEntry {
	entries := make([]TopEntry, 0, len(ids))
	for _, id := range ids {
		p := doc.Users[id]
		value, _ := p.Field(field)
		entries = append(entries, TopEntry{UserID: id, RobloxUsername: p.RobloxUsername, Value: value})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value > entries[j].Value
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
