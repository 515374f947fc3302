// Package members merges the bot's blob documents into per-user views,
// leaderboards and ranks. Every call re-reads the documents it needs; nothing
// derived is kept between calls.
package members

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"fallen/dashboard/internal/blob"
	"fallen/dashboard/internal/catalog"
	"fallen/dashboard/internal/store"
)

// Blobs is the subset of blob.Reader the merger needs.
type Blobs interface {
	Main(ctx context.Context) (blob.MainData, store.Status)
	Duels(ctx context.Context) (blob.DuelsData, store.Status)
	Warnings(ctx context.Context) (blob.WarningsData, store.Status)
	Guardian(ctx context.Context) (blob.GuardianStats, store.Status)
}

type Service struct {
	blobs Blobs
}

func NewService(blobs Blobs) *Service {
	return &Service{blobs: blobs}
}

// User is a profile decorated with fields derived from the other documents.
// None of the derived fields are ever written back.
type User struct {
	blob.Profile
	EloRating      int64          `json:"elo_rating"`
	Warnings       []blob.Warning `json:"warnings"`
	WarningPoints  int64          `json:"warning_points"`
	StageRank      *int           `json:"stage_rank"`
	AvatarURL      string         `json:"avatar_url"`
	InventoryItems []catalog.Item `json:"inventory_items"`
}

// GetUser returns the merged view of userID, or nil when the user is not in
// main_data. The reads behind it are independent, so the view may mix state
// from before and after a concurrent bot write.
func (s *Service) GetUser(ctx context.Context, userID int64) (*User, store.Status) {
	doc, docStatus := s.blobs.Main(ctx)
	profile, ok := doc.Users[userID]
	if !ok {
		return nil, docStatus
	}
	duels, duelsStatus := s.blobs.Duels(ctx)
	warnings, warningsStatus := s.blobs.Warnings(ctx)

	summary := warnings.Summary(userID)
	user := &User{
		Profile:        profile,
		EloRating:      duels.Rating(userID),
		Warnings:       summary.Warnings,
		WarningPoints:  summary.TotalPoints,
		StageRank:      stageRank(doc.Roster, userID),
		AvatarURL:      AvatarURL(userID, profile.AvatarURL),
		InventoryItems: catalog.Resolve(profile.Inventory),
	}
	return user, store.Combine(docStatus, duelsStatus, warningsStatus)
}

func (s *Service) TotalUsers(ctx context.Context) (int, store.Status) {
	doc, status := s.blobs.Main(ctx)
	return len(doc.Users), status
}

func (s *Service) GetRoster(ctx context.Context) (blob.Roster, store.Status) {
	doc, status := s.blobs.Main(ctx)
	return doc.Roster, status
}

// GetStageRank returns the 1-based roster slot of userID, nil when unlisted.
func (s *Service) GetStageRank(ctx context.Context, userID int64) (*int, store.Status) {
	doc, status := s.blobs.Main(ctx)
	return stageRank(doc.Roster, userID), status
}

func (s *Service) GuardianStats(ctx context.Context) (blob.GuardianStats, store.Status) {
	return s.blobs.Guardian(ctx)
}

func stageRank(roster blob.Roster, userID int64) *int {
	rank, ok := roster.StageRank(userID)
	if !ok {
		return nil
	}
	return &rank
}

const defaultAvatarCount = 5

// AvatarURL returns stored when it is a full URL, treats any other stored value
// as an avatar hash, and falls back to one of the default avatars picked by
// userID.
func AvatarURL(userID int64, stored string) string {
	stored = strings.TrimSpace(stored)
	switch {
	case strings.HasPrefix(stored, "http"):
		return stored
	case stored != "":
		return discordgo.EndpointUserAvatar(formatID(userID), stored)
	default:
		index := userID % defaultAvatarCount
		if index < 0 {
			index = -index
		}
		return discordgo.EndpointDefaultUserAvatar(int(index))
	}
}
