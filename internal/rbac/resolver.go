package rbac

import (
	"context"

	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/store"
)

// Grant sources, in evaluation order.
const (
	SourceAdmin        = "admin"
	SourceStaffRoles   = "staff_roles"
	SourceRoleConfig   = "role_config"
	SourceStaffRoleIDs = "staff_role_ids"
)

// Grant is the outcome of resolving a user's staff status.
type Grant struct {
	IsStaff bool     `json:"is_staff"`
	Tier    Tier     `json:"tier"`
	Sources []string `json:"sources"`
}

func (g *Grant) raise(tier Tier, source string) {
	g.IsStaff = true
	if tier > g.Tier {
		g.Tier = tier
	}
	g.Sources = append(g.Sources, source)
}

// Store is the part of store.PostgresStore the resolver reads.
type Store interface {
	GetStaffRole(ctx context.Context, userID int64) (*store.StaffRole, error)
	ListRoleConfig(ctx context.Context) ([]store.RoleConfig, error)
}

// Resolver combines four sources of staff authority. Every source can only
// raise the tier, so configuring one never demotes a user granted by another.
type Resolver struct {
	admins       map[int64]struct{}
	staffRoleIDs map[string]struct{}
	store        Store
	log          logrus.FieldLogger
}

func NewResolver(adminIDs []int64, staffRoleIDs []string, st Store, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Resolver{
		admins:       make(map[int64]struct{}, len(adminIDs)),
		staffRoleIDs: make(map[string]struct{}, len(staffRoleIDs)),
		store:        st,
		log:          log,
	}
	for _, id := range adminIDs {
		r.admins[id] = struct{}{}
	}
	for _, id := range staffRoleIDs {
		r.staffRoleIDs[id] = struct{}{}
	}
	return r
}

// Resolve returns the grant for userID holding roleIDs. A failing database
// source is logged and skipped; it can only withhold a grant, never revoke one
// from another source.
func (r *Resolver) Resolve(ctx context.Context, userID int64, roleIDs []string) Grant {
	grant := Grant{Sources: []string{}}

	if _, ok := r.admins[userID]; ok {
		grant.raise(TierAdmin, SourceAdmin)
	}

	if r.store != nil {
		r.fromStaffRoles(ctx, &grant, userID)
		r.fromRoleConfig(ctx, &grant, userID, roleIDs)
	}

	for _, roleID := range roleIDs {
		if _, ok := r.staffRoleIDs[roleID]; ok {
			grant.raise(TierSenior, SourceStaffRoleIDs)
			break
		}
	}
	return grant
}

func (r *Resolver) fromStaffRoles(ctx context.Context, grant *Grant, userID int64) {
	role, err := r.store.GetStaffRole(ctx, userID)
	if err != nil {
		r.sourceFailed(SourceStaffRoles, userID, err)
		return
	}
	if role != nil && Tier(role.PermissionTier).Valid() {
		grant.raise(Tier(role.PermissionTier), SourceStaffRoles)
	}
}

func (r *Resolver) fromRoleConfig(ctx context.Context, grant *Grant, userID int64, roleIDs []string) {
	if len(roleIDs) == 0 {
		return
	}
	configs, err := r.store.ListRoleConfig(ctx)
	if err != nil {
		r.sourceFailed(SourceRoleConfig, userID, err)
		return
	}
	held := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = struct{}{}
	}
	best := TierNone
	for _, config := range configs {
		if _, ok := held[config.DiscordRoleID]; !ok {
			continue
		}
		if tier := Tier(config.PermissionTier); tier.Valid() && tier > best {
			best = tier
		}
	}
	if best != TierNone {
		grant.raise(best, SourceRoleConfig)
	}
}

func (r *Resolver) sourceFailed(source string, userID int64, err error) {
	r.log.WithFields(logrus.Fields{
		"source":  source,
		"user_id": userID,
		"status":  store.Classify(err),
	}).WithError(err).Warn("permission source unavailable, skipping")
}
