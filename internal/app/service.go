package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/analytics"
	"fallen/dashboard/internal/audit"
	"fallen/dashboard/internal/auth"
	"fallen/dashboard/internal/clan"
	"fallen/dashboard/internal/members"
	"fallen/dashboard/internal/outbox"
	"fallen/dashboard/internal/rbac"
	"fallen/dashboard/internal/store"
)

// SettingsStore holds the two permission tables staff manage from the
// dashboard. It is implemented by store.PostgresStore.
type SettingsStore interface {
	ListStaffRoles(ctx context.Context) ([]store.StaffRole, error)
	UpsertStaffRole(ctx context.Context, role store.StaffRole) error
	DeleteStaffRole(ctx context.Context, userID int64) (bool, error)
	ListRoleConfig(ctx context.Context) ([]store.RoleConfig, error)
	UpsertRoleConfig(ctx context.Context, role store.RoleConfig) error
	DeleteRoleConfig(ctx context.Context, roleID string) (bool, error)
	Ping(ctx context.Context) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Members   *members.Service
	Analytics *analytics.Service
	Clan      *clan.Service
	Outbox    *outbox.Service
	Audit     *audit.Log
	Resolver  *rbac.Resolver
	Signer    *auth.Signer
	Settings  SettingsStore
	// Redis is optional and only checked for readiness when set.
	Redis Pinger
	Log   logrus.FieldLogger
}

type Service struct {
	Deps
	validate *validator.Validate
}

func NewService(deps Deps) *Service {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Service{Deps: deps, validate: validator.New()}
}

// Session is the caller of a request: the identity snapshot from their token
// and the grant resolved for it on this request.
type Session struct {
	UserID  int64
	Name    string
	Avatar  string
	RoleIDs []string
	Grant   rbac.Grant
}

func (s *Service) Ping(ctx context.Context) error {
	return s.Settings.Ping(ctx)
}

// SessionFromToken verifies token and resolves the caller's permissions
// against the current staff tables.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.Signer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	userID := claims.UserID()
	return Session{
		UserID:  userID,
		Name:    claims.Name,
		Avatar:  claims.Avatar,
		RoleIDs: claims.RoleIDs,
		Grant:   s.Resolver.Resolve(ctx, userID, claims.RoleIDs),
	}, nil
}

func (s *Service) staff(session Session) outbox.Staff {
	return outbox.Staff{ID: session.UserID, Name: session.Name, Grant: session.Grant}
}

// =============================================================================
// Staff settings
// =============================================================================

type StaffGrantRequest struct {
	UserID      int64  `json:"-" validate:"required,gt=0"`
	DisplayName string `json:"display_name" validate:"max=100"`
	Tier        int    `json:"permission_tier" validate:"min=1,max=3"`
}

type RoleTierRequest struct {
	RoleID   string `json:"-" validate:"required,numeric,max=32"`
	RoleName string `json:"role_name" validate:"max=100"`
	Tier     int    `json:"permission_tier" validate:"min=1,max=3"`
}

func (s *Service) ListStaff(ctx context.Context) ([]store.StaffRole, error) {
	return s.Settings.ListStaffRoles(ctx)
}

func (s *Service) ListRoleTiers(ctx context.Context) ([]store.RoleConfig, error) {
	return s.Settings.ListRoleConfig(ctx)
}

func (s *Service) GrantStaff(ctx context.Context, session Session, req StaffGrantRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	err := s.Settings.UpsertStaffRole(ctx, store.StaffRole{
		DiscordUserID:  req.UserID,
		DisplayName:    req.DisplayName,
		PermissionTier: req.Tier,
		AddedBy:        session.UserID,
	})
	if err != nil {
		return err
	}
	target := req.UserID
	s.Audit.Record(ctx, session.UserID, session.Name, "staff_grant", &target, fmt.Sprintf("tier %d", req.Tier))
	return nil
}

func (s *Service) RevokeStaff(ctx context.Context, session Session, userID int64) error {
	if userID <= 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "user id must be positive", nil)
	}
	removed, err := s.Settings.DeleteStaffRole(ctx, userID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Staff grant not found", nil)
	}
	s.Audit.Record(ctx, session.UserID, session.Name, "staff_revoke", &userID, "")
	return nil
}

func (s *Service) SetRoleTier(ctx context.Context, session Session, req RoleTierRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	err := s.Settings.UpsertRoleConfig(ctx, store.RoleConfig{
		DiscordRoleID:  req.RoleID,
		RoleName:       req.RoleName,
		PermissionTier: req.Tier,
	})
	if err != nil {
		return err
	}
	s.Audit.Record(ctx, session.UserID, session.Name, "role_config_set", nil, fmt.Sprintf("role %s: tier %d", req.RoleID, req.Tier))
	return nil
}

func (s *Service) RemoveRoleTier(ctx context.Context, session Session, roleID string) error {
	if _, err := strconv.ParseUint(roleID, 10, 64); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role id must be numeric", nil)
	}
	removed, err := s.Settings.DeleteRoleConfig(ctx, roleID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Role mapping not found", nil)
	}
	s.Audit.Record(ctx, session.UserID, session.Name, "role_config_remove", nil, "role "+roleID)
	return nil
}
