// Package outbox turns staff moderation requests into pending rows for the bot
// to execute. Nothing here changes game state or moves a row out of pending.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/dedupe"
	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/rbac"
	"fallen/dashboard/internal/store"
)

// guardTimeout bounds the key bookkeeping that runs after the caller may have
// gone away.
const guardTimeout = 5 * time.Second

var (
	ErrNotStaff          = errors.New("not a staff member")
	ErrInsufficientTier  = errors.New("insufficient permission tier")
	ErrUnknownAction     = errors.New("unknown action type")
	ErrInvalidParams     = errors.New("invalid action parameters")
	ErrDuplicateInFlight = errors.New("duplicate request still in flight")
)

type Store interface {
	EnqueueAction(ctx context.Context, action store.PendingAction) (int64, error)
	ListPendingActions(ctx context.Context, limit int) ([]store.PendingAction, error)
	ListActionsForTarget(ctx context.Context, targetUserID int64, limit int) ([]store.PendingAction, error)
	ListRecentActions(ctx context.Context, limit int) ([]store.PendingAction, error)
}

// Guard is implemented by dedupe.RedisGuard.
type Guard interface {
	Claim(ctx context.Context, key string) (dedupe.Claim, error)
	Complete(ctx context.Context, key string, actionID int64) error
	Release(ctx context.Context, key string) error
}

type Auditor interface {
	Record(ctx context.Context, staffID int64, staffName, action string, targetID *int64, details string)
}

// Staff identifies who is asking and what they were granted.
type Staff struct {
	ID    int64
	Name  string
	Grant rbac.Grant
}

type Request struct {
	Action         string
	TargetUserID   int64
	Staff          Staff
	Params         json.RawMessage
	IdempotencyKey string
}

// Receipt confirms the request was durably recorded, not that it ran.
type Receipt struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type Service struct {
	store    Store
	guard    Guard
	audit    Auditor
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewService builds the pipeline. guard may be nil, which disables
// idempotency keys.
func NewService(st Store, guard Guard, auditor Auditor, log logrus.FieldLogger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:    st,
		guard:    guard,
		audit:    auditor,
		log:      log,
		metrics:  m,
		validate: validator.New(),
	}
}

// Submit validates, gates and records one moderation request, then audits it.
// Only the outbox insert can fail the request; the audit write cannot.
func (s *Service) Submit(ctx context.Context, req Request) (Receipt, error) {
	action, ok := rbac.ParseModerationAction(req.Action)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	if req.TargetUserID <= 0 {
		return Receipt{}, fmt.Errorf("%w: target user id must be positive", ErrInvalidParams)
	}
	if err := gate(req.Staff.Grant, action); err != nil {
		return Receipt{}, err
	}
	params, details, err := decodeParams(s.validate, action, req.Params)
	if err != nil {
		return Receipt{}, err
	}
	if len(req.IdempotencyKey) > 128 {
		return Receipt{}, fmt.Errorf("%w: idempotency key too long", ErrInvalidParams)
	}

	key := ""
	if s.guard != nil && req.IdempotencyKey != "" {
		key = scopedKey(req.Staff.ID, action, req.TargetUserID, req.IdempotencyKey)
		claim, err := s.guard.Claim(ctx, key)
		if err != nil {
			return Receipt{}, err
		}
		if !claim.Acquired {
			if claim.InFlight() {
				return Receipt{}, ErrDuplicateInFlight
			}
			return Receipt{ID: claim.ExistingID, Status: store.ActionStatusPending, Duplicate: true}, nil
		}
	}

	id, err := s.store.EnqueueAction(ctx, store.PendingAction{
		ActionType:   string(action),
		TargetUserID: req.TargetUserID,
		StaffID:      req.Staff.ID,
		StaffName:    req.Staff.Name,
		Params:       params,
	})
	if err != nil {
		if key != "" {
			s.settleKey(ctx, key, func(ctx context.Context) error { return s.guard.Release(ctx, key) }, "release")
		}
		return Receipt{}, err
	}
	if key != "" {
		s.settleKey(ctx, key, func(ctx context.Context) error { return s.guard.Complete(ctx, key, id) }, "complete")
	}

	s.metrics.ActionEnqueued(string(action))
	s.log.WithFields(logrus.Fields{
		"action_id": id,
		"action":    action,
		"target_id": req.TargetUserID,
		"staff_id":  req.Staff.ID,
	}).Info("moderation action queued")

	if s.audit != nil {
		target := req.TargetUserID
		// The row is queued; its audit entry outlives the caller.
		s.audit.Record(context.WithoutCancel(ctx), req.Staff.ID, req.Staff.Name, string(action), &target, details)
	}
	return Receipt{ID: id, Status: store.ActionStatusPending}, nil
}

// scopedKey ties a client key to the staff member, action and target, so
// reusing a key for a different request claims a fresh slot.
func scopedKey(staffID int64, action rbac.Action, targetUserID int64, idempotencyKey string) string {
	return strconv.FormatInt(staffID, 10) + ":" + string(action) + ":" +
		strconv.FormatInt(targetUserID, 10) + ":" + idempotencyKey
}

// settleKey runs op detached from the request context. A client that
// disconnects mid-insert must not leave its key stuck in flight.
func (s *Service) settleKey(ctx context.Context, key string, op func(context.Context) error, verb string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guardTimeout)
	defer cancel()
	if err := op(ctx); err != nil {
		s.log.WithError(err).WithField("key", key).Warnf("failed to %s idempotency key", verb)
	}
}

func gate(grant rbac.Grant, action rbac.Action) error {
	if !grant.IsStaff {
		return ErrNotStaff
	}
	if !rbac.Can(grant, action) {
		required, _ := rbac.RequiredTier(action)
		return fmt.Errorf("%w: %s requires tier %d", ErrInsufficientTier, action, required)
	}
	return nil
}

// ListPending returns queued actions oldest first, the order the bot drains
// them in.
func (s *Service) ListPending(ctx context.Context, limit int) ([]store.PendingAction, store.Status) {
	actions, err := s.store.ListPendingActions(ctx, limit)
	return s.readResult(actions, err)
}

// ListForTarget returns every action against targetUserID, newest first, in
// whatever state the bot has left it.
func (s *Service) ListForTarget(ctx context.Context, targetUserID int64, limit int) ([]store.PendingAction, store.Status) {
	actions, err := s.store.ListActionsForTarget(ctx, targetUserID, limit)
	return s.readResult(actions, err)
}

// ListRecent returns the latest actions across all targets, newest first.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]store.PendingAction, store.Status) {
	actions, err := s.store.ListRecentActions(ctx, limit)
	return s.readResult(actions, err)
}

func (s *Service) readResult(actions []store.PendingAction, err error) ([]store.PendingAction, store.Status) {
	if err != nil {
		status := store.Classify(err)
		s.metrics.SourceDefaulted("pending_dashboard_actions", string(status))
		s.log.WithFields(logrus.Fields{
			"source": "pending_dashboard_actions",
			"status": status,
		}).WithError(err).Warn("outbox read failed, using empty result")
		return []store.PendingAction{}, status
	}
	if actions == nil {
		actions = []store.PendingAction{}
	}
	return actions, store.StatusLoaded
}
