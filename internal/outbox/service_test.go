package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fallen/dashboard/internal/audit"
	"fallen/dashboard/internal/dedupe"
	"fallen/dashboard/internal/logging"
	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/rbac"
	"fallen/dashboard/internal/store"
)

// memoryStore behaves like pending_dashboard_actions: IDs come from a
// sequence and new rows start out pending.
type memoryStore struct {
	rows       []store.PendingAction
	nextID     int64
	enqueueErr error
	readErr    error
	// cancelOnEnqueue simulates a client hanging up mid-insert.
	cancelOnEnqueue context.CancelFunc
}

func (m *memoryStore) EnqueueAction(ctx context.Context, action store.PendingAction) (int64, error) {
	if m.cancelOnEnqueue != nil {
		m.cancelOnEnqueue()
		m.cancelOnEnqueue = nil
		return 0, fmt.Errorf("enqueue action: %w", ctx.Err())
	}
	if m.enqueueErr != nil {
		return 0, m.enqueueErr
	}
	m.nextID++
	action.ID = m.nextID
	action.Status = store.ActionStatusPending
	action.CreatedAt = time.Now()
	m.rows = append(m.rows, action)
	return action.ID, nil
}

func (m *memoryStore) ListPendingActions(context.Context, int) ([]store.PendingAction, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]store.PendingAction, 0)
	for _, row := range m.rows {
		if row.Status == store.ActionStatusPending {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryStore) ListActionsForTarget(_ context.Context, target int64, _ int) ([]store.PendingAction, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]store.PendingAction, 0)
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].TargetUserID == target {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *memoryStore) ListRecentActions(context.Context, int) ([]store.PendingAction, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]store.PendingAction, 0, len(m.rows))
	for i := len(m.rows) - 1; i >= 0; i-- {
		out = append(out, m.rows[i])
	}
	return out, nil
}

type auditCall struct {
	staffID int64
	action  string
	target  *int64
	details string
}

type recordingAuditor struct {
	calls []auditCall
}

func (r *recordingAuditor) Record(_ context.Context, staffID int64, _ string, action string, targetID *int64, details string) {
	r.calls = append(r.calls, auditCall{staffID: staffID, action: action, target: targetID, details: details})
}

type fixture struct {
	svc     *Service
	store   *memoryStore
	audit   *recordingAuditor
	metrics *metrics.Metrics
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := &memoryStore{}
	auditor := &recordingAuditor{}
	m := metrics.New(prometheus.NewRegistry())
	guard := dedupe.NewRedisGuardWithClient(client, time.Hour)
	return fixture{
		svc:     NewService(st, guard, auditor, logging.Discard(), m),
		store:   st,
		audit:   auditor,
		metrics: m,
		redis:   mr,
	}
}

func staff(tier rbac.Tier) Staff {
	return Staff{ID: 9, Name: "Mod", Grant: rbac.Grant{IsStaff: tier > rbac.TierNone, Tier: tier}}
}

func TestSubmitBanThenListPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.svc.Submit(ctx, Request{
		Action:       "ban",
		TargetUserID: 55,
		Staff:        staff(rbac.TierAdmin),
		Params:       json.RawMessage(`{"reason":"spam"}`),
	})
	require.NoError(t, err)
	assert.Positive(t, receipt.ID)
	assert.Equal(t, store.ActionStatusPending, receipt.Status)
	assert.False(t, receipt.Duplicate)

	pending, status := f.svc.ListPending(ctx, 10)
	assert.Equal(t, store.StatusLoaded, status)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(55), pending[0].TargetUserID)
	assert.Equal(t, store.ActionStatusPending, pending[0].Status)
	assert.Equal(t, "ban", pending[0].ActionType)
	assert.JSONEq(t, `{"reason":"spam","delete_message_days":0}`, string(pending[0].Params))

	require.Len(t, f.audit.calls, 1)
	assert.Equal(t, "ban", f.audit.calls[0].action)
	assert.Equal(t, int64(55), *f.audit.calls[0].target)
	assert.Equal(t, "delete 0 days: spam", f.audit.calls[0].details)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsEnqueued.WithLabelValues("ban")))
}

func TestSubmitThenListForTargetHasFreshIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		receipt, err := f.svc.Submit(ctx, Request{
			Action:       "warn",
			TargetUserID: 77,
			Staff:        staff(rbac.TierModerator),
			Params:       json.RawMessage(`{"reason":"caps"}`),
		})
		require.NoError(t, err)
		assert.False(t, seen[receipt.ID], "id %d reused", receipt.ID)
		seen[receipt.ID] = true

		actions, _ := f.svc.ListForTarget(ctx, 77, 50)
		require.NotEmpty(t, actions)
		assert.Equal(t, receipt.ID, actions[0].ID)
		assert.Equal(t, store.ActionStatusPending, actions[0].Status)
	}
}

func TestSubmitGate(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		tier    rbac.Tier
		params  string
		wantErr error
	}{
		{name: "non staff warn", action: "warn", tier: rbac.TierNone, params: `{"reason":"x"}`, wantErr: ErrNotStaff},
		{name: "moderator kick", action: "kick", tier: rbac.TierModerator, wantErr: ErrInsufficientTier},
		{name: "senior ban", action: "ban", tier: rbac.TierSenior, wantErr: ErrInsufficientTier},
		{name: "senior kick", action: "kick", tier: rbac.TierSenior},
		{name: "moderator timeout", action: "timeout", tier: rbac.TierModerator, params: `{"minutes": 60}`},
		{name: "moderator add coins", action: "add_coins", tier: rbac.TierModerator, params: `{"amount": -50}`},
		{name: "unknown action", action: "nuke", tier: rbac.TierAdmin, wantErr: ErrUnknownAction},
		{name: "settings is not an outbox action", action: "manage_settings", tier: rbac.TierAdmin, wantErr: ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), Request{
				Action:       tt.action,
				TargetUserID: 55,
				Staff:        staff(tt.tier),
				Params:       json.RawMessage(tt.params),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.store.rows)
				assert.Empty(t, f.audit.calls)
				return
			}
			require.NoError(t, err)
			assert.Len(t, f.store.rows, 1)
		})
	}
}

func TestSubmitValidatesParams(t *testing.T) {
	tests := []struct {
		name   string
		action string
		params string
	}{
		{name: "warn without reason", action: "warn", params: `{}`},
		{name: "timeout too long", action: "timeout", params: `{"minutes": 50000}`},
		{name: "timeout zero", action: "timeout", params: `{"minutes": 0}`},
		{name: "ban delete days out of range", action: "ban", params: `{"delete_message_days": 8}`},
		{name: "zero xp", action: "add_xp", params: `{"amount": 0}`},
		{name: "elo missing", action: "set_elo", params: `{}`},
		{name: "elo negative", action: "set_elo", params: `{"elo": -1}`},
		{name: "negative warning index", action: "remove_warning", params: `{"index": -1}`},
		{name: "unknown field", action: "kick", params: `{"reason": "x", "silent": true}`},
		{name: "not an object", action: "kick", params: `"kick them"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), Request{
				Action:       tt.action,
				TargetUserID: 55,
				Staff:        staff(rbac.TierAdmin),
				Params:       json.RawMessage(tt.params),
			})
			assert.ErrorIs(t, err, ErrInvalidParams)
			assert.Empty(t, f.store.rows)
		})
	}
}

func TestSubmitAcceptsZeroValuesWherePresent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, Request{Action: "set_elo", TargetUserID: 1, Staff: staff(rbac.TierModerator), Params: json.RawMessage(`{"elo": 0}`)})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, Request{Action: "remove_warning", TargetUserID: 1, Staff: staff(rbac.TierModerator), Params: json.RawMessage(`{"index": 0}`)})
	require.NoError(t, err)

	require.Len(t, f.store.rows, 2)
	assert.JSONEq(t, `{"elo": 0}`, string(f.store.rows[0].Params))
	assert.JSONEq(t, `{"index": 0}`, string(f.store.rows[1].Params))
}

func TestSubmitRejectsBadTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), Request{Action: "kick", TargetUserID: 0, Staff: staff(rbac.TierAdmin)})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestSubmitAuditFailureDoesNotFailAction(t *testing.T) {
	st := &memoryStore{}
	m := metrics.New(prometheus.NewRegistry())
	auditLog := audit.New(failingAuditStore{}, logging.Discard(), m)
	svc := NewService(st, nil, auditLog, logging.Discard(), m)

	receipt, err := svc.Submit(context.Background(), Request{
		Action:       "kick",
		TargetUserID: 55,
		Staff:        staff(rbac.TierSenior),
	})
	require.NoError(t, err)
	assert.Positive(t, receipt.ID)
	assert.Len(t, st.rows, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures))
}

type failingAuditStore struct{}

func (failingAuditStore) InsertAuditLog(context.Context, store.AuditLogEntry) error {
	return errors.New("relation \"dashboard_audit_log\" is read only")
}

func (failingAuditStore) ListAuditLog(context.Context, int) ([]store.AuditLogEntry, error) {
	return nil, errors.New("unavailable")
}

func TestSubmitEnqueueFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.store.enqueueErr = errors.New("insert failed")

	_, err := f.svc.Submit(context.Background(), Request{
		Action:         "kick",
		TargetUserID:   55,
		Staff:          staff(rbac.TierSenior),
		IdempotencyKey: "req-1",
	})
	require.Error(t, err)
	assert.Empty(t, f.audit.calls)

	// The key was released, so a retry goes through once the store recovers.
	f.store.enqueueErr = nil
	receipt, err := f.svc.Submit(context.Background(), Request{
		Action:         "kick",
		TargetUserID:   55,
		Staff:          staff(rbac.TierSenior),
		IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
	assert.False(t, receipt.Duplicate)
}

func TestSubmitIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{
		Action:         "warn",
		TargetUserID:   55,
		Staff:          staff(rbac.TierModerator),
		Params:         json.RawMessage(`{"reason":"spam"}`),
		IdempotencyKey: "retry-me",
	}

	first, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	second, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.store.rows, 1)
	assert.Len(t, f.audit.calls, 1)

	// Keys are scoped per staff member.
	other := req
	other.Staff.ID = 10
	third, err := f.svc.Submit(ctx, other)
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
	assert.Len(t, f.store.rows, 2)

	// So are action and target: a reused key is a different request.
	retargeted := req
	retargeted.TargetUserID = 56
	fourth, err := f.svc.Submit(ctx, retargeted)
	require.NoError(t, err)
	assert.False(t, fourth.Duplicate)
	assert.NotEqual(t, first.ID, fourth.ID)

	kicked := req
	kicked.Action = "kick"
	kicked.Params = nil
	kicked.Staff = staff(rbac.TierSenior)
	fifth, err := f.svc.Submit(ctx, kicked)
	require.NoError(t, err)
	assert.False(t, fifth.Duplicate)
	assert.Len(t, f.store.rows, 4)
}

func TestSubmitCancelledDuringInsertReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.store.cancelOnEnqueue = cancel
	req := Request{
		Action:         "warn",
		TargetUserID:   55,
		Staff:          staff(rbac.TierModerator),
		Params:         json.RawMessage(`{"reason":"spam"}`),
		IdempotencyKey: "hangup",
	}

	_, err := f.svc.Submit(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.redis.Exists("fallen:idempotency:9:warn:55:hangup"))

	receipt, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, receipt.Duplicate)
	assert.Len(t, f.store.rows, 1)
}

func TestSubmitCompletesKeyAfterCallerLeaves(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	req := Request{
		Action:         "warn",
		TargetUserID:   55,
		Staff:          staff(rbac.TierModerator),
		Params:         json.RawMessage(`{"reason":"spam"}`),
		IdempotencyKey: "gone",
	}
	f.svc.store = cancelAfterInsert{memoryStore: f.store, cancel: cancel}

	first, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	stored, err := f.redis.Get("fallen:idempotency:9:warn:55:gone")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(first.ID), stored)
	assert.Equal(t, time.Hour, f.redis.TTL("fallen:idempotency:9:warn:55:gone"))
	assert.Len(t, f.audit.calls, 1)

	replay, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.ID, replay.ID)
}

// cancelAfterInsert commits the row and then cancels the caller's context.
type cancelAfterInsert struct {
	*memoryStore
	cancel context.CancelFunc
}

func (c cancelAfterInsert) EnqueueAction(ctx context.Context, action store.PendingAction) (int64, error) {
	id, err := c.memoryStore.EnqueueAction(ctx, action)
	c.cancel()
	return id, err
}

func TestSubmitIdempotencyKeyInFlight(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.redis.Set("fallen:idempotency:9:kick:55:busy", "0"))

	_, err := f.svc.Submit(context.Background(), Request{
		Action:         "kick",
		TargetUserID:   55,
		Staff:          staff(rbac.TierSenior),
		IdempotencyKey: "busy",
	})
	assert.ErrorIs(t, err, ErrDuplicateInFlight)
	assert.Empty(t, f.store.rows)
}

func TestListDegradesOnStoreError(t *testing.T) {
	f := newFixture(t)
	f.store.readErr = errors.New("connection refused")

	pending, status := f.svc.ListPending(context.Background(), 10)
	assert.Equal(t, store.StatusUnavailable, status)
	assert.NotNil(t, pending)
	assert.Empty(t, pending)

	forTarget, status := f.svc.ListForTarget(context.Background(), 55, 10)
	assert.Equal(t, store.StatusUnavailable, status)
	assert.Empty(t, forTarget)
}
