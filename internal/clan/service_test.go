package clan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fallen/dashboard/internal/logging"
	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/store"
)

type fakeTables struct {
	rows      []store.Row
	stats     []store.RaidStat
	record    store.WarRecord
	err       error
	open      bool
	submitted []store.Application
	submitErr error
}

func (f *fakeTables) RecentRaids(context.Context, int) ([]store.Row, error) { return f.rows, f.err }
func (f *fakeTables) RaidLeaderboard(context.Context, int) ([]store.RaidStat, error) {
	return f.stats, f.err
}
func (f *fakeTables) Wars(context.Context, int) ([]store.Row, error)        { return f.rows, f.err }
func (f *fakeTables) WarRecord(context.Context) (store.WarRecord, error)    { return f.record, f.err }
func (f *fakeTables) Tournaments(context.Context, int) ([]store.Row, error) { return f.rows, f.err }
func (f *fakeTables) OpenPositions(context.Context) ([]store.Row, error)    { return f.rows, f.err }
func (f *fakeTables) UserApplications(context.Context, int64) ([]store.Row, error) {
	return f.rows, f.err
}
func (f *fakeTables) Applications(context.Context, string, int) ([]store.Row, error) {
	return f.rows, f.err
}
func (f *fakeTables) PositionIsOpen(context.Context, int64) (bool, error) { return f.open, f.err }

func (f *fakeTables) SubmitApplication(_ context.Context, app store.Application) (int64, error) {
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.submitted = append(f.submitted, app)
	return int64(len(f.submitted)), nil
}

func newTestService(tables Tables) (*Service, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewService(tables, logging.Discard(), m), m
}

func TestReadsPassThrough(t *testing.T) {
	tables := &fakeTables{
		rows:   []store.Row{{"id": int64(1), "name": "Raid on Keep"}},
		stats:  []store.RaidStat{{UserID: 5, RaidsParticipated: 3}},
		record: store.WarRecord{Total: 3, Wins: 2, Losses: 1},
	}
	svc, _ := newTestService(tables)
	ctx := context.Background()

	raids, status := svc.RecentRaids(ctx, 20)
	assert.Equal(t, store.StatusLoaded, status)
	assert.Equal(t, tables.rows, raids)

	stats, status := svc.RaidLeaderboard(ctx, 20)
	assert.Equal(t, store.StatusLoaded, status)
	assert.Equal(t, tables.stats, stats)

	record, _ := svc.WarRecord(ctx)
	assert.Equal(t, tables.record, record)
}

func TestReadsDegradeToEmpty(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want store.Status
	}{
		{name: "table not created", err: fmt.Errorf("read wars: %w", store.ErrTableMissing), want: store.StatusMissing},
		{name: "undefined column", err: &pgconn.PgError{Code: "42703"}, want: store.StatusMissing},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), want: store.StatusUnavailable},
		{name: "timeout", err: context.DeadlineExceeded, want: store.StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService(&fakeTables{err: tt.err})
			ctx := context.Background()

			wars, status := svc.Wars(ctx, 10)
			assert.Equal(t, tt.want, status)
			assert.NotNil(t, wars)
			assert.Empty(t, wars)

			record, status := svc.WarRecord(ctx)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, store.WarRecord{}, record)

			stats, _ := svc.RaidLeaderboard(ctx, 10)
			assert.NotNil(t, stats)
			assert.Empty(t, stats)

			tournaments, status := svc.Tournaments(ctx, 10)
			assert.Equal(t, tt.want, status)
			assert.NotNil(t, tournaments)
			assert.Empty(t, tournaments)

			positions, _ := svc.OpenPositions(ctx)
			assert.Empty(t, positions)
			apps, _ := svc.Applications(ctx, "pending", 10)
			assert.Empty(t, apps)
			mine, _ := svc.UserApplications(ctx, 1)
			assert.Empty(t, mine)

			assert.Equal(t, 2.0, testutil.ToFloat64(m.SourceDefaults.WithLabelValues("wars", string(tt.want))))
		})
	}
}

func validApplication() ApplicationRequest {
	return ApplicationRequest{
		PositionID: 3,
		UserID:     42,
		Username:   "Shadow",
		Answers:    map[string]string{"why": "I want to help"},
	}
}

func TestSubmitApplication(t *testing.T) {
	tables := &fakeTables{open: true}
	svc, _ := newTestService(tables)

	id, err := svc.SubmitApplication(context.Background(), validApplication())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.Len(t, tables.submitted, 1)
	assert.Equal(t, int64(42), tables.submitted[0].UserID)
	assert.JSONEq(t, `{"why": "I want to help"}`, string(tables.submitted[0].Answers))
}

func TestSubmitApplicationFailures(t *testing.T) {
	storeErr := errors.New("insert failed")

	tests := []struct {
		name    string
		tables  *fakeTables
		mutate  func(*ApplicationRequest)
		wantErr error
	}{
		{
			name:    "missing answers",
			tables:  &fakeTables{open: true},
			mutate:  func(r *ApplicationRequest) { r.Answers = nil },
			wantErr: ErrInvalidApplication,
		},
		{
			name:    "missing position",
			tables:  &fakeTables{open: true},
			mutate:  func(r *ApplicationRequest) { r.PositionID = 0 },
			wantErr: ErrInvalidApplication,
		},
		{
			name:    "closed position",
			tables:  &fakeTables{open: false},
			mutate:  func(*ApplicationRequest) {},
			wantErr: ErrPositionClosed,
		},
		{
			name:    "store failure surfaces",
			tables:  &fakeTables{open: true, submitErr: storeErr},
			mutate:  func(*ApplicationRequest) {},
			wantErr: storeErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(tt.tables)
			req := validApplication()
			tt.mutate(&req)

			_, err := svc.SubmitApplication(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, tt.tables.submitted)
		})
	}
}
