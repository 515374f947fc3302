// Package clan serves the raid, war, tournament and recruitment tables. Reads degrade to
// empty results while those tables are missing or unreachable.
package clan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/store"
)

var (
	ErrInvalidApplication = errors.New("invalid application")
	ErrPositionClosed     = errors.New("position is not open")
)

// Tables is implemented by store.PostgresStore.
type Tables interface {
	RecentRaids(ctx context.Context, limit int) ([]store.Row, error)
	RaidLeaderboard(ctx context.Context, limit int) ([]store.RaidStat, error)
	Wars(ctx context.Context, limit int) ([]store.Row, error)
	WarRecord(ctx context.Context) (store.WarRecord, error)
	Tournaments(ctx context.Context, limit int) ([]store.Row, error)
	OpenPositions(ctx context.Context) ([]store.Row, error)
	Applications(ctx context.Context, status string, limit int) ([]store.Row, error)
	UserApplications(ctx context.Context, userID int64) ([]store.Row, error)
	PositionIsOpen(ctx context.Context, positionID int64) (bool, error)
	SubmitApplication(ctx context.Context, app store.Application) (int64, error)
}

type Service struct {
	tables   Tables
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	validate *validator.Validate
}

func NewService(tables Tables, log logrus.FieldLogger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{tables: tables, log: log, metrics: m, validate: validator.New()}
}

func (s *Service) RecentRaids(ctx context.Context, limit int) ([]store.Row, store.Status) {
	rows, err := s.tables.RecentRaids(ctx, limit)
	return rowsOrEmpty(rows), s.status("raid_sessions", err)
}

func (s *Service) RaidLeaderboard(ctx context.Context, limit int) ([]store.RaidStat, store.Status) {
	stats, err := s.tables.RaidLeaderboard(ctx, limit)
	if err != nil || stats == nil {
		stats = []store.RaidStat{}
	}
	return stats, s.status("raid_stats", err)
}

func (s *Service) Wars(ctx context.Context, limit int) ([]store.Row, store.Status) {
	rows, err := s.tables.Wars(ctx, limit)
	return rowsOrEmpty(rows), s.status("wars", err)
}

func (s *Service) WarRecord(ctx context.Context) (store.WarRecord, store.Status) {
	record, err := s.tables.WarRecord(ctx)
	if err != nil {
		record = store.WarRecord{}
	}
	return record, s.status("wars", err)
}

func (s *Service) Tournaments(ctx context.Context, limit int) ([]store.Row, store.Status) {
	rows, err := s.tables.Tournaments(ctx, limit)
	return rowsOrEmpty(rows), s.status("tournaments", err)
}

func (s *Service) OpenPositions(ctx context.Context) ([]store.Row, store.Status) {
	rows, err := s.tables.OpenPositions(ctx)
	return rowsOrEmpty(rows), s.status("recruitment_positions", err)
}

// Applications lists applications with the given status, or all of them when
// status is empty.
func (s *Service) Applications(ctx context.Context, status string, limit int) ([]store.Row, store.Status) {
	rows, err := s.tables.Applications(ctx, status, limit)
	return rowsOrEmpty(rows), s.status("recruitment_applications", err)
}

func (s *Service) UserApplications(ctx context.Context, userID int64) ([]store.Row, store.Status) {
	rows, err := s.tables.UserApplications(ctx, userID)
	return rowsOrEmpty(rows), s.status("recruitment_applications", err)
}

// ApplicationRequest is what an applicant submits for an open position.
type ApplicationRequest struct {
	PositionID int64             `json:"position_id" validate:"required,gt=0"`
	UserID     int64             `json:"-" validate:"required,gt=0"`
	Username   string            `json:"-" validate:"required,max=100"`
	Answers    map[string]string `json:"answers" validate:"required,min=1,max=20,dive,keys,min=1,max=100,endkeys,max=2000"`
}

// SubmitApplication is a write path: failures are returned, not defaulted.
func (s *Service) SubmitApplication(ctx context.Context, req ApplicationRequest) (int64, error) {
	if err := s.validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidApplication, err)
	}
	open, err := s.tables.PositionIsOpen(ctx, req.PositionID)
	if err != nil {
		return 0, err
	}
	if !open {
		return 0, ErrPositionClosed
	}
	answers, err := marshalAnswers(req.Answers)
	if err != nil {
		return 0, err
	}
	id, err := s.tables.SubmitApplication(ctx, store.Application{
		PositionID: req.PositionID,
		UserID:     req.UserID,
		Username:   req.Username,
		Answers:    answers,
	})
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"application_id": id,
		"position_id":    req.PositionID,
		"user_id":        req.UserID,
	}).Info("recruitment application submitted")
	return id, nil
}

func (s *Service) status(table string, err error) store.Status {
	if err == nil {
		return store.StatusLoaded
	}
	status := store.Classify(err)
	s.metrics.SourceDefaulted(table, string(status))
	s.log.WithFields(logrus.Fields{
		"source": table,
		"status": status,
	}).WithError(err).Warn("table read failed, using empty result")
	return status
}

func rowsOrEmpty(rows []store.Row) []store.Row {
	if rows == nil {
		return []store.Row{}
	}
	return rows
}

func marshalAnswers(answers map[string]string) (json.RawMessage, error) {
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return raw, nil
}
