// Package audit records staff activity. Writes are best effort: a failed
// audit write is logged and counted, and never fails the action it describes.
package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/store"
)

type Store interface {
	InsertAuditLog(ctx context.Context, entry store.AuditLogEntry) error
	ListAuditLog(ctx context.Context, limit int) ([]store.AuditLogEntry, error)
}

type Log struct {
	store   Store
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func New(st Store, log logrus.FieldLogger, m *metrics.Metrics) *Log {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Log{store: st, log: log, metrics: m}
}

// Record appends an entry. targetID may be nil.
func (l *Log) Record(ctx context.Context, staffID int64, staffName, action string, targetID *int64, details string) {
	entry := store.AuditLogEntry{
		StaffID:   staffID,
		StaffName: staffName,
		Action:    action,
		TargetID:  targetID,
		Details:   details,
	}
	if err := l.store.InsertAuditLog(ctx, entry); err != nil {
		l.metrics.AuditFailed()
		fields := logrus.Fields{
			"staff_id": staffID,
			"action":   action,
		}
		if targetID != nil {
			fields["target_id"] = *targetID
		}
		l.log.WithFields(fields).WithError(err).Error("audit log write failed")
	}
}

// Recent returns the newest entries, or an empty list when the table cannot
// be read.
func (l *Log) Recent(ctx context.Context, limit int) ([]store.AuditLogEntry, store.Status) {
	entries, err := l.store.ListAuditLog(ctx, limit)
	if err != nil {
		status := store.Classify(err)
		l.metrics.SourceDefaulted("dashboard_audit_log", string(status))
		l.log.WithFields(logrus.Fields{
			"source": "dashboard_audit_log",
			"status": status,
		}).WithError(err).Warn("audit log read failed, using empty result")
		return []store.AuditLogEntry{}, status
	}
	return entries, store.StatusLoaded
}
