package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Status describes where a read result came from. Every status other than
// StatusLoaded means the caller received a default value.
type Status string

const (
	StatusLoaded      Status = "loaded"
	StatusMissing     Status = "missing"
	StatusMalformed   Status = "malformed"
	StatusUnavailable Status = "unavailable"
)

// ErrTableMissing is returned by readers of tables owned by the bot when the
// table has not been created yet.
var ErrTableMissing = errors.New("table does not exist")

const (
	sqlStateUndefinedTable  = "42P01"
	sqlStateUndefinedColumn = "42703"
)

func (s Status) Defaulted() bool {
	return s != StatusLoaded
}

// Classify maps a read error onto a Status. Absent rows, tables and columns
// count as missing data; everything else, timeouts included, as unavailable.
func Classify(err error) Status {
	if err == nil {
		return StatusLoaded
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrTableMissing) {
		return StatusMissing
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUndefinedTable, sqlStateUndefinedColumn:
			return StatusMissing
		}
	}
	return StatusUnavailable
}

var statusSeverity = map[Status]int{
	StatusLoaded:      0,
	StatusMissing:     1,
	StatusMalformed:   2,
	StatusUnavailable: 3,
}

// Combine returns the most severe of statuses, so a view built from several
// reads reports defaulted when any one of them was.
func Combine(statuses ...Status) Status {
	worst := StatusLoaded
	for _, status := range statuses {
		if statusSeverity[status] > statusSeverity[worst] {
			worst = status
		}
	}
	return worst
}
