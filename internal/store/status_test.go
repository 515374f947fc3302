package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{name: "nil", err: nil, want: StatusLoaded},
		{name: "no rows", err: fmt.Errorf("get staff role: %w", sql.ErrNoRows), want: StatusMissing},
		{name: "table missing sentinel", err: fmt.Errorf("read wars: %w", ErrTableMissing), want: StatusMissing},
		{name: "undefined table", err: fmt.Errorf("list audit log: %w", &pgconn.PgError{Code: "42P01"}), want: StatusMissing},
		{name: "undefined column", err: &pgconn.PgError{Code: "42703"}, want: StatusMissing},
		{name: "other sqlstate", err: &pgconn.PgError{Code: "57014"}, want: StatusUnavailable},
		{name: "timeout", err: context.DeadlineExceeded, want: StatusUnavailable},
		{name: "network", err: errors.New("connection refused"), want: StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestCombine(t *testing.T) {
	assert.Equal(t, StatusLoaded, Combine())
	assert.Equal(t, StatusLoaded, Combine(StatusLoaded, StatusLoaded))
	assert.Equal(t, StatusMissing, Combine(StatusLoaded, StatusMissing))
	assert.Equal(t, StatusMalformed, Combine(StatusMissing, StatusMalformed, StatusLoaded))
	assert.Equal(t, StatusUnavailable, Combine(StatusUnavailable, StatusMalformed))
}

func TestDefaulted(t *testing.T) {
	assert.False(t, StatusLoaded.Defaulted())
	for _, status := range []Status{StatusMissing, StatusMalformed, StatusUnavailable} {
		assert.True(t, status.Defaulted(), status)
	}
}
