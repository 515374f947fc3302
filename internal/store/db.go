package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const applicationName = "FallenDashboard"

type PoolConfig struct {
	MaxConns int
	MinConns int
}

func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	connConfig.RuntimeParams["application_name"] = applicationName

	db := stdlib.OpenDB(*connConfig)
	if pool.MaxConns <= 0 {
		pool.MaxConns = 8
	}
	if pool.MinConns < 0 || pool.MinConns > pool.MaxConns {
		pool.MinConns = pool.MaxConns
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(pool.MinConns)
	db.SetMaxOpenConns(pool.MaxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
