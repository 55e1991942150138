package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/retry"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewConnection creates a connection pool and waits for the server to answer.
// Startup races with a database container are common, so the first ping is retried.
func NewConnection(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	err = retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", logging.SanitizeConnectionString(cfg.URL), err)
	}

	logger.Info("Connected to database",
		zap.String("url", logging.SanitizeConnectionString(cfg.URL)),
		zap.Int32("max_conns", poolConfig.MaxConns))

	return &DB{Pool: pool}, nil
}

// SQLDB exposes the pool through database/sql, as golang-migrate requires.
// Closing the returned handle does not close the pool.
func (db *DB) SQLDB() *sql.DB {
	return stdlib.OpenDBFromPool(db.Pool)
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
