// Package postgres stores content, attempt history and adaptive sessions in
// PostgreSQL. Read-heavy content and history queries go through a pgx pool;
// migrations and sessions use database/sql with the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/felixgeelhaar/temario/internal/storage/migrations"
)

// PoolConfig tunes both connection pools
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DefaultPoolConfig returns the pool defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
	}
}

// DB holds the pgx pool and the database/sql handle to one database
type DB struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
}

// Open connects to dsn and verifies both handles
func Open(ctx context.Context, dsn string, cfg PoolConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(int(max(cfg.MaxConns/2, 2)))
	sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	if err := sqlDB.PingContext(ctx); err != nil {
		pool.Close()
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{Pool: pool, SQL: sqlDB}, nil
}

// Close releases both handles
func (db *DB) Close() error {
	db.Pool.Close()
	return db.SQL.Close()
}

// Migrate applies pending migrations, one transaction each
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.SQL.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := db.Version(ctx)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	all, err := migrations.Load(migrations.Postgres)
	if err != nil {
		return err
	}

	for _, m := range all {
		if m.Version <= current {
			continue
		}

		tx, err := db.SQL.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.Name, describe(err))
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Name, err)
		}
		slog.Info("applied migration", "name", m.Name, "version", m.Version)
	}
	return nil
}

// Version returns the current schema version
func (db *DB) Version(ctx context.Context) (int, error) {
	var version int
	err := db.SQL.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// describe adds the server-side detail of a postgres error
func describe(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if pqErr.Detail == "" {
		return fmt.Errorf("%w (sqlstate %s)", err, pqErr.Code)
	}
	return fmt.Errorf("%w (sqlstate %s: %s)", err, pqErr.Code, pqErr.Detail)
}
