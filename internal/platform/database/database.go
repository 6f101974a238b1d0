// Package database provides PostgreSQL connection management via pgx and
// the schema of the progress backend of record.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL.
func ParseURL(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	return cfg, nil
}

// New creates a new database connection pool.
func New(ctx context.Context, url string, maxConns, minConns int) (*DB, error) {
	cfg, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = int32(maxConns)
	cfg.MinConns = int32(minConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Schema is the DDL for assignments, the XP ledger, the question bank and
// session snapshots. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS assignments (
		username      TEXT NOT NULL,
		content_id    TEXT NOT NULL,
		curriculum_id TEXT NOT NULL,
		position      INT  NOT NULL,
		task_key      TEXT NOT NULL,
		difficulty    DOUBLE PRECISION NOT NULL DEFAULT 0,
		standard      TEXT NOT NULL DEFAULT '',
		objective     TEXT NOT NULL DEFAULT '',
		tags          TEXT[] NOT NULL DEFAULT '{}',
		PRIMARY KEY (username, content_id, curriculum_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS xp_attempts (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL,
		question_id   TEXT NOT NULL,
		content_id    TEXT NOT NULL,
		curriculum_id TEXT NOT NULL,
		standard      TEXT NOT NULL DEFAULT '',
		objective     TEXT NOT NULL DEFAULT '',
		dxp           DOUBLE PRECISION NOT NULL,
		attempted_at  TEXT NOT NULL,
		recorded_at   TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		UNIQUE (username, question_id, attempted_at)
	)`,
	`CREATE INDEX IF NOT EXISTS xp_attempts_user_recorded ON xp_attempts (username, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS questions (
		question_id TEXT PRIMARY KEY,
		payload     JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS curriculum_tasks (
		curriculum_id TEXT NOT NULL,
		position      INT  NOT NULL,
		question_id   TEXT NOT NULL,
		PRIMARY KEY (curriculum_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS session_snapshots (
		username   TEXT PRIMARY KEY,
		snapshot   JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies Schema.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
