package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is the full table layout. Having the migration in code keeps
// docker-compose bootstrapping self-contained.
const Schema = `
CREATE TABLE IF NOT EXISTS class_groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	display_order INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL CHECK (type IN ('weekly_mailing', 'knowledge_sheet')),
	class_group_id TEXT REFERENCES class_groups(id) ON DELETE CASCADE,
	week_start_date DATE,
	filename TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	blob_key TEXT NOT NULL DEFAULT '',
	blob_url TEXT NOT NULL DEFAULT '',
	mime_type TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	content BYTEA,
	extracted_text TEXT NOT NULL DEFAULT '',
	timetable TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_lookup ON documents(type, is_active, week_start_date);
CREATE INDEX IF NOT EXISTS idx_documents_group ON documents(class_group_id);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	documents_found INTEGER NOT NULL DEFAULT 0,
	documents_processed INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	log_details JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_scrape_runs_started ON scrape_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS daily_reminders (
	id TEXT PRIMARY KEY,
	class_group_id TEXT NOT NULL REFERENCES class_groups(id) ON DELETE CASCADE,
	week_start_date DATE NOT NULL,
	reminder_date TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL CHECK (priority IN ('high', 'medium', 'low')),
	category TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE daily_reminders ADD COLUMN IF NOT EXISTS position INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_daily_reminders_week ON daily_reminders(class_group_id, week_start_date);

CREATE TABLE IF NOT EXISTS weekly_overviews (
	id TEXT PRIMARY KEY,
	class_group_id TEXT NOT NULL REFERENCES class_groups(id) ON DELETE CASCADE,
	week_start_date DATE NOT NULL,
	summary TEXT NOT NULL,
	key_highlights JSONB NOT NULL DEFAULT '[]',
	important_dates JSONB NOT NULL DEFAULT '[]',
	weekly_mailing_summary JSONB NOT NULL DEFAULT '{}',
	knowledge_sheet_suggestions JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (class_group_id, week_start_date)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// EnsureSchema creates every table and index that is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
