package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

// EnsureSchema applies the job/run/deck DDL. Kept idempotent so a fresh
// deployment works without a separate migration step.
func (d *DB) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS generate_jobs (
  job_id     TEXT PRIMARY KEY,
  mode       TEXT NOT NULL CHECK (mode IN ('single_module','course','all_courses')),
  target     JSONB NOT NULL DEFAULT '{}'::jsonb,
  settings   JSONB NOT NULL DEFAULT '{}'::jsonb,
  status     TEXT NOT NULL CHECK (status IN ('queued','running','completed','failed')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS module_runs (
  run_id         TEXT PRIMARY KEY,
  job_id         TEXT NOT NULL REFERENCES generate_jobs(job_id) ON DELETE CASCADE,
  module_id      TEXT NOT NULL,
  course_id      TEXT NOT NULL DEFAULT '',
  status         TEXT NOT NULL,
  card_count     INT NOT NULL DEFAULT 0,
  verified_count INT NOT NULL DEFAULT 0,
  deck_id        TEXT NOT NULL DEFAULT '',
  deck_path      TEXT NOT NULL DEFAULT '',
  message        TEXT NOT NULL DEFAULT '',
  created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_module_runs_job ON module_runs(job_id);
CREATE INDEX IF NOT EXISTS idx_module_runs_module ON module_runs(module_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS stage_log (
  run_id      TEXT NOT NULL,
  seq         BIGINT NOT NULL,
  stage       TEXT NOT NULL,
  status      TEXT NOT NULL CHECK (status IN ('success','skipped','failed')),
  duration_ms BIGINT NOT NULL DEFAULT 0,
  message     TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS decks (
  deck_id           TEXT PRIMARY KEY,
  module_id         TEXT NOT NULL,
  course_id         TEXT NOT NULL DEFAULT '',
  module_title      TEXT NOT NULL DEFAULT '',
  cards             JSONB NOT NULL,
  card_count        INT NOT NULL DEFAULT 0,
  verification_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  deck_path         TEXT NOT NULL DEFAULT '',
  generated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_decks_module ON decks(module_id, generated_at DESC);
`
	if _, err := d.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
