package storage

import (
	"context"
	"fmt"

	"cardflow/internal/models"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// UpsertRun writes a module run's current state. Run ids are deterministic per
// (job, module), so a retried workflow overwrites its own row instead of
// leaving orphans.
func (r *RunRepo) UpsertRun(ctx context.Context, run models.ModuleRun) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO module_runs (run_id, job_id, module_id, course_id, status, card_count, verified_count, deck_id, deck_path, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO UPDATE SET
  status = EXCLUDED.status,
  card_count = EXCLUDED.card_count,
  verified_count = EXCLUDED.verified_count,
  deck_id = EXCLUDED.deck_id,
  deck_path = EXCLUDED.deck_path,
  message = EXCLUDED.message,
  updated_at = NOW()`,
		run.RunID, run.JobID, run.ModuleID, run.CourseID, run.Status,
		run.CardCount, run.VerifiedCount, run.DeckID, run.DeckPath, run.Message)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", run.RunID, err)
	}
	return nil
}

func (r *RunRepo) ListRunsForJob(ctx context.Context, jobID string) ([]models.ModuleRun, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT run_id, job_id, module_id, course_id, status, card_count, verified_count, deck_id, deck_path, message, created_at, updated_at
FROM module_runs WHERE job_id=$1 ORDER BY module_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list runs for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var out []models.ModuleRun
	for rows.Next() {
		var run models.ModuleRun
		if err := rows.Scan(&run.RunID, &run.JobID, &run.ModuleID, &run.CourseID, &run.Status,
			&run.CardCount, &run.VerifiedCount, &run.DeckID, &run.DeckPath, &run.Message,
			&run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
