package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"cardflow/internal/models"
)

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) CreateJob(ctx context.Context, job models.GenerateJob) error {
	targetJSON, _ := json.Marshal(job.Target)
	settingsJSON, _ := json.Marshal(job.Settings)
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO generate_jobs (job_id, mode, target, settings, status)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5)`,
		job.JobID, string(job.Mode), string(targetJSON), string(settingsJSON), string(job.Status))
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	return nil
}

func (r *JobRepo) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE generate_jobs SET status=$2, updated_at=NOW() WHERE job_id=$1`, jobID, string(status))
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: not found", jobID)
	}
	return nil
}

func (r *JobRepo) GetJob(ctx context.Context, jobID string) (models.GenerateJob, error) {
	var job models.GenerateJob
	var mode, status string
	var targetJSON, settingsJSON []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT job_id, mode, target, settings, status, created_at, updated_at
FROM generate_jobs WHERE job_id=$1`, jobID).Scan(
		&job.JobID, &mode, &targetJSON, &settingsJSON, &status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return models.GenerateJob{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	job.Mode = models.GenerateMode(mode)
	job.Status = models.JobStatus(status)
	if err := json.Unmarshal(targetJSON, &job.Target); err != nil {
		return models.GenerateJob{}, fmt.Errorf("decode job %s target: %w", jobID, err)
	}
	if err := json.Unmarshal(settingsJSON, &job.Settings); err != nil {
		return models.GenerateJob{}, fmt.Errorf("decode job %s settings: %w", jobID, err)
	}
	return job, nil
}

// AppendStage records one stage execution. The log is append-only; (run_id,
// seq) collisions mean a retry replayed a stage we already recorded, which is
// fine to ignore.
func (r *JobRepo) AppendStage(ctx context.Context, entry models.StageLogEntry) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO stage_log (run_id, seq, stage, status, duration_ms, message)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id, seq) DO NOTHING`,
		entry.RunID, entry.Seq, entry.Stage, string(entry.Status), entry.DurationMS, entry.Message)
	if err != nil {
		return fmt.Errorf("append stage %s/%d: %w", entry.RunID, entry.Seq, err)
	}
	return nil
}

func (r *JobRepo) ListStages(ctx context.Context, runID string) ([]models.StageLogEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT run_id, seq, stage, status, duration_ms, message, created_at
FROM stage_log WHERE run_id=$1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []models.StageLogEntry
	for rows.Next() {
		var e models.StageLogEntry
		var status string
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Stage, &status, &e.DurationMS, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage row: %w", err)
		}
		e.Status = models.StageStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
