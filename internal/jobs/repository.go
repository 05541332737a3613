package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echotrace/backend/internal/models"
)

const jobColumns = `id, job_type, target_id, status, progress, COALESCE(status_message,''),
	params, created_at, started_at, finished_at, updated_at`

// Repository handles processing job persistence. Status transitions go
// through single UPDATE statements so the state machine stays atomic, and the
// pending/running uniqueness the ingester relies on is enforced by a partial
// unique index rather than in-memory locks, so it survives process restarts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a jobs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	var params []byte
	err := row.Scan(&j.ID, &j.JobType, &j.TargetID, &j.Status, &j.Progress, &j.StatusMessage,
		&params, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Params = json.RawMessage(params)
	return &j, nil
}

// Create inserts a pending job.
func (r *Repository) Create(ctx context.Context, j *models.ProcessingJob) error {
	const q = `INSERT INTO processing_jobs (id, job_type, target_id, status, progress, params)
		VALUES (gen_random_uuid(), $1, $2, $3, 0, $4)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, j.JobType, j.TargetID, models.JobStatusPending, []byte(j.Params)).
		Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
}

// Exists reports whether a job of the given type and target is in any of the
// given statuses. The ingester calls this before creating a job, which keeps
// at most one outstanding job per video.
func (r *Repository) Exists(ctx context.Context, jobType, targetID string, statuses []models.JobStatus) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM processing_jobs
		WHERE job_type = $1 AND target_id = $2 AND status = ANY($3))`
	ss := make([]string, len(statuses))
	for i, s := range statuses {
		ss[i] = string(s)
	}
	var exists bool
	err := r.pool.QueryRow(ctx, q, jobType, targetID, ss).Scan(&exists)
	return exists, err
}

// ClaimPending atomically moves up to limit pending jobs of a type to running
// (progress 0) and returns them, oldest first. SKIP LOCKED keeps concurrent
// workers from claiming the same row.
func (r *Repository) ClaimPending(ctx context.Context, jobType string, limit int) ([]models.ProcessingJob, error) {
	const q = `UPDATE processing_jobs SET status = $1, progress = 0, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM processing_jobs
			WHERE job_type = $2 AND status = $3
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT $4)
		RETURNING ` + jobColumns
	rows, err := r.pool.Query(ctx, q, models.JobStatusRunning, jobType, models.JobStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var claimed []models.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *j)
	}
	return claimed, rows.Err()
}

// UpdateProgress records progress on a running job.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, message string) error {
	const q = `UPDATE processing_jobs SET progress = $1, status_message = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`
	_, err := r.pool.Exec(ctx, q, progress, message, id, models.JobStatusRunning)
	return err
}

// Complete marks a job terminally successful.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, message string) error {
	return r.finish(ctx, id, models.JobStatusCompleted, 1.0, message)
}

// Fail marks a job terminally failed with a human-readable reason.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	return r.finish(ctx, id, models.JobStatusFailed, 0, message)
}

func (r *Repository) finish(ctx context.Context, id uuid.UUID, status models.JobStatus, progress float64, message string) error {
	const q = `UPDATE processing_jobs SET status = $1, progress = $2, status_message = $3,
			finished_at = NOW(), updated_at = NOW()
		WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, status, progress, message, id)
	return err
}

// GetByID returns a job or nil when unknown.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// List returns recent jobs, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status models.JobStatus, limit int) ([]models.ProcessingJob, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = r.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM processing_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+jobColumns+` FROM processing_jobs WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, status, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *j)
	}
	return list, rows.Err()
}
