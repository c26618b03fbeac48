package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/craftlab/cardsmith/internal/domain"
)

const jobColumns = `id, session_id, kind, status, prompt,
	COALESCE(artifact_key,''), COALESCE(error_kind,''), COALESCE(error_msg,''),
	created_at, started_at, completed_at, attempt, user_ordinal, override_level`

// JobRepo persists and loads generation jobs from PostgreSQL.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(&j.ID, &j.SessionID, &j.Kind, &j.Status, &j.Prompt,
		&j.ArtifactKey, &j.ErrorKind, &j.ErrorMsg,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
		&j.Attempt, &j.UserOrdinal, &j.OverrideLevel)
	return j, err
}

// Create inserts a new job in status queued.
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	q := `INSERT INTO jobs (id, session_id, kind, status, prompt, created_at, attempt, user_ordinal, override_level)
	      VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8)`
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.Pool.Exec(ctx, q, j.ID, j.SessionID, j.Kind, domain.JobQueued, j.Prompt, createdAt, j.UserOrdinal, j.OverrideLevel)
	if err != nil {
		return fmt.Errorf("op=job.create: %w", err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// Claim transitions a deliverable job to processing and bumps its attempt
// counter. started_at is restamped on every claim so staleness is measured
// from the latest delivery, not the first. A job already in a terminal state
// is returned unchanged so the caller can detect the redelivery and skip the
// work.
func (r *JobRepo) Claim(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Claim")
	defer span.End()
	q := `UPDATE jobs
	      SET status=$2, started_at=$3, attempt=attempt+1
	      WHERE id=$1 AND status IN ($4,$5)
	      RETURNING ` + jobColumns
	j, err := scanJob(r.Pool.QueryRow(ctx, q, id, domain.JobProcessing, time.Now().UTC(), domain.JobQueued, domain.JobProcessing))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("op=job.claim: %w", err)
	}
	// Nothing matched: either the job is terminal or it does not exist.
	return r.Get(ctx, id)
}

// Complete records the artifact and marks the job completed. It returns false
// without error when the job is already completed, so redeliveries stay
// idempotent. Completing a failed job is a conflict.
func (r *JobRepo) Complete(ctx domain.Context, id, artifactKey string) (bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Complete")
	defer span.End()
	q := `UPDATE jobs
	      SET status=$2, artifact_key=$3, completed_at=$4, error_kind=NULL, error_msg=NULL
	      WHERE id=$1 AND status IN ($5,$6)`
	tag, err := r.Pool.Exec(ctx, q, id, domain.JobCompleted, artifactKey, time.Now().UTC(), domain.JobQueued, domain.JobProcessing)
	if err != nil {
		return false, fmt.Errorf("op=job.complete: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	j, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if j.Status == domain.JobCompleted {
		return false, nil
	}
	return false, fmt.Errorf("op=job.complete status=%s: %w", j.Status, domain.ErrConflict)
}

// Fail marks the job terminally failed with an error kind and message. A job
// that already completed keeps its result; failing it again is a conflict. A
// job that already failed is left as-is.
func (r *JobRepo) Fail(ctx domain.Context, id, errorKind, errorMsg string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Fail")
	defer span.End()
	q := `UPDATE jobs
	      SET status=$2, error_kind=$3, error_msg=$4, completed_at=$5
	      WHERE id=$1 AND status IN ($6,$7)`
	tag, err := r.Pool.Exec(ctx, q, id, domain.JobFailed, errorKind, errorMsg, time.Now().UTC(), domain.JobQueued, domain.JobProcessing)
	if err != nil {
		return fmt.Errorf("op=job.fail: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	j, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status == domain.JobFailed {
		return nil
	}
	return fmt.Errorf("op=job.fail status=%s: %w", j.Status, domain.ErrConflict)
}

// Requeue returns a processing job to queued ahead of a delayed redelivery.
// Terminal jobs are left untouched.
func (r *JobRepo) Requeue(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Requeue")
	defer span.End()
	q := `UPDATE jobs SET status=$2 WHERE id=$1 AND status=$3`
	if _, err := r.Pool.Exec(ctx, q, id, domain.JobQueued, domain.JobProcessing); err != nil {
		return fmt.Errorf("op=job.requeue: %w", err)
	}
	return nil
}

// ListCompletedBySession returns completed jobs for a session and kind, newest
// first.
func (r *JobRepo) ListCompletedBySession(ctx domain.Context, sessionID string, kind domain.Kind, limit int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ListCompletedBySession")
	defer span.End()
	q := `SELECT ` + jobColumns + `
	      FROM jobs
	      WHERE session_id=$1 AND kind=$2 AND status=$3
	      ORDER BY completed_at DESC
	      LIMIT $4`
	rows, err := r.Pool.Query(ctx, q, sessionID, kind, domain.JobCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("op=job.list_completed: %w", err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_completed scan: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_completed rows: %w", err)
	}
	return out, nil
}

// NextUserOrdinal atomically advances and returns the per-session, per-kind
// submission counter used for artifact naming.
func (r *JobRepo) NextUserOrdinal(ctx domain.Context, sessionID string, kind domain.Kind) (int, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.NextUserOrdinal")
	defer span.End()
	q := `INSERT INTO session_counters (session_id, kind, n) VALUES ($1,$2,1)
	      ON CONFLICT (session_id, kind) DO UPDATE SET n = session_counters.n + 1
	      RETURNING n`
	var n int
	if err := r.Pool.QueryRow(ctx, q, sessionID, kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=job.next_user_ordinal: %w", err)
	}
	return n, nil
}

// StaleProcessing returns jobs stuck in processing since before the cutoff.
func (r *JobRepo) StaleProcessing(ctx domain.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.StaleProcessing")
	defer span.End()
	q := `SELECT ` + jobColumns + `
	      FROM jobs
	      WHERE status=$1 AND started_at IS NOT NULL AND started_at < $2
	      ORDER BY started_at ASC
	      LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, domain.JobProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("op=job.stale_processing: %w", err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.stale_processing scan: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.stale_processing rows: %w", err)
	}
	return out, nil
}
