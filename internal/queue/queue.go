// Package queue implements a durable at-least-once job queue on Postgres.
// Jobs survive restarts; workers claim them with FOR UPDATE SKIP LOCKED so
// any number of worker processes can share one table.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intentflow/intentflow/pkg/models"
)

var ErrJobNotFound = errors.New("job not found")

// EnqueueParams describes a job to enqueue. Payload is marshaled to JSON.
type EnqueueParams struct {
	Type        string
	Payload     any
	MaxAttempts int
	Timeout     time.Duration
}

// Queue is the producer-side interface. Workers talk to PostgresQueue
// directly; handlers and API code only need this.
type Queue interface {
	// Enqueue inserts a job runnable immediately under a fresh id.
	Enqueue(ctx context.Context, params EnqueueParams) (*models.Job, error)

	// EnqueueDelayed inserts or reschedules a job under the caller-chosen id,
	// runnable at runAt. Re-enqueueing an existing id resets it to pending
	// with a fresh attempt budget, which is how a job reschedules itself
	// while it is still marked running.
	EnqueueDelayed(ctx context.Context, jobID uuid.UUID, params EnqueueParams, runAt time.Time) (*models.Job, error)

	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobs(ctx context.Context, ids []uuid.UUID) ([]*models.Job, error)
}

// PostgresQueue implements Queue on a pgx connection pool.
type PostgresQueue struct {
	db *pgxpool.Pool
}

func NewPostgresQueue(db *pgxpool.Pool) *PostgresQueue {
	return &PostgresQueue{db: db}
}

const jobColumns = `id, type, status, payload, result, error_message, attempts,
	max_attempts, timeout_secs, run_at, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID, &job.Type, &job.Status, &job.Payload, &job.Result,
		&job.ErrorMessage, &job.Attempts, &job.MaxAttempts, &job.TimeoutSecs,
		&job.RunAt, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, params EnqueueParams) (*models.Job, error) {
	return q.EnqueueDelayed(ctx, uuid.New(), params, time.Now())
}

func (q *PostgresQueue) EnqueueDelayed(ctx context.Context, jobID uuid.UUID, params EnqueueParams, runAt time.Time) (*models.Job, error) {
	if params.Type == "" {
		return nil, fmt.Errorf("job type is required")
	}
	if params.MaxAttempts < 1 {
		params.MaxAttempts = 1
	}

	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling job payload: %w", err)
	}

	query := `
		INSERT INTO jobs (id, type, status, payload, attempts, max_attempts, timeout_secs, run_at)
		VALUES ($1, $2, 'pending', $3, 0, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = 'pending',
			payload = EXCLUDED.payload,
			attempts = 0,
			max_attempts = EXCLUDED.max_attempts,
			timeout_secs = EXCLUDED.timeout_secs,
			run_at = EXCLUDED.run_at,
			error_message = NULL,
			updated_at = NOW()
		RETURNING ` + jobColumns

	job, err := scanJob(q.db.QueryRow(ctx, query,
		jobID, params.Type, payload, params.MaxAttempts, int(params.Timeout.Seconds()), runAt))
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s job: %w", params.Type, err)
	}
	return job, nil
}

func (q *PostgresQueue) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("getting job %s: %w", id, err)
	}
	return job, nil
}

// GetJobs fetches the given jobs in one round trip. Every requested id must
// exist; a missing job means the caller's bookkeeping is wrong.
func (q *PostgresQueue) GetJobs(ctx context.Context, ids []uuid.UUID) ([]*models.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ANY($1)`

	rows, err := q.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("getting jobs: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.Job, len(ids))
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		byID[job.ID] = job
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}

	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		job, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// claim atomically takes the oldest runnable job and marks it running.
// Runnable means pending with run_at due, or running past its timeout — a
// worker that died mid-job leaves the row running forever, so expired running
// jobs re-enter the pool and burn an attempt like any other run. Returns
// ErrJobNotFound when nothing is runnable.
func (q *PostgresQueue) claim(ctx context.Context) (*models.Job, error) {
	query := `
		UPDATE jobs SET
			status = 'running',
			attempts = attempts + 1,
			started_at = NOW(),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE (status = 'pending' AND run_at <= NOW())
			   OR (status = 'running' AND timeout_secs > 0
			       AND started_at + make_interval(secs => timeout_secs) < NOW())
			ORDER BY run_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(q.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	return job, nil
}

// finish records a successful run. The guards make the update a no-op when
// the row has moved on since this worker claimed it: the handler rescheduled
// the job under its own id (status flipped back to pending), or the job
// expired and another worker reclaimed it (attempts advanced). Returns
// whether the job actually reached the finished state.
func (q *PostgresQueue) finish(ctx context.Context, id uuid.UUID, attempt int, result json.RawMessage) (bool, error) {
	query := `
		UPDATE jobs SET
			status = 'finished',
			result = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'running' AND attempts = $2`

	tag, err := q.db.Exec(ctx, query, id, attempt, result)
	if err != nil {
		return false, fmt.Errorf("finishing job %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// retry puts a failed attempt back in the pending state with a delayed run_at.
func (q *PostgresQueue) retry(ctx context.Context, id uuid.UUID, attempt int, runAt time.Time, errMsg string) error {
	query := `
		UPDATE jobs SET
			status = 'pending',
			run_at = $3,
			error_message = $4,
			updated_at = NOW()
		WHERE id = $1 AND status = 'running' AND attempts = $2`

	if _, err := q.db.Exec(ctx, query, id, attempt, runAt, errMsg); err != nil {
		return fmt.Errorf("scheduling retry for job %s: %w", id, err)
	}
	return nil
}

// fail marks a job terminally failed.
func (q *PostgresQueue) fail(ctx context.Context, id uuid.UUID, attempt int, errMsg string) error {
	query := `
		UPDATE jobs SET
			status = 'failed',
			error_message = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'running' AND attempts = $2`

	if _, err := q.db.Exec(ctx, query, id, attempt, errMsg); err != nil {
		return fmt.Errorf("failing job %s: %w", id, err)
	}
	return nil
}
