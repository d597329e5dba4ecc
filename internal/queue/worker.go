package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/intentflow/intentflow/internal/cache"
	"github.com/intentflow/intentflow/pkg/models"
)

// jobStatusTTL bounds how long a job status mirror lives in Redis. Status
// reads fall back to Postgres when the mirror expires.
const jobStatusTTL = 24 * time.Hour

// HandlerFunc executes one job. The returned value is marshaled into the
// job's result on success. The context carries the job's id (JobIDFrom) and a
// deadline derived from the job's timeout.
type HandlerFunc func(ctx context.Context, job *models.Job) (any, error)

// Worker polls the queue and dispatches jobs to registered handlers.
type Worker struct {
	queue        *PostgresQueue
	cache        cache.Cache
	pollInterval time.Duration
	backoffBase  time.Duration
	concurrency  int

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewWorker(q *PostgresQueue, c cache.Cache, concurrency int, pollInterval, backoffBase time.Duration) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:        q,
		cache:        c,
		pollInterval: pollInterval,
		backoffBase:  backoffBase,
		concurrency:  concurrency,
		handlers:     make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a job type. Must be called before Run.
func (w *Worker) Register(jobType string, handler HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Run starts the worker loops and blocks until ctx is cancelled. In-flight
// jobs run to completion before Run returns.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, n int) {
	slog.Info("queue worker started", "worker", n)
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("processing job", "worker", n, "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("queue worker stopped", "worker", n)
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessOne claims and executes at most one job. It reports whether a job
// was claimed so callers can poll without sleeping while work is available.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.claim(ctx)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	w.mirrorStatus(ctx, job, models.JobStatusRunning)

	w.mu.RLock()
	handler, ok := w.handlers[job.Type]
	w.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("no handler registered for job type %q", job.Type)
		return true, w.settleFailure(ctx, job, err)
	}

	result, err := w.execute(ctx, job, handler)
	if err != nil {
		return true, w.settleFailure(ctx, job, err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return true, w.settleFailure(ctx, job, fmt.Errorf("marshaling job result: %w", err))
	}
	finished, err := w.queue.finish(ctx, job.ID, job.Attempts, encoded)
	if err != nil {
		return true, err
	}
	if finished {
		w.mirrorStatus(ctx, job, models.JobStatusFinished)
	} else {
		// The row moved on while we ran: the handler rescheduled the job
		// under its own id, or the job expired and another worker took it.
		w.mirrorStatus(ctx, job, models.JobStatusPending)
	}

	slog.Info("job finished", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts, "rescheduled", !finished)
	return true, nil
}

// execute runs the handler under the job's timeout with panic containment.
func (w *Worker) execute(ctx context.Context, job *models.Job, handler HandlerFunc) (result any, err error) {
	jobCtx := WithJobID(ctx, job.ID)
	if job.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, time.Duration(job.TimeoutSecs)*time.Second)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	return handler(jobCtx, job)
}

// settleFailure retries the job with exponential backoff while attempts
// remain, otherwise marks it terminally failed.
func (w *Worker) settleFailure(ctx context.Context, job *models.Job, jobErr error) error {
	if job.Attempts < job.MaxAttempts {
		delay := w.backoffBase * (1 << (job.Attempts - 1))
		slog.Warn("job attempt failed, retrying",
			"job_id", job.ID,
			"type", job.Type,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"retry_in", delay,
			"error", jobErr,
		)
		if err := w.queue.retry(ctx, job.ID, job.Attempts, time.Now().Add(delay), jobErr.Error()); err != nil {
			return err
		}
		w.mirrorStatus(ctx, job, models.JobStatusPending)
		return nil
	}

	slog.Error("job failed permanently",
		"job_id", job.ID,
		"type", job.Type,
		"attempts", job.Attempts,
		"error", jobErr,
	)
	if err := w.queue.fail(ctx, job.ID, job.Attempts, jobErr.Error()); err != nil {
		return err
	}
	w.mirrorStatus(ctx, job, models.JobStatusFailed)
	return nil
}

// mirrorStatus best-effort copies the job status into Redis for cheap status
// polling. The queue table stays authoritative.
func (w *Worker) mirrorStatus(ctx context.Context, job *models.Job, status string) {
	if w.cache == nil {
		return
	}
	if err := w.cache.SetJobStatus(ctx, job.ID, status, jobStatusTTL); err != nil {
		slog.Debug("mirroring job status", "job_id", job.ID, "error", err)
	}
}
