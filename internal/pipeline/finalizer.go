package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/intentflow/intentflow/internal/queue"
	"github.com/intentflow/intentflow/internal/store"
	"github.com/intentflow/intentflow/pkg/models"
)

// HandleFinalize is the barrier at the end of a classification run. It polls
// the classification jobs it was enqueued with; while any is still pending or
// running it reschedules itself under its own id and yields the worker. Once
// every job has terminated it fans out exactly one generation job per unique
// resolved intent and completes the batch. Failed classification jobs are
// excluded from the fan-out; their tickets stay unclassified.
func (s *Service) HandleFinalize(ctx context.Context, job *models.Job) (any, error) {
	var payload FinalizePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding finalize payload: %v", ErrOrchestration, err)
	}

	// The finalizer cannot reschedule itself without knowing its own id.
	// Running outside a worker dispatch is an orchestration failure, never a
	// condition to retry around.
	selfID, ok := queue.JobIDFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: finalizer running without job identity", ErrOrchestration)
	}

	watched, err := s.queue.GetJobs(ctx, payload.WaitingOn)
	if err != nil {
		return nil, fmt.Errorf("%w: loading watched jobs: %v", ErrOrchestration, err)
	}

	pending := 0
	for _, w := range watched {
		if !w.Done() {
			pending++
		}
	}
	if pending > 0 {
		slog.Info("finalizer waiting on classification jobs",
			"batch_id", payload.BatchID,
			"pending", pending,
			"total", len(watched),
		)
		// Reschedule under the same id. The upsert flips this job back to
		// pending, which outranks the worker's completion update.
		if _, err := s.queue.EnqueueDelayed(ctx, selfID, queue.EnqueueParams{
			Type:        models.JobTypeFinalize,
			Payload:     payload,
			MaxAttempts: 1,
			Timeout:     time.Duration(job.TimeoutSecs) * time.Second,
		}, time.Now().Add(s.cfg.FinalizerPollInterval)); err != nil {
			return nil, fmt.Errorf("rescheduling finalizer: %w", err)
		}
		return nil, nil
	}

	summary, err := s.fanOut(ctx, payload, watched)
	if err != nil {
		return nil, err
	}

	if err := s.store.CompleteBatch(ctx, payload.BatchID, store.BatchCounts{
		TicketsProcessed: summary.TicketsProcessed,
		UniqueIntents:    summary.UniqueIntents,
		GenerationJobs:   summary.GenerationJobs,
		FailedJobs:       summary.FailedJobs,
	}); err != nil {
		return nil, fmt.Errorf("completing batch %s: %w", payload.BatchID, err)
	}

	slog.Info("batch finalized",
		"batch_id", payload.BatchID,
		"tickets", summary.TicketsProcessed,
		"unique_intents", summary.UniqueIntents,
		"generation_jobs", summary.GenerationJobs,
		"failed_jobs", summary.FailedJobs,
	)
	return summary, nil
}

// fanOut collects assignments from the finished classification jobs, dedupes
// them by intent in first-seen order, and enqueues one generation job per
// unique intent with a representative ticket.
func (s *Service) fanOut(ctx context.Context, payload FinalizePayload, watched []*models.Job) (*FinalizeSummary, error) {
	summary := &FinalizeSummary{BatchID: payload.BatchID}

	seen := make(map[uuid.UUID]bool)
	type fanOutTarget struct {
		intentID uuid.UUID
		ticketID uuid.UUID
	}
	var targets []fanOutTarget

	for _, w := range watched {
		if w.Status == models.JobStatusFailed {
			summary.FailedJobs++
			continue
		}

		var result ClassifyResult
		if err := json.Unmarshal(w.Result, &result); err != nil {
			return nil, fmt.Errorf("%w: decoding result of classify job %s: %v", ErrOrchestration, w.ID, err)
		}

		summary.TicketsProcessed += len(result.Assignments)
		for _, a := range result.Assignments {
			if seen[a.IntentID] {
				continue
			}
			seen[a.IntentID] = true
			targets = append(targets, fanOutTarget{intentID: a.IntentID, ticketID: a.TicketID})
		}
	}
	summary.UniqueIntents = len(targets)

	for _, target := range targets {
		if _, err := s.queue.Enqueue(ctx, queue.EnqueueParams{
			Type:        models.JobTypeGenerate,
			Payload:     GeneratePayload{IntentID: target.intentID, TicketID: target.ticketID},
			MaxAttempts: s.cfg.MaxJobAttempts,
			Timeout:     s.cfg.GenerateTimeout,
		}); err != nil {
			return nil, fmt.Errorf("enqueueing generation job for intent %s: %w", target.intentID, err)
		}
		summary.GenerationJobs++
	}

	return summary, nil
}
