// Package pipeline orchestrates the classification run: batch submission,
// the classification and generation job handlers, and the finalizer that
// bridges them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/intentflow/intentflow/internal/cache"
	"github.com/intentflow/intentflow/internal/classify"
	"github.com/intentflow/intentflow/internal/config"
	"github.com/intentflow/intentflow/internal/generator"
	"github.com/intentflow/intentflow/internal/queue"
	"github.com/intentflow/intentflow/internal/store"
	"github.com/intentflow/intentflow/pkg/models"
)

// ErrOrchestration marks a broken orchestration precondition, such as a
// finalizer running without its own job identity. Not retryable: the run's
// bookkeeping is wrong, and an operator has to look.
var ErrOrchestration = errors.New("pipeline orchestration failure")

// BatchSubmission reports what SubmitBatch enqueued.
type BatchSubmission struct {
	BatchID        uuid.UUID   `json:"batch_id"`
	FinalizerJobID uuid.UUID   `json:"finalizer_job_id"`
	TicketIDs      []uuid.UUID `json:"ticket_ids"`
	ClassifyJobIDs []uuid.UUID `json:"classify_job_ids"`
}

// Service wires the classification pipeline together.
type Service struct {
	store      store.Store
	cache      cache.Cache
	queue      queue.Queue
	classifier *classify.Classifier
	resolver   *classify.Resolver
	generator  generator.Generator
	cfg        config.PipelineConfig
}

func NewService(
	st store.Store,
	c cache.Cache,
	q queue.Queue,
	classifier *classify.Classifier,
	resolver *classify.Resolver,
	gen generator.Generator,
	cfg config.PipelineConfig,
) *Service {
	return &Service{
		store:      st,
		cache:      c,
		queue:      q,
		classifier: classifier,
		resolver:   resolver,
		generator:  gen,
		cfg:        cfg,
	}
}

// RegisterHandlers binds the pipeline's job handlers to the worker.
func (s *Service) RegisterHandlers(w *queue.Worker) {
	w.Register(models.JobTypeClassify, s.HandleClassify)
	w.Register(models.JobTypeFinalize, s.HandleFinalize)
	w.Register(models.JobTypeGenerate, s.HandleGenerate)
}

// SubmitBatch persists the tickets, splits them into classification jobs,
// and enqueues a finalizer watching exactly those jobs. The finalizer's job
// id is chosen up front so the batch record can reference it before the job
// ever runs.
func (s *Service) SubmitBatch(ctx context.Context, drafts []models.TicketDraft) (*BatchSubmission, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("batch contains no tickets")
	}

	now := time.Now().UTC()
	tickets := make([]*models.Ticket, 0, len(drafts))
	ticketIDs := make([]uuid.UUID, 0, len(drafts))
	for _, draft := range drafts {
		t := &models.Ticket{
			ID:        uuid.New(),
			Subject:   draft.Subject,
			Body:      draft.Body,
			CreatedAt: now,
			UpdatedAt: now,
		}
		tickets = append(tickets, t)
		ticketIDs = append(ticketIDs, t.ID)
	}
	if err := s.store.CreateTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("creating tickets: %w", err)
	}

	classifyJobIDs := make([]uuid.UUID, 0, (len(ticketIDs)+s.cfg.ClassificationBatchSize-1)/s.cfg.ClassificationBatchSize)
	for start := 0; start < len(ticketIDs); start += s.cfg.ClassificationBatchSize {
		end := start + s.cfg.ClassificationBatchSize
		if end > len(ticketIDs) {
			end = len(ticketIDs)
		}

		job, err := s.queue.Enqueue(ctx, queue.EnqueueParams{
			Type:        models.JobTypeClassify,
			Payload:     ClassifyPayload{TicketIDs: ticketIDs[start:end]},
			MaxAttempts: s.cfg.MaxJobAttempts,
			Timeout:     s.cfg.ClassifyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("enqueueing classification job: %w", err)
		}
		classifyJobIDs = append(classifyJobIDs, job.ID)
	}

	batchID := uuid.New()
	finalizerJobID := uuid.New()

	// The finalizer runs with a single attempt: its failure modes are
	// orchestration bugs, not transient conditions, and it reschedules itself
	// for the waiting case.
	_, err := s.queue.EnqueueDelayed(ctx, finalizerJobID, queue.EnqueueParams{
		Type:        models.JobTypeFinalize,
		Payload:     FinalizePayload{BatchID: batchID, WaitingOn: classifyJobIDs},
		MaxAttempts: 1,
		Timeout:     s.cfg.ClassifyTimeout,
	}, now.Add(s.cfg.FinalizerPollInterval))
	if err != nil {
		return nil, fmt.Errorf("enqueueing finalizer: %w", err)
	}

	if err := s.store.CreateBatch(ctx, &models.Batch{
		ID:             batchID,
		Status:         models.BatchStatusPending,
		FinalizerJobID: finalizerJobID,
		TicketCount:    len(ticketIDs),
		CreatedAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("creating batch record: %w", err)
	}

	return &BatchSubmission{
		BatchID:        batchID,
		FinalizerJobID: finalizerJobID,
		TicketIDs:      ticketIDs,
		ClassifyJobIDs: classifyJobIDs,
	}, nil
}
