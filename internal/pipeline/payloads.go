package pipeline

import (
	"github.com/google/uuid"

	"github.com/intentflow/intentflow/internal/classify"
)

// ClassifyPayload is the durable input of one classification job: a closed
// set of ticket ids resolved together in a single LLM call.
type ClassifyPayload struct {
	TicketIDs []uuid.UUID `json:"ticket_ids"`
}

// ClassifyResult is the persisted output of a finished classification job.
// The finalizer reads these to fan out generation work.
type ClassifyResult struct {
	Provider    string                `json:"provider"`
	CacheHit    bool                  `json:"cache_hit"`
	Assignments []classify.Assignment `json:"assignments"`
}

// FinalizePayload is the finalizer's durable state: the batch it reports to
// and the closed set of classification jobs it waits on. Any worker can
// resume the finalizer from this payload alone.
type FinalizePayload struct {
	BatchID   uuid.UUID   `json:"batch_id"`
	WaitingOn []uuid.UUID `json:"waiting_on"`
}

// FinalizeSummary is the finalizer's result: the fan-in counts for one batch.
type FinalizeSummary struct {
	BatchID          uuid.UUID `json:"batch_id"`
	TicketsProcessed int       `json:"tickets_processed"`
	UniqueIntents    int       `json:"unique_intents"`
	GenerationJobs   int       `json:"generation_jobs"`
	FailedJobs       int       `json:"failed_jobs"`
}

// GeneratePayload is the input of one generation job: the intent to produce
// an article for, plus a representative ticket as source material.
type GeneratePayload struct {
	IntentID uuid.UUID `json:"intent_id"`
	TicketID uuid.UUID `json:"ticket_id"`
}

// GenerateResult records the generation service's answer.
type GenerateResult struct {
	Status    string     `json:"status"`
	ArticleID *uuid.UUID `json:"article_id,omitempty"`
}
