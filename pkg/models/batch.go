package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	BatchStatusPending   = "pending"
	BatchStatusCompleted = "completed"
)

// Batch is the durable checkpoint for one classification run: the closed set
// of classification jobs a finalizer waits on lives in the finalizer job's
// payload, and this record gives operators visibility into the run. A batch
// that never leaves pending means its classification jobs never terminated.
type Batch struct {
	ID             uuid.UUID  `db:"id"               json:"id"`
	Status         string     `db:"status"           json:"status"`
	FinalizerJobID uuid.UUID  `db:"finalizer_job_id" json:"finalizer_job_id"`
	TicketCount    int        `db:"ticket_count"     json:"ticket_count"`
	UniqueIntents  int        `db:"unique_intents"   json:"unique_intents"`
	GenerationJobs int        `db:"generation_jobs"  json:"generation_jobs"`
	FailedJobs     int        `db:"failed_jobs"      json:"failed_jobs"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	CompletedAt    *time.Time `db:"completed_at"     json:"completed_at,omitempty"`
}
