package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending  = "pending"
	JobStatusRunning  = "running"
	JobStatusFinished = "finished"
	JobStatusFailed   = "failed"
)

// Job types handled by the queue workers.
const (
	JobTypeClassify = "classify"
	JobTypeFinalize = "finalize"
	JobTypeGenerate = "generate"
)

// Job is one durable unit of work in the queue. Payload is set at enqueue
// time; Result is present iff the job finished. A pending job with RunAt in
// the future is a delayed job, which is also how a finalizer reschedules
// itself under its own id.
type Job struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	Type         string          `db:"type"          json:"type"`
	Status       string          `db:"status"        json:"status"`
	Payload      json.RawMessage `db:"payload"       json:"payload,omitempty"`
	Result       json.RawMessage `db:"result"        json:"result,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	Attempts     int             `db:"attempts"      json:"attempts"`
	MaxAttempts  int             `db:"max_attempts"  json:"max_attempts"`
	TimeoutSecs  int             `db:"timeout_secs"  json:"timeout_secs"`
	RunAt        time.Time       `db:"run_at"        json:"run_at"`
	StartedAt    *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == JobStatusFinished || j.Status == JobStatusFailed
}
