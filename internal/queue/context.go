package queue

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const jobIDKey contextKey = "job_id"

// WithJobID stamps the executing job's id into the handler context. The
// worker does this for every dispatch; tests use it to run handlers directly.
func WithJobID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFrom returns the id of the job the handler is running as. A handler
// that needs to reschedule itself reads its identity from here; ok is false
// outside a worker-dispatched handler.
func JobIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(jobIDKey).(uuid.UUID)
	return id, ok
}
