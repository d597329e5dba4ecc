package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/intentflow/intentflow/internal/api/response"
	"github.com/intentflow/intentflow/internal/queue"
	"github.com/intentflow/intentflow/pkg/models"
)

// JobReader polls job state from the durable queue.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// JobStatusReader reads the worker's best-effort status mirror. A miss or an
// error just means the authoritative queue row must be consulted.
type JobStatusReader interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

// jobStatusResponse is the lightweight body served from the status mirror
// while a job is still in flight.
type jobStatusResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// While the mirror reports the job still in flight, polling is answered from
// Redis without touching Postgres; terminal jobs (and mirror misses) are read
// from the queue so the response carries the result or error message.
func NewGetJobHandler(q JobReader, statuses JobStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"jobID must be a valid UUID", nil)
			return
		}

		if statuses != nil {
			status, found, err := statuses.GetJobStatus(r.Context(), jobID)
			if err == nil && found &&
				(status == models.JobStatusPending || status == models.JobStatusRunning) {
				response.JSON(w, jobStatusResponse{ID: jobID, Status: status})
				return
			}
		}

		job, err := q.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, queue.ErrJobNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch job", nil)
			return
		}

		response.JSON(w, job)
	}
}
