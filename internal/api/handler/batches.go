package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/intentflow/intentflow/internal/api/response"
	"github.com/intentflow/intentflow/internal/ingest"
	"github.com/intentflow/intentflow/internal/pipeline"
	"github.com/intentflow/intentflow/internal/store"
	"github.com/intentflow/intentflow/pkg/models"
)

// maxBatchTickets caps a single JSON submission. Larger imports should go
// through the CSV endpoint or be split by the caller.
const maxBatchTickets = 10000

// BatchSubmitter accepts ticket drafts and starts a classification run.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, drafts []models.TicketDraft) (*pipeline.BatchSubmission, error)
}

// BatchReader looks up batch records.
type BatchReader interface {
	GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
}

// NewSubmitBatchHandler returns an http.HandlerFunc for POST /api/v1/batches.
func NewSubmitBatchHandler(svc BatchSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tickets []models.TicketDraft `json:"tickets"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if len(req.Tickets) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "tickets is required", nil)
			return
		}
		if len(req.Tickets) > maxBatchTickets {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("batch exceeds the %d ticket limit", maxBatchTickets), nil)
			return
		}
		for i, draft := range req.Tickets {
			if strings.TrimSpace(draft.Subject) == "" && strings.TrimSpace(draft.Body) == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					fmt.Sprintf("ticket %d has neither subject nor body", i), nil)
				return
			}
		}

		submission, err := svc.SubmitBatch(r.Context(), req.Tickets)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to submit batch", nil)
			return
		}

		response.Accepted(w, submission)
	}
}

// NewSubmitCSVHandler returns an http.HandlerFunc for POST /api/v1/batches/csv.
// The request body is the raw CSV; subject and body columns are required.
func NewSubmitCSVHandler(svc BatchSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drafts, err := ingest.ParseTickets(r.Body)
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrMissingHeader), errors.Is(err, ingest.ErrEmptyFile):
				response.Error(w, http.StatusBadRequest, "INVALID_CSV", err.Error(), nil)
			default:
				response.Error(w, http.StatusBadRequest, "INVALID_CSV",
					"Failed to parse CSV upload", nil)
			}
			return
		}

		submission, err := svc.SubmitBatch(r.Context(), drafts)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to submit batch", nil)
			return
		}

		response.Accepted(w, submission)
	}
}

// NewGetBatchHandler returns an http.HandlerFunc for GET /api/v1/batches/{batchID}.
// A completed batch carries the finalizer's fan-in counts.
func NewGetBatchHandler(s BatchReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"batchID must be a valid UUID", nil)
			return
		}

		batch, err := s.GetBatch(r.Context(), batchID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Batch not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch batch", nil)
			return
		}

		response.JSON(w, batch)
	}
}
