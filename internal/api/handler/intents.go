package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/intentflow/intentflow/internal/api/response"
	"github.com/intentflow/intentflow/internal/store"
	"github.com/intentflow/intentflow/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// IntentLister pages through the discovered intent taxonomy.
type IntentLister interface {
	ListIntents(ctx context.Context, filter store.IntentFilter) ([]*models.Intent, int, error)
}

// NewListIntentsHandler returns an http.HandlerFunc for GET /api/v1/intents.
// Supports ?processed=true|false, ?page and ?limit query parameters.
func NewListIntentsHandler(s IntentLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.IntentFilter{
			Page:  queryInt(r, "page", 1),
			Limit: queryInt(r, "limit", defaultPageLimit),
		}
		if filter.Page < 1 {
			filter.Page = 1
		}
		if filter.Limit < 1 {
			filter.Limit = defaultPageLimit
		}
		if filter.Limit > maxPageLimit {
			filter.Limit = maxPageLimit
		}

		if raw := r.URL.Query().Get("processed"); raw != "" {
			processed, err := strconv.ParseBool(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"processed must be true or false", nil)
				return
			}
			filter.Processed = &processed
		}

		intents, total, err := s.ListIntents(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list intents", nil)
			return
		}

		response.Collection(w, intents, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
