package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/intentflow/intentflow/pkg/models"
)

// HandleGenerate asks the generation service to produce an article for one
// intent, then marks the intent processed. The service is idempotent per
// intent, so a retried job at worst re-requests the same article.
func (s *Service) HandleGenerate(ctx context.Context, job *models.Job) (any, error) {
	var payload GeneratePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding generate payload: %v", ErrOrchestration, err)
	}

	outcome, err := s.generator.Generate(ctx, payload.IntentID, payload.TicketID)
	if err != nil {
		return nil, fmt.Errorf("generating article for intent %s: %w", payload.IntentID, err)
	}

	if err := s.store.MarkIntentProcessed(ctx, payload.IntentID); err != nil {
		return nil, fmt.Errorf("marking intent %s processed: %w", payload.IntentID, err)
	}

	slog.Info("article generation requested",
		"intent_id", payload.IntentID,
		"ticket_id", payload.TicketID,
		"status", outcome.Status,
	)
	return GenerateResult{Status: outcome.Status, ArticleID: outcome.ArticleID}, nil
}
