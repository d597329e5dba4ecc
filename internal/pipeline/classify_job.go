package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/intentflow/intentflow/internal/cache"
	"github.com/intentflow/intentflow/internal/classify"
	"github.com/intentflow/intentflow/pkg/models"
)

// HandleClassify resolves one closed set of tickets to intents: snapshot the
// taxonomy, consult the classification cache, call the classifier on a miss,
// then apply every decision through the resolver.
func (s *Service) HandleClassify(ctx context.Context, job *models.Job) (any, error) {
	var payload ClassifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding classify payload: %v", ErrOrchestration, err)
	}
	if len(payload.TicketIDs) == 0 {
		return nil, fmt.Errorf("%w: classify job has no tickets", ErrOrchestration)
	}

	tickets, err := s.store.GetTickets(ctx, payload.TicketIDs)
	if err != nil {
		return nil, fmt.Errorf("loading tickets: %w", err)
	}
	texts := make([]string, len(tickets))
	for i, t := range tickets {
		texts[i] = t.Text()
	}

	// The snapshot is loaded before the cache lookup so a cached result can
	// be validated against the same taxonomy a fresh call would see.
	snapshot, err := s.store.ListIntentSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading intent snapshot: %w", err)
	}
	snapshotIdx := classify.SnapshotIndex(snapshot)

	fingerprint := classify.Fingerprint(texts)
	batch, cacheHit := s.cachedClassification(ctx, fingerprint, len(tickets), snapshotIdx)
	if batch == nil {
		batch, err = s.classifier.Classify(ctx, texts, snapshot)
		if err != nil {
			return nil, fmt.Errorf("classifying batch: %w", err)
		}
		s.storeClassification(ctx, fingerprint, batch)
	}

	// Every decision is checked against the snapshot before any is applied:
	// a batch that references an intent the classifier was never shown fails
	// whole, leaving no tickets assigned and no taxonomy rows behind.
	if err := classify.ValidateAgainstSnapshot(batch.Assignments, snapshotIdx); err != nil {
		return nil, fmt.Errorf("validating batch decisions: %w", err)
	}

	assignments := make([]classify.Assignment, 0, len(batch.Assignments))
	for _, td := range batch.Assignments {
		ticket := tickets[td.Index]
		assignment, err := s.resolver.Resolve(ctx, ticket, td.Decision, snapshotIdx)
		if err != nil {
			return nil, fmt.Errorf("resolving ticket %s: %w", ticket.ID, err)
		}
		assignments = append(assignments, *assignment)
	}

	return ClassifyResult{
		Provider:    batch.Provider,
		CacheHit:    cacheHit,
		Assignments: assignments,
	}, nil
}

// cachedClassification returns a usable cached result for the fingerprint,
// or nil. Any cache failure is a miss; an entry that no longer satisfies the
// batch contract, or whose match decisions reference an intent that has since
// left the taxonomy, is dropped and the batch reclassified.
func (s *Service) cachedClassification(ctx context.Context, fingerprint string, ticketCount int, snapshot map[uuid.UUID]models.IntentSnapshotRow) (*models.BatchClassification, bool) {
	key := cache.ClassificationKey(fingerprint)

	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("classification cache read failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var batch models.BatchClassification
	if err := json.Unmarshal(data, &batch); err != nil {
		slog.Warn("discarding undecodable classification cache entry", "key", key, "error", err)
		s.dropCacheEntry(ctx, key)
		return nil, false
	}

	if err := classify.ValidateAssignments(ticketCount, batch.Assignments); err != nil {
		slog.Warn("discarding classification cache entry violating the batch contract",
			"key", key, "error", err)
		s.dropCacheEntry(ctx, key)
		return nil, false
	}

	for _, td := range batch.Assignments {
		if td.Decision.Kind != models.DecisionMatchExisting {
			continue
		}
		if _, ok := snapshot[td.Decision.IntentID]; !ok {
			slog.Info("classification cache entry references a removed intent, reclassifying",
				"key", key, "intent_id", td.Decision.IntentID)
			s.dropCacheEntry(ctx, key)
			return nil, false
		}
	}

	return &batch, true
}

func (s *Service) storeClassification(ctx context.Context, fingerprint string, batch *models.BatchClassification) {
	data, err := json.Marshal(batch)
	if err != nil {
		slog.Warn("marshaling classification for cache", "error", err)
		return
	}
	if err := s.cache.Set(ctx, cache.ClassificationKey(fingerprint), data, s.cfg.CacheTTL); err != nil {
		slog.Warn("classification cache write failed", "error", err)
	}
}

func (s *Service) dropCacheEntry(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Debug("deleting classification cache entry", "key", key, "error", err)
	}
}
