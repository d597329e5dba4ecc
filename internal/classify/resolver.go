package classify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/intentflow/intentflow/internal/store"
	"github.com/intentflow/intentflow/pkg/models"
)

// Assignment is the persisted outcome of applying one decision to one ticket.
type Assignment struct {
	TicketID      uuid.UUID `json:"ticket_id"`
	IntentID      uuid.UUID `json:"intent_id"`
	CreatedIntent bool      `json:"created_intent"`
	Confidence    float64   `json:"confidence"`
}

// Resolver applies classifier decisions to the taxonomy and ticket stores.
// The create path is safe under arbitrary concurrent execution: safety comes
// entirely from database uniqueness constraints plus retry-on-conflict inside
// the store's get-or-create operations, never from an application lock.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve dispatches on the decision kind and persists the ticket's intent.
func (r *Resolver) Resolve(ctx context.Context, ticket *models.Ticket, dec models.Decision, snapshot map[uuid.UUID]models.IntentSnapshotRow) (*Assignment, error) {
	switch dec.Kind {
	case models.DecisionMatchExisting:
		return r.resolveMatch(ctx, ticket, dec, snapshot)
	case models.DecisionCreateNew:
		return r.resolveCreate(ctx, ticket, dec)
	default:
		return nil, fmt.Errorf("%w: unknown decision kind %q", ErrContractViolation, dec.Kind)
	}
}

// resolveMatch validates the referenced intent against the snapshot the
// classifier was given, not the live store. An id outside the snapshot means
// the model invented an intent — a contract violation, not a transient error.
func (r *Resolver) resolveMatch(ctx context.Context, ticket *models.Ticket, dec models.Decision, snapshot map[uuid.UUID]models.IntentSnapshotRow) (*Assignment, error) {
	if _, ok := snapshot[dec.IntentID]; !ok {
		return nil, fmt.Errorf("%w: intent %s not present in the taxonomy snapshot", ErrContractViolation, dec.IntentID)
	}

	if err := r.store.SetTicketIntent(ctx, ticket.ID, dec.IntentID); err != nil {
		return nil, fmt.Errorf("assigning intent to ticket %s: %w", ticket.ID, err)
	}
	if err := r.store.IncrementIntentResolutions(ctx, dec.IntentID); err != nil {
		return nil, fmt.Errorf("incrementing resolutions for intent %s: %w", dec.IntentID, err)
	}

	return &Assignment{
		TicketID:   ticket.ID,
		IntentID:   dec.IntentID,
		Confidence: dec.Confidence,
	}, nil
}

// resolveCreate walks the category path level by level, get-or-creating each
// node, then resolves the intent keyed by the full path of category ids. Two
// concurrent creators of the same path converge on the same rows.
func (r *Resolver) resolveCreate(ctx context.Context, ticket *models.Ticket, dec models.Decision) (*Assignment, error) {
	l1, _, err := r.store.GetOrCreateCategory(ctx, dec.CategoryL1Name, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("resolving level 1 category %q: %w", dec.CategoryL1Name, err)
	}
	l2, _, err := r.store.GetOrCreateCategory(ctx, dec.CategoryL2Name, 2, &l1.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving level 2 category %q: %w", dec.CategoryL2Name, err)
	}
	l3, _, err := r.store.GetOrCreateCategory(ctx, dec.CategoryL3Name, 3, &l2.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving level 3 category %q: %w", dec.CategoryL3Name, err)
	}

	intent, created, err := r.store.GetOrCreateIntent(ctx, dec.IntentName, models.IntentPath{
		Level1ID: l1.ID,
		Level2ID: l2.ID,
		Level3ID: l3.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving intent %q: %w", dec.IntentName, err)
	}
	if !created && intent.Name != dec.IntentName {
		slog.Debug("intent path already taken under a different name",
			"intent_id", intent.ID,
			"existing_name", intent.Name,
			"proposed_name", dec.IntentName,
		)
	}

	if err := r.store.SetTicketIntent(ctx, ticket.ID, intent.ID); err != nil {
		return nil, fmt.Errorf("assigning intent to ticket %s: %w", ticket.ID, err)
	}
	if err := r.store.IncrementIntentResolutions(ctx, intent.ID); err != nil {
		return nil, fmt.Errorf("incrementing resolutions for intent %s: %w", intent.ID, err)
	}

	return &Assignment{
		TicketID:      ticket.ID,
		IntentID:      intent.ID,
		CreatedIntent: created,
		Confidence:    dec.Confidence,
	}, nil
}

// ValidateAgainstSnapshot rejects a batch whose match decisions reference
// intents outside the snapshot. Run it before applying any decision: a
// violating batch must fail whole, with no tickets assigned and no taxonomy
// rows created.
func ValidateAgainstSnapshot(assignments []models.TicketDecision, snapshot map[uuid.UUID]models.IntentSnapshotRow) error {
	for _, td := range assignments {
		if td.Decision.Kind != models.DecisionMatchExisting {
			continue
		}
		if _, ok := snapshot[td.Decision.IntentID]; !ok {
			return fmt.Errorf("%w: intent %s not present in the taxonomy snapshot",
				ErrContractViolation, td.Decision.IntentID)
		}
	}
	return nil
}

// SnapshotIndex indexes snapshot rows by intent id for match lookups.
func SnapshotIndex(rows []models.IntentSnapshotRow) map[uuid.UUID]models.IntentSnapshotRow {
	idx := make(map[uuid.UUID]models.IntentSnapshotRow, len(rows))
	for _, row := range rows {
		idx[row.IntentID] = row
	}
	return idx
}
