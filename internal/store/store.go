package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/intentflow/intentflow/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrInvariantViolation signals that a row vanished between a uniqueness
// conflict and the follow-up lookup — a deletion raced with creation. This is
// unrecoverable for the resolution flow and must surface to the operator.
var ErrInvariantViolation = errors.New("taxonomy invariant violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateTickets(ctx context.Context, tickets []*models.Ticket) error
	GetTickets(ctx context.Context, ids []uuid.UUID) ([]*models.Ticket, error)
	// SetTicketIntent assigns the intent to a still-unclassified ticket. A
	// ticket that already carries an intent is left untouched: classification
	// is terminal and at-least-once job retries must not flip it.
	SetTicketIntent(ctx context.Context, id uuid.UUID, intentID uuid.UUID) error

	// GetOrCreateCategory resolves a category by its unique key
	// (name, level, parent_id), inserting it if absent. Safe under concurrent
	// callers: a losing writer recovers the winner's row via re-query.
	GetOrCreateCategory(ctx context.Context, name string, level int, parentID *uuid.UUID) (*models.Category, bool, error)

	// GetOrCreateIntent resolves an intent by its full category path. The
	// name only matters when this call creates the row; two different names
	// for the same path resolve to the same intent.
	GetOrCreateIntent(ctx context.Context, name string, path models.IntentPath) (*models.Intent, bool, error)
	ListIntents(ctx context.Context, filter IntentFilter) ([]*models.Intent, int, error)
	ListIntentSnapshot(ctx context.Context) ([]models.IntentSnapshotRow, error)
	MarkIntentProcessed(ctx context.Context, id uuid.UUID) error
	IncrementIntentResolutions(ctx context.Context, id uuid.UUID) error

	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	CompleteBatch(ctx context.Context, id uuid.UUID, counts BatchCounts) error
}

// IntentFilter narrows and paginates intent listings.
type IntentFilter struct {
	Processed *bool
	Page      int
	Limit     int
}

// BatchCounts carries the finalizer's fan-in summary into the batch record.
type BatchCounts struct {
	TicketsProcessed int
	UniqueIntents    int
	GenerationJobs   int
	FailedJobs       int
}
