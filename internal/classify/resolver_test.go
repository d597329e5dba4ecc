package classify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentflow/intentflow/internal/store"
	"github.com/intentflow/intentflow/pkg/models"
)

// resolverStore implements the slice of store.Store the resolver touches and
// records what was called. Unimplemented methods panic via the embedded nil.
type resolverStore struct {
	store.Store

	categories map[string]*models.Category
	intents    map[models.IntentPath]*models.Intent

	assignedTickets map[uuid.UUID]uuid.UUID
	resolutionIncs  []uuid.UUID
	categoryCreates int
	intentCreates   int
}

func newResolverStore() *resolverStore {
	return &resolverStore{
		categories:      make(map[string]*models.Category),
		intents:         make(map[models.IntentPath]*models.Intent),
		assignedTickets: make(map[uuid.UUID]uuid.UUID),
	}
}

func categoryKey(name string, level int, parentID *uuid.UUID) string {
	key := name + "|" + string(rune('0'+level)) + "|"
	if parentID != nil {
		key += parentID.String()
	}
	return key
}

func (s *resolverStore) GetOrCreateCategory(_ context.Context, name string, level int, parentID *uuid.UUID) (*models.Category, bool, error) {
	if err := models.ValidateCategoryPlacement(name, level, parentID); err != nil {
		return nil, false, err
	}
	key := categoryKey(name, level, parentID)
	if existing, ok := s.categories[key]; ok {
		return existing, false, nil
	}
	cat := &models.Category{
		ID:        uuid.New(),
		Name:      name,
		Level:     level,
		ParentID:  parentID,
		CreatedAt: time.Now(),
	}
	s.categories[key] = cat
	s.categoryCreates++
	return cat, true, nil
}

func (s *resolverStore) GetOrCreateIntent(_ context.Context, name string, path models.IntentPath) (*models.Intent, bool, error) {
	if existing, ok := s.intents[path]; ok {
		return existing, false, nil
	}
	intent := &models.Intent{
		ID:               uuid.New(),
		Name:             name,
		CategoryLevel1ID: &path.Level1ID,
		CategoryLevel2ID: &path.Level2ID,
		CategoryLevel3ID: &path.Level3ID,
		CreatedAt:        time.Now(),
	}
	s.intents[path] = intent
	s.intentCreates++
	return intent, true, nil
}

func (s *resolverStore) SetTicketIntent(_ context.Context, id uuid.UUID, intentID uuid.UUID) error {
	if _, ok := s.assignedTickets[id]; !ok {
		s.assignedTickets[id] = intentID
	}
	return nil
}

func (s *resolverStore) IncrementIntentResolutions(_ context.Context, id uuid.UUID) error {
	s.resolutionIncs = append(s.resolutionIncs, id)
	return nil
}

func createDecision(confidence float64) models.Decision {
	return models.Decision{
		Kind:           models.DecisionCreateNew,
		Confidence:     confidence,
		CategoryL1Name: "Billing",
		CategoryL2Name: "Invoices",
		CategoryL3Name: "Corrections",
		IntentName:     "Fix invoice amount",
	}
}

func TestResolveMatch(t *testing.T) {
	st := newResolverStore()
	resolver := NewResolver(st)

	intentID := uuid.New()
	snapshot := SnapshotIndex([]models.IntentSnapshotRow{{IntentID: intentID, IntentName: "Reset password"}})
	ticket := &models.Ticket{ID: uuid.New()}

	assignment, err := resolver.Resolve(context.Background(), ticket, models.Decision{
		Kind:       models.DecisionMatchExisting,
		IntentID:   intentID,
		Confidence: 0.95,
	}, snapshot)
	require.NoError(t, err)

	assert.Equal(t, ticket.ID, assignment.TicketID)
	assert.Equal(t, intentID, assignment.IntentID)
	assert.False(t, assignment.CreatedIntent)
	assert.Equal(t, 0.95, assignment.Confidence)
	assert.Equal(t, intentID, st.assignedTickets[ticket.ID])
	assert.Equal(t, []uuid.UUID{intentID}, st.resolutionIncs)
}

func TestResolveMatch_IntentOutsideSnapshot(t *testing.T) {
	st := newResolverStore()
	resolver := NewResolver(st)

	snapshot := SnapshotIndex([]models.IntentSnapshotRow{{IntentID: uuid.New()}})
	ticket := &models.Ticket{ID: uuid.New()}

	_, err := resolver.Resolve(context.Background(), ticket, models.Decision{
		Kind:     models.DecisionMatchExisting,
		IntentID: uuid.New(),
	}, snapshot)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Empty(t, st.assignedTickets, "nothing committed on a contract violation")
}

func TestResolveCreate_NewPath(t *testing.T) {
	st := newResolverStore()
	resolver := NewResolver(st)
	ticket := &models.Ticket{ID: uuid.New()}

	assignment, err := resolver.Resolve(context.Background(), ticket, createDecision(0.8), nil)
	require.NoError(t, err)

	assert.True(t, assignment.CreatedIntent)
	assert.Equal(t, 3, st.categoryCreates)
	assert.Equal(t, 1, st.intentCreates)
	assert.Equal(t, assignment.IntentID, st.assignedTickets[ticket.ID])

	// The created path is wired level by level.
	l1 := st.categories[categoryKey("Billing", 1, nil)]
	require.NotNil(t, l1)
	l2 := st.categories[categoryKey("Invoices", 2, &l1.ID)]
	require.NotNil(t, l2)
	l3 := st.categories[categoryKey("Corrections", 3, &l2.ID)]
	require.NotNil(t, l3)
}

func TestResolveCreate_ExistingPathConverges(t *testing.T) {
	st := newResolverStore()
	resolver := NewResolver(st)

	first, err := resolver.Resolve(context.Background(), &models.Ticket{ID: uuid.New()}, createDecision(0.8), nil)
	require.NoError(t, err)

	// Same path, different proposed intent name: lands on the same intent.
	dec := createDecision(0.7)
	dec.IntentName = "Correct billed amount"
	second, err := resolver.Resolve(context.Background(), &models.Ticket{ID: uuid.New()}, dec, nil)
	require.NoError(t, err)

	assert.Equal(t, first.IntentID, second.IntentID)
	assert.True(t, first.CreatedIntent)
	assert.False(t, second.CreatedIntent)
	assert.Equal(t, 3, st.categoryCreates, "categories resolved, not duplicated")
	assert.Equal(t, 1, st.intentCreates)
	assert.Len(t, st.resolutionIncs, 2)
}

func TestResolve_UnknownKind(t *testing.T) {
	resolver := NewResolver(newResolverStore())

	_, err := resolver.Resolve(context.Background(), &models.Ticket{ID: uuid.New()}, models.Decision{Kind: "escalate"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestSnapshotIndex(t *testing.T) {
	a := models.IntentSnapshotRow{IntentID: uuid.New(), IntentName: "a"}
	b := models.IntentSnapshotRow{IntentID: uuid.New(), IntentName: "b"}

	idx := SnapshotIndex([]models.IntentSnapshotRow{a, b})
	require.Len(t, idx, 2)
	assert.Equal(t, a, idx[a.IntentID])
	assert.Equal(t, b, idx[b.IntentID])
}
