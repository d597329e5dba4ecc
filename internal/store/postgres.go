package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/intentflow/intentflow/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Tickets ---

func (s *PostgresStore) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets (id, subject, body, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			t.ID, t.Subject, t.Body, t.CreatedAt, t.UpdatedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range tickets {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("create tickets: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetTickets(ctx context.Context, ids []uuid.UUID) ([]*models.Ticket, error) {
	if len(ids) == 0 {
		return []*models.Ticket{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, subject, body, intent_id, created_at, updated_at
		 FROM tickets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get tickets: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.Ticket, len(ids))
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.Subject, &t.Body, &t.IntentID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		byID[t.ID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the caller's ordering; a missing id is an error, the batch is
	// a closed set.
	tickets := make([]*models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (s *PostgresStore) SetTicketIntent(ctx context.Context, id uuid.UUID, intentID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET intent_id = $2, updated_at = NOW()
		 WHERE id = $1 AND intent_id IS NULL`, id, intentID)
	if err != nil {
		return fmt.Errorf("set ticket intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the ticket does not exist, or it is already classified.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM tickets WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("set ticket intent: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// --- Categories ---

func (s *PostgresStore) GetOrCreateCategory(ctx context.Context, name string, level int, parentID *uuid.UUID) (*models.Category, bool, error) {
	if err := models.ValidateCategoryPlacement(name, level, parentID); err != nil {
		return nil, false, err
	}

	cat, err := s.getCategory(ctx, name, level, parentID)
	if err == nil {
		return cat, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	id := uuid.New()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO categories (id, name, level, parent_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, name, level, parentID, now, now)
	if err == nil {
		return &models.Category{ID: id, Name: name, Level: level, ParentID: parentID, CreatedAt: now, UpdatedAt: now}, true, nil
	}
	if !isDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("create category: %w", err)
	}

	// A concurrent writer won the race; their row is the category.
	cat, err = s.getCategory(ctx, name, level, parentID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("category (%q, level %d) disappeared after insert conflict: %w", name, level, ErrInvariantViolation)
	}
	if err != nil {
		return nil, false, err
	}
	return cat, false, nil
}

func (s *PostgresStore) getCategory(ctx context.Context, name string, level int, parentID *uuid.UUID) (*models.Category, error) {
	var c models.Category
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, level, parent_id, created_at, updated_at
		 FROM categories
		 WHERE name = $1 AND level = $2 AND parent_id IS NOT DISTINCT FROM $3`,
		name, level, parentID,
	).Scan(&c.ID, &c.Name, &c.Level, &c.ParentID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// --- Intents ---

func (s *PostgresStore) GetOrCreateIntent(ctx context.Context, name string, path models.IntentPath) (*models.Intent, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("intent name is required")
	}
	if path.Level1ID == uuid.Nil || path.Level2ID == uuid.Nil || path.Level3ID == uuid.Nil {
		return nil, false, fmt.Errorf("intent path requires all three category ids")
	}

	intent, err := s.getIntentByPath(ctx, path)
	if err == nil {
		return intent, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	id := uuid.New()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO intents (id, name, category_level_1_id, category_level_2_id, category_level_3_id, is_processed, resolutions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, 0, $6, $7)`,
		id, name, path.Level1ID, path.Level2ID, path.Level3ID, now, now)
	if err == nil {
		l1, l2, l3 := path.Level1ID, path.Level2ID, path.Level3ID
		return &models.Intent{
			ID: id, Name: name,
			CategoryLevel1ID: &l1, CategoryLevel2ID: &l2, CategoryLevel3ID: &l3,
			CreatedAt: now, UpdatedAt: now,
		}, true, nil
	}
	if !isDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("create intent: %w", err)
	}

	intent, err = s.getIntentByPath(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("intent for path %s/%s/%s disappeared after insert conflict: %w",
			path.Level1ID, path.Level2ID, path.Level3ID, ErrInvariantViolation)
	}
	if err != nil {
		return nil, false, err
	}
	return intent, false, nil
}

func (s *PostgresStore) getIntentByPath(ctx context.Context, path models.IntentPath) (*models.Intent, error) {
	var i models.Intent
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, category_level_1_id, category_level_2_id, category_level_3_id, is_processed, resolutions, created_at, updated_at
		 FROM intents
		 WHERE category_level_1_id = $1 AND category_level_2_id = $2 AND category_level_3_id = $3`,
		path.Level1ID, path.Level2ID, path.Level3ID,
	).Scan(&i.ID, &i.Name, &i.CategoryLevel1ID, &i.CategoryLevel2ID, &i.CategoryLevel3ID,
		&i.IsProcessed, &i.Resolutions, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent by path: %w", err)
	}
	return &i, nil
}

func (s *PostgresStore) ListIntents(ctx context.Context, filter IntentFilter) ([]*models.Intent, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Processed != nil {
		conditions = append(conditions, fmt.Sprintf("is_processed = $%d", argIdx))
		args = append(args, *filter.Processed)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM intents WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count intents: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT id, name, category_level_1_id, category_level_2_id, category_level_3_id, is_processed, resolutions, created_at, updated_at
		 FROM intents WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []*models.Intent
	for rows.Next() {
		var i models.Intent
		if err := rows.Scan(&i.ID, &i.Name, &i.CategoryLevel1ID, &i.CategoryLevel2ID, &i.CategoryLevel3ID,
			&i.IsProcessed, &i.Resolutions, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan intent: %w", err)
		}
		intents = append(intents, &i)
	}
	return intents, total, rows.Err()
}

func (s *PostgresStore) ListIntentSnapshot(ctx context.Context) ([]models.IntentSnapshotRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.name,
		        c1.id, c1.name,
		        c2.id, c2.name,
		        c3.id, c3.name
		 FROM intents i
		 JOIN categories c1 ON c1.id = i.category_level_1_id
		 JOIN categories c2 ON c2.id = i.category_level_2_id
		 JOIN categories c3 ON c3.id = i.category_level_3_id
		 ORDER BY c1.name, c2.name, c3.name, i.name`)
	if err != nil {
		return nil, fmt.Errorf("list intent snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := []models.IntentSnapshotRow{}
	for rows.Next() {
		var r models.IntentSnapshotRow
		if err := rows.Scan(&r.IntentID, &r.IntentName,
			&r.CategoryL1ID, &r.CategoryL1Name,
			&r.CategoryL2ID, &r.CategoryL2Name,
			&r.CategoryL3ID, &r.CategoryL3Name); err != nil {
			return nil, fmt.Errorf("scan intent snapshot row: %w", err)
		}
		snapshot = append(snapshot, r)
	}
	return snapshot, rows.Err()
}

func (s *PostgresStore) MarkIntentProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE intents SET is_processed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark intent processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementIntentResolutions(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE intents SET resolutions = resolutions + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment intent resolutions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Batches ---

func (s *PostgresStore) CreateBatch(ctx context.Context, batch *models.Batch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, status, finalizer_job_id, ticket_count, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		batch.ID, batch.Status, batch.FinalizerJobID, batch.TicketCount, batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var b models.Batch
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, finalizer_job_id, ticket_count, unique_intents, generation_jobs, failed_jobs, created_at, completed_at
		 FROM batches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Status, &b.FinalizerJobID, &b.TicketCount, &b.UniqueIntents,
		&b.GenerationJobs, &b.FailedJobs, &b.CreatedAt, &b.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) CompleteBatch(ctx context.Context, id uuid.UUID, counts BatchCounts) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches
		 SET status = $2, ticket_count = $3, unique_intents = $4, generation_jobs = $5, failed_jobs = $6, completed_at = NOW()
		 WHERE id = $1`,
		id, models.BatchStatusCompleted, counts.TicketsProcessed, counts.UniqueIntents,
		counts.GenerationJobs, counts.FailedJobs)
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
