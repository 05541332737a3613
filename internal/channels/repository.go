package channels

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echotrace/backend/internal/models"
)

// Repository handles channel persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a channels repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert creates the channel on first sighting or refreshes display name and
// last-processed time on re-ingestion.
func (r *Repository) Upsert(ctx context.Context, externalID, displayName string, processedAt time.Time) (*models.Channel, error) {
	const q = `INSERT INTO channels (id, external_id, display_name, last_processed_at)
		VALUES (gen_random_uuid(), $1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE
			SET display_name = EXCLUDED.display_name,
			    last_processed_at = EXCLUDED.last_processed_at,
			    updated_at = NOW()
		RETURNING id, external_id, display_name, last_processed_at, created_at, updated_at`
	var ch models.Channel
	err := r.pool.QueryRow(ctx, q, externalID, displayName, processedAt).
		Scan(&ch.ID, &ch.ExternalID, &ch.DisplayName, &ch.LastProcessedAt, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetByExternalID returns a channel or nil when unseen.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*models.Channel, error) {
	const q = `SELECT id, external_id, display_name, last_processed_at, created_at, updated_at
		FROM channels WHERE external_id = $1`
	var ch models.Channel
	err := r.pool.QueryRow(ctx, q, externalID).
		Scan(&ch.ID, &ch.ExternalID, &ch.DisplayName, &ch.LastProcessedAt, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}

// List returns all channels, most recently processed first.
func (r *Repository) List(ctx context.Context) ([]models.Channel, error) {
	const q = `SELECT id, external_id, display_name, last_processed_at, created_at, updated_at
		FROM channels ORDER BY last_processed_at DESC NULLS LAST`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.ExternalID, &ch.DisplayName, &ch.LastProcessedAt, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, ch)
	}
	return list, rows.Err()
}
