package videos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echotrace/backend/internal/models"
)

const videoColumns = `id, external_id, channel_id, title, COALESCE(description,''), duration_seconds,
	view_count, like_count, upload_date, source_url, COALESCE(thumbnail_url,''),
	processing_started, processed, COALESCE(processing_error,''), created_at, updated_at`

// Repository handles video persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.ExternalID, &v.ChannelID, &v.Title, &v.Description, &v.DurationSeconds,
		&v.ViewCount, &v.LikeCount, &v.UploadDate, &v.SourceURL, &v.ThumbnailURL,
		&v.ProcessingStarted, &v.Processed, &v.ProcessingError, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a new video record.
func (r *Repository) Create(ctx context.Context, v *models.Video) error {
	const q = `INSERT INTO videos (id, external_id, channel_id, title, description, duration_seconds,
			view_count, like_count, upload_date, source_url, thumbnail_url)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, v.ExternalID, v.ChannelID, v.Title, v.Description, v.DurationSeconds,
		v.ViewCount, v.LikeCount, v.UploadDate, v.SourceURL, v.ThumbnailURL).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetByExternalID returns a video or nil when unseen.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	v, err := scanVideo(r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE external_id = $1`, externalID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// GetByID returns a video by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	v, err := scanVideo(r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// UpdateMetadata refreshes the mutable metadata fields of an existing video.
func (r *Repository) UpdateMetadata(ctx context.Context, id uuid.UUID, title, description string, duration float64, viewCount, likeCount int64) error {
	const q = `UPDATE videos SET title = $1, description = $2, duration_seconds = $3,
			view_count = $4, like_count = $5, updated_at = NOW()
		WHERE id = $6`
	_, err := r.pool.Exec(ctx, q, title, description, duration, viewCount, likeCount, id)
	return err
}

// MarkProcessingStarted flags a video as picked up by the processor.
func (r *Repository) MarkProcessingStarted(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE videos SET processing_started = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// MarkProcessed records the terminal processing outcome on the video.
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID, success bool, errMsg string) error {
	const q = `UPDATE videos SET processed = $1, processing_error = NULLIF($2, ''), updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, success, errMsg, id)
	return err
}

// ListByChannel returns a channel's videos, newest upload first.
func (r *Repository) ListByChannel(ctx context.Context, channelID uuid.UUID) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE channel_id = $1 ORDER BY upload_date DESC NULLS LAST`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}
