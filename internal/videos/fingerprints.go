package videos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/echotrace/backend/internal/models"
)

// IndexEntry is a fingerprint row joined with the video identity the matcher
// reports back to streaming clients.
type IndexEntry struct {
	Fingerprint     models.AudioFingerprint
	VideoExternalID string
	VideoTitle      string
}

// FingerprintRepository handles the audio fingerprint index. Rows are
// immutable; the hash column is stored as a signed bigint, so the uint64
// fingerprint hash is bit-cast on the way in and out.
type FingerprintRepository struct {
	pool *pgxpool.Pool
}

// NewFingerprintRepository creates a fingerprint repository.
func NewFingerprintRepository(pool *pgxpool.Pool) *FingerprintRepository {
	return &FingerprintRepository{pool: pool}
}

// Create inserts one fingerprint segment row.
func (r *FingerprintRepository) Create(ctx context.Context, fp *models.AudioFingerprint) error {
	const q = `INSERT INTO audio_fingerprints (id, video_id, start_time, end_time, fingerprint_hash,
			payload, confidence_score, peak_count, sample_rate, segment_length)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, fp.VideoID, fp.StartTime, fp.EndTime, int64(fp.FingerprintHash),
		fp.Payload, fp.ConfidenceScore, fp.PeakCount, fp.SampleRate, fp.SegmentLength).
		Scan(&fp.ID, &fp.CreatedAt)
}

// FindByHash returns up to limit index entries whose coarse hash matches the
// query hash. Hash equality is a pre-filter only; callers refine the bounded
// candidate set with a full descriptor comparison.
func (r *FingerprintRepository) FindByHash(ctx context.Context, hash uint64, limit int) ([]IndexEntry, error) {
	const q = `SELECT f.id, f.video_id, f.start_time, f.end_time, f.fingerprint_hash,
			f.payload, f.confidence_score, f.peak_count, f.sample_rate, f.segment_length, f.created_at,
			v.external_id, v.title
		FROM audio_fingerprints f
		JOIN videos v ON v.id = f.video_id
		WHERE f.fingerprint_hash = $1
		ORDER BY f.confidence_score DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, int64(hash), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var storedHash int64
		if err := rows.Scan(&e.Fingerprint.ID, &e.Fingerprint.VideoID, &e.Fingerprint.StartTime,
			&e.Fingerprint.EndTime, &storedHash, &e.Fingerprint.Payload, &e.Fingerprint.ConfidenceScore,
			&e.Fingerprint.PeakCount, &e.Fingerprint.SampleRate, &e.Fingerprint.SegmentLength,
			&e.Fingerprint.CreatedAt, &e.VideoExternalID, &e.VideoTitle); err != nil {
			return nil, err
		}
		e.Fingerprint.FingerprintHash = uint64(storedHash)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListByVideo returns a video's fingerprint segments in time order.
func (r *FingerprintRepository) ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.AudioFingerprint, error) {
	const q = `SELECT id, video_id, start_time, end_time, fingerprint_hash,
			payload, confidence_score, peak_count, sample_rate, segment_length, created_at
		FROM audio_fingerprints WHERE video_id = $1 ORDER BY start_time`
	rows, err := r.pool.Query(ctx, q, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AudioFingerprint
	for rows.Next() {
		var fp models.AudioFingerprint
		var storedHash int64
		if err := rows.Scan(&fp.ID, &fp.VideoID, &fp.StartTime, &fp.EndTime, &storedHash,
			&fp.Payload, &fp.ConfidenceScore, &fp.PeakCount, &fp.SampleRate, &fp.SegmentLength, &fp.CreatedAt); err != nil {
			return nil, err
		}
		fp.FingerprintHash = uint64(storedHash)
		list = append(list, fp)
	}
	return list, rows.Err()
}

// CountByVideo returns how many fingerprint segments a video has.
func (r *FingerprintRepository) CountByVideo(ctx context.Context, videoID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audio_fingerprints WHERE video_id = $1`, videoID).Scan(&n)
	return n, err
}
