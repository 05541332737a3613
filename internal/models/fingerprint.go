package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioFingerprint is one indexed audio segment of a video. Rows are immutable
// once created; [StartTime, EndTime) intervals are non-overlapping per video.
type AudioFingerprint struct {
	ID              uuid.UUID `json:"id"`
	VideoID         uuid.UUID `json:"video_id"`
	StartTime       float64   `json:"start_time"`
	EndTime         float64   `json:"end_time"`
	FingerprintHash uint64    `json:"fingerprint_hash"`
	Payload         []byte    `json:"-"`
	ConfidenceScore float64   `json:"confidence_score"`
	PeakCount       int       `json:"peak_count"`
	SampleRate      int       `json:"sample_rate"`
	SegmentLength   float64   `json:"segment_length"`
	CreatedAt       time.Time `json:"created_at"`
}
