package models

import (
	"time"

	"github.com/google/uuid"
)

// Video is one ingested video. Created once per external id; re-ingestion only
// refreshes metadata when the change is significant (see ingest package).
type Video struct {
	ID                uuid.UUID  `json:"id"`
	ExternalID        string     `json:"external_id"`
	ChannelID         uuid.UUID  `json:"channel_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	DurationSeconds   float64    `json:"duration_seconds"`
	ViewCount         int64      `json:"view_count"`
	LikeCount         int64      `json:"like_count"`
	UploadDate        *time.Time `json:"upload_date,omitempty"`
	SourceURL         string     `json:"source_url"`
	ThumbnailURL      string     `json:"thumbnail_url,omitempty"`
	ProcessingStarted bool       `json:"processing_started"`
	Processed         bool       `json:"processed"`
	ProcessingError   string     `json:"processing_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
