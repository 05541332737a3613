package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a content channel the ingester pulls videos from.
// Created on first sighting of an unseen external id; never deleted here.
type Channel struct {
	ID              uuid.UUID  `json:"id"`
	ExternalID      string     `json:"external_id"`
	DisplayName     string     `json:"display_name"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
