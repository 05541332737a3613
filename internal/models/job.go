package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle stage of a processing job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobTypeVideoProcess is the only job type the processor handles today.
const JobTypeVideoProcess = "video_process"

// ErrMissingSourceURL is returned when video_process params lack a source URL.
var ErrMissingSourceURL = errors.New("job params missing source url")

// ProcessingJob drives one video through download, segmentation and
// fingerprinting. State machine: pending -> running -> {completed | failed};
// running is re-entrant for progress updates until a terminal state.
type ProcessingJob struct {
	ID            uuid.UUID       `json:"id"`
	JobType       string          `json:"job_type"`
	TargetID      string          `json:"target_id"`
	Status        JobStatus       `json:"status"`
	Progress      float64         `json:"progress"`
	StatusMessage string          `json:"status_message,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the job reached a terminal state.
func (j *ProcessingJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// VideoProcessParams are the typed parameters of a video_process job.
// Validated at creation time so a missing URL fails before enqueue.
type VideoProcessParams struct {
	SourceURL string `json:"source_url"`
	ChannelID string `json:"channel_id"`
}

// Validate checks required fields.
func (p VideoProcessParams) Validate() error {
	if p.SourceURL == "" {
		return ErrMissingSourceURL
	}
	return nil
}

// Encode marshals the params for storage on the job row.
func (p VideoProcessParams) Encode() (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}
	return raw, nil
}

// ParseVideoProcessParams decodes and re-validates job params at dequeue time,
// covering jobs written by older creators that skipped validation.
func ParseVideoProcessParams(raw json.RawMessage) (VideoProcessParams, error) {
	var p VideoProcessParams
	if len(raw) == 0 {
		return p, ErrMissingSourceURL
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("unmarshal job params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
