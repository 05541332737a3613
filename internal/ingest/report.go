package ingest

import "time"

// Action is the outcome of reconciling one listed video.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionFailed    Action = "failed"
)

// ItemOutcome records what happened to a single video during reconciliation.
type ItemOutcome struct {
	VideoID    string `json:"video_id"`
	Action     Action `json:"action"`
	Error      string `json:"error,omitempty"`
	JobCreated bool   `json:"job_created"`
}

// ChannelReport summarizes one channel's ingestion. In dry-run mode the
// counters reflect what would have happened.
type ChannelReport struct {
	ChannelID   string        `json:"channel_id"`
	DryRun      bool          `json:"dry_run"`
	Fetched     int           `json:"fetched"`
	Created     int           `json:"created"`
	Updated     int           `json:"updated"`
	Failed      int           `json:"failed"`
	JobsCreated int           `json:"jobs_created"`
	Items       []ItemOutcome `json:"items"`
}

func (r *ChannelReport) add(item ItemOutcome) {
	r.Items = append(r.Items, item)
	switch item.Action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionFailed:
		r.Failed++
	}
	if item.JobCreated {
		r.JobsCreated++
	}
}

// ChannelOutcome pairs a channel with its final report or error.
type ChannelOutcome struct {
	ChannelID string         `json:"channel_id"`
	Attempts  int            `json:"attempts"`
	Report    *ChannelReport `json:"report,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Report covers a full ingestion run across channels.
type Report struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Channels   []ChannelOutcome `json:"channels"`
}

// FailedCount reports how many channels ended the run with an error.
func (r *Report) FailedCount() int {
	n := 0
	for _, c := range r.Channels {
		if c.Error != "" {
			n++
		}
	}
	return n
}
