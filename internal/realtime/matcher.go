package realtime

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/echotrace/backend/internal/fingerprint"
	"github.com/echotrace/backend/internal/videos"
)

// candidateLimit bounds the hash pre-filter result set before the expensive
// descriptor comparison.
const candidateLimit = 10

// FingerprintIndex answers hash-equality lookups against the stored index.
type FingerprintIndex interface {
	FindByHash(ctx context.Context, hash uint64, limit int) ([]videos.IndexEntry, error)
}

// Match is one scored candidate from the index.
type Match struct {
	VideoExternalID string                 `json:"video_id"`
	VideoTitle      string                 `json:"video_title"`
	StartTime       float64                `json:"start_time"`
	EndTime         float64                `json:"end_time"`
	Similarity      fingerprint.Similarity `json:"similarity"`
}

// Matcher resolves a live audio window against the fingerprint index: a
// coarse fingerprint-hash equality pre-filter, then descriptor comparison to
// score each surviving candidate. Reads only; safe to share across sessions.
type Matcher struct {
	index    FingerprintIndex
	minScore float64
	logger   *zap.Logger
}

// NewMatcher creates a matcher. minScore filters results below the floor;
// zero keeps everything.
func NewMatcher(index FingerprintIndex, minScore float64, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{index: index, minScore: minScore, logger: logger}
}

// Match extracts one descriptor over the window and returns scored candidates
// sorted by combined score descending.
func (m *Matcher) Match(ctx context.Context, samples []float64, sampleRate int) ([]Match, *fingerprint.Descriptor, error) {
	desc, err := fingerprint.Extract(samples, sampleRate)
	if err != nil {
		return nil, nil, err
	}

	entries, err := m.index.FindByHash(ctx, desc.Hash, candidateLimit)
	if err != nil {
		return nil, desc, fmt.Errorf("index lookup: %w", err)
	}

	matches := make([]Match, 0, len(entries))
	for _, entry := range entries {
		stored, err := fingerprint.Deserialize(entry.Fingerprint.Payload)
		if err != nil {
			// A corrupt payload should not hide the other candidates.
			m.logger.Warn("stored fingerprint payload unreadable",
				zap.String("fingerprint_id", entry.Fingerprint.ID.String()),
				zap.Error(err))
			continue
		}
		sim := fingerprint.Compare(desc, stored)
		if sim.Combined < m.minScore {
			continue
		}
		matches = append(matches, Match{
			VideoExternalID: entry.VideoExternalID,
			VideoTitle:      entry.VideoTitle,
			StartTime:       entry.Fingerprint.StartTime,
			EndTime:         entry.Fingerprint.EndTime,
			Similarity:      sim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity.Combined > matches[j].Similarity.Combined
	})
	return matches, desc, nil
}
