package realtime

import (
	"context"
	"sync"
	"time"
)

// Stats is the running per-session counters pushed alongside every match
// event.
type Stats struct {
	BufferSize       int     `json:"buffer_size"`
	SamplesProcessed int64   `json:"samples_processed"`
	TotalMatches     int64   `json:"total_matches"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}

// Session owns one live connection's sliding audio window and counters. The
// connection's read loop is the only writer; ProcessBuffer works on a
// snapshot, so the lock only guards the counters and the buffer mutation
// itself.
type Session struct {
	ID         string
	sampleRate int
	hopSize    int

	mu               sync.Mutex
	buffer           *RingBuffer
	sinceLastProcess int
	samplesProcessed int64
	totalMatches     int64
	startedAt        time.Time
	lastActivity     time.Time
}

// NewSession creates a session with a buffer of sampleRate×bufferDuration
// samples and a hop gate of sampleRate×hopDuration samples.
func NewSession(id string, sampleRate int, bufferDuration, hopDuration float64) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		sampleRate:   sampleRate,
		hopSize:      int(float64(sampleRate) * hopDuration),
		buffer:       NewRingBuffer(int(float64(sampleRate) * bufferDuration)),
		startedAt:    now,
		lastActivity: now,
	}
}

// AddSamples appends a chunk to the sliding window.
func (s *Session) AddSamples(samples []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Append(samples)
	s.sinceLastProcess += len(samples)
	s.lastActivity = time.Now()
}

// ShouldProcess reports whether at least hop-size new samples arrived since
// the last ProcessBuffer call.
func (s *Session) ShouldProcess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinceLastProcess >= s.hopSize
}

// ProcessBuffer snapshots the window, matches it against the index and
// returns the scored candidates with updated stats. Resets the hop gate.
func (s *Session) ProcessBuffer(ctx context.Context, matcher *Matcher) ([]Match, Stats, error) {
	s.mu.Lock()
	snapshot := s.buffer.Snapshot()
	s.sinceLastProcess = 0
	s.mu.Unlock()

	matches, _, err := matcher.Match(ctx, snapshot, s.sampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplesProcessed += int64(len(snapshot))
	s.totalMatches += int64(len(matches))
	stats := Stats{
		BufferSize:       s.buffer.Len(),
		SamplesProcessed: s.samplesProcessed,
		TotalMatches:     s.totalMatches,
		ElapsedSeconds:   time.Since(s.startedAt).Seconds(),
	}
	return matches, stats, err
}

// LastActivity is the time of the most recent chunk. Callers that want idle
// eviction build it on this; the session itself never expires.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// BufferLen is the current number of buffered samples.
func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Len()
}
