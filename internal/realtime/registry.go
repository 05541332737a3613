package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Registry maps session ids to live sessions. Sessions are created lazily on
// first audio and destroyed explicitly on disconnect; there is no implicit
// idle eviction here, callers can poll LastActivity if they want one.
type Registry struct {
	sampleRate     int
	bufferDuration float64
	hopDuration    float64

	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(sampleRate int, bufferDuration, hopDuration float64, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sampleRate:     sampleRate,
		bufferDuration: bufferDuration,
		hopDuration:    hopDuration,
		sessions:       make(map[string]*Session),
		logger:         logger,
	}
}

// GetOrCreate returns the session for id, creating it on first use.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s = NewSession(id, r.sampleRate, r.bufferDuration, r.hopDuration)
	r.sessions[id] = s
	r.logger.Debug("session created", zap.String("session_id", id))
	return s
}

// Get returns the session for id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Destroy removes the session and releases its buffer. Safe to call for
// unknown ids.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if existed {
		r.logger.Debug("session destroyed", zap.String("session_id", id))
	}
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
