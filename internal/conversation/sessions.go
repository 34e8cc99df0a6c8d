package conversation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/kb-chat-portal/internal/observability/metrics"
)

// Session owns the State of one browser session. Turns for a session run one
// at a time while its lock is held.
type Session struct {
	ID string

	mu    sync.Mutex
	state *State
}

// Do runs fn with exclusive access to the session's state.
func (s *Session) Do(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

type sessionEntry struct {
	session  *Session
	lastSeen time.Time
}

// SessionRegistry keeps chat sessions in memory for the life of the process.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	idleTTL  time.Duration
	now      func() time.Time
	metrics  *metrics.ChatMetrics
}

// NewSessionRegistry creates a registry. idleTTL <= 0 keeps sessions forever.
func NewSessionRegistry(idleTTL time.Duration, m *metrics.ChatMetrics) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*sessionEntry),
		idleTTL:  idleTTL,
		now:      time.Now,
		metrics:  m,
	}
}

// NewSessionID creates a random session identifier.
func NewSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// Get returns the session for id, creating an empty one if needed.
func (r *SessionRegistry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		entry = &sessionEntry{session: &Session{ID: id, state: NewState()}}
		r.sessions[id] = entry
		r.metrics.SetActiveSessions(len(r.sessions))
	}
	entry.lastSeen = r.now()
	return entry.session
}

// Lookup returns an existing session without creating one.
func (r *SessionRegistry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.session, true
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many were removed.
func (r *SessionRegistry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for id, entry := range r.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.metrics.SetActiveSessions(len(r.sessions))
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
