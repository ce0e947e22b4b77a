package session

import (
	"sync"
	"time"
)

// Registry keeps the sessions of HTTP viewers and evicts idle ones
type Registry struct {
	newSession func() *Session
	maxIdle    time.Duration

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry creates a Registry building sessions with newSession
func NewRegistry(newSession func() *Session, maxIdle time.Duration) *Registry {
	return &Registry{
		newSession: newSession,
		maxIdle:    maxIdle,
		sessions:   make(map[string]*entry),
	}
}

// Get returns the session with id, creating a new one when id is unknown
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[id]; ok {
		e.lastSeen = time.Now()
		return e.session
	}
	s := r.newSession()
	r.sessions[s.ID] = &entry{session: s, lastSeen: time.Now()}
	return s
}

// Lookup returns the session with id or nil
func (r *Registry) Lookup(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.lastSeen = time.Now()
		return e.session
	}
	return nil
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than maxIdle and returns how
// many were removed. A session still loading is kept.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.maxIdle && !e.session.Loading() {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
