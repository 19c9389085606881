package session

import (
	"sync"

	"agribot/internal/metrics"
)

// Registry holds the live sessions of the process
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*State)}
}

// Create starts a new session for userID
func (r *Registry) Create(userID string) *State {
	s := New(userID)
	r.mu.Lock()
	r.sessions[s.ID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	return s
}

// Get looks a session up by id
func (r *Registry) Get(id string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete tears a session down, discarding its log and alert state. The
// session is closed before it leaves the registry, so holders of the
// *State observe the deletion through Closed and Evaluate.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.close()
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
