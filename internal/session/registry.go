package session

import (
	"sort"
	"sync"
)

// Registry tracks the live session for each document. All lookups and
// mutations run under one mutex so two concurrent joins for the same
// document always land in the same session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for the document, calling create under
// the registry lock when none exists yet.
func (r *Registry) GetOrCreate(documentID string, create func() (*Session, error)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[documentID]; ok {
		return s, nil
	}
	s, err := create()
	if err != nil {
		return nil, err
	}
	r.sessions[documentID] = s
	return s, nil
}

// Get returns the live session for the document, if any.
func (r *Registry) Get(documentID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[documentID]
	return s, ok
}

// Remove drops the session unconditionally.
func (r *Registry) Remove(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, documentID)
}

// RemoveIf drops the session only when cond still holds under the
// registry lock, so a sweep cannot race a join that just revived it.
func (r *Registry) RemoveIf(documentID string, cond func(*Session) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[documentID]
	if !ok || !cond(s) {
		return false
	}
	delete(r.sessions, documentID)
	return true
}

// List snapshots the live sessions.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// DocumentIDs returns the ids of all live sessions, sorted.
func (r *Registry) DocumentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
