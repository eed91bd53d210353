package api

import (
	"slices"
	"strings"
	"sync"

	"github.com/smazurov/streamgear/internal/metrics"
	"github.com/smazurov/streamgear/internal/streamgear"
)

// Session is the view of a streamgear session the API needs.
type Session interface {
	ID() string
	Status() streamgear.Status
	ManifestPath() string
}

// Registry tracks the sessions the API reports on.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Add registers s, replacing any session with the same ID.
func (r *Registry) Add(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Remove forgets the session with the given ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Track registers s and returns a func that removes it again and drops its
// per-session metrics. Call it once the session's final state was published.
func (r *Registry) Track(s Session) func() {
	r.Add(s)
	return func() {
		r.Remove(s.ID())
		metrics.DeleteSession(s.ID())
	}
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns the status of every session, ordered by ID.
func (r *Registry) List() []streamgear.Status {
	r.mu.RLock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]streamgear.Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	slices.SortFunc(out, func(a, b streamgear.Status) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
