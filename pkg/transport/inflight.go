package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks running chat chains by session so a client can
// cancel one explicitly. A session runs at most one chain at a time.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds a running chain. It returns false, leaving the registry
// unchanged, if the session already has one.
func (r *InFlightRegistry) Register(session string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.entries[session]; busy {
		return false
	}
	r.entries[session] = cancel
	return true
}

// Cancel cancels the session's running chain. Returns false if there is
// none.
func (r *InFlightRegistry) Cancel(session string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[session]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, session)
	return true
}

// Remove drops a session without cancelling it. Called when a chain ends.
func (r *InFlightRegistry) Remove(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, session)
}

// Len returns the number of running chains.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
