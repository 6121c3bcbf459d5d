// Package registry tracks which users currently hold live chat connections.
package registry

import (
	"sort"
	"sync"
)

// Registry maps user ids to their live connection ids. The zero value is not usable;
// construct it with New.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]map[string]struct{})}
}

// Add records connID as a live connection of userID.
func (r *Registry) Add(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
}

// Remove forgets connID. The user entry is dropped with its last connection.
func (r *Registry) Remove(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Connections returns a sorted copy of userID's connection ids.
func (r *Registry) Connections(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OnlineUsers returns the number of users with a live connection.
func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
