// Package registry tracks which connections have joined the chat. It is the
// single source of truth for "who is online": a connection appears here
// exactly between a successful join and its disconnect.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/dllu1/go-chatroom/internal/domain"
)

var ErrAlreadyJoined = errors.New("connection already joined")

// Registry is a mutex-guarded map of connection ID to Session. Every
// mutation and every snapshot read runs under the same lock, so a broadcast
// recipient set is always consistent with concurrent joins and leaves.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*domain.Session),
	}
}

// Register binds connID to username. A connection can hold at most one
// binding; a second Register without an intervening Unregister fails with
// ErrAlreadyJoined and leaves the prior binding intact.
func (r *Registry) Register(connID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		return ErrAlreadyJoined
	}
	r.sessions[connID] = domain.NewSession(connID, username)
	return nil
}

// Unregister removes the binding for connID, returning the username that
// was bound. Unregistering an unknown connection is a no-op, not an error.
func (r *Registry) Unregister(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return "", false
	}
	delete(r.sessions, connID)
	return s.Username, true
}

// Lookup returns the username bound to connID, if any.
func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return "", false
	}
	return s.Username, true
}

// OnlineUsers returns a deduplicated, sorted snapshot of all bound
// usernames. Two connections joined under the same name count once.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.sessions))
	users := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		if _, ok := seen[s.Username]; ok {
			continue
		}
		seen[s.Username] = struct{}{}
		users = append(users, s.Username)
	}
	sort.Strings(users)
	return users
}

// ConnIDs returns an atomic snapshot of all joined connection IDs. This is
// the broadcast recipient set: a connection that unregisters concurrently
// is either fully in or fully out of the snapshot, never torn.
func (r *Registry) ConnIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of distinct online usernames.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.sessions))
	for _, s := range r.sessions {
		seen[s.Username] = struct{}{}
	}
	return len(seen)
}
