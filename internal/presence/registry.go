// Package presence tracks which users are online and which connection each
// one owns. It maintains a bidirectional mapping between user ids and
// connection ids plus a cache of the profile supplied at registration.
package presence

import (
	"sync"

	"github.com/driftchat/chat-server/internal/protocol"
)

// Registry is the thread-safe user <-> connection mapping. A connection id
// maps to at most one user and a user to at most one connection at any
// instant; a second registration for either key replaces the prior mapping.
type Registry struct {
	mu         sync.RWMutex
	userByConn map[string]string           // connection id -> user id
	connByUser map[string]string           // user id -> connection id
	profiles   map[string]protocol.Profile // user id -> cached profile
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		userByConn: make(map[string]string),
		connByUser: make(map[string]string),
		profiles:   make(map[string]protocol.Profile),
	}
}

// Register installs the user <-> connection mapping and caches the profile.
// Any prior mapping for either the user or the connection is overwritten, so
// a reconnect replaces the stale connection rather than duplicating it. It
// returns the connection id that was displaced for this user, if any, so the
// caller can close the stale socket.
func (r *Registry) Register(userID string, profile protocol.Profile, connID string) (staleConnID string, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.connByUser[userID]; ok && prev != connID {
		delete(r.userByConn, prev)
		staleConnID = prev
		replaced = true
	}
	if prevUser, ok := r.userByConn[connID]; ok && prevUser != userID {
		delete(r.connByUser, prevUser)
		delete(r.profiles, prevUser)
	}

	r.userByConn[connID] = userID
	r.connByUser[userID] = connID
	r.profiles[userID] = profile
	return staleConnID, replaced
}

// Unregister removes the mapping owned by the given connection id and evicts
// the cached profile. It returns the user id that was removed. Unknown
// connection ids are a no-op, as are close events from a stale connection
// that has already been replaced by a reconnect.
func (r *Registry) Unregister(connID string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.userByConn[connID]
	if !ok {
		return "", false
	}

	delete(r.userByConn, connID)
	delete(r.connByUser, userID)
	delete(r.profiles, userID)
	return userID, true
}

// UserOf returns the user id registered on the given connection.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.userByConn[connID]
	return userID, ok
}

// ConnOf returns the live connection id for the given user.
func (r *Registry) ConnOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.connByUser[userID]
	return connID, ok
}

// ProfileOf returns the profile cached at registration time for the given
// user.
func (r *Registry) ProfileOf(userID string) (protocol.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[userID]
	return profile, ok
}

// IsOnline reports whether the given user currently owns a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connByUser[userID]
	return ok
}

// OnlineCount returns the number of registered users.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connByUser)
}
