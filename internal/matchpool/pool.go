// Package matchpool holds the set of users waiting to be paired and picks
// chat partners uniformly at random from it.
package matchpool

import (
	"math/rand"
	"sync"
)

// SessionChecker reports whether a user currently participates in an active
// chat session. The pool uses it to refuse marking in-session users as
// available.
type SessionChecker interface {
	InSession(userID string) bool
}

// Pool is the thread-safe available set. A user id is in the set only while
// it has no active session.
type Pool struct {
	mu        sync.RWMutex
	available map[string]struct{}
	sessions  SessionChecker
}

// NewPool creates an empty Pool. The sessions checker may be nil, in which
// case MarkAvailable performs no session guard (useful for isolated tests).
func NewPool(sessions SessionChecker) *Pool {
	return &Pool{
		available: make(map[string]struct{}),
		sessions:  sessions,
	}
}

// MarkAvailable adds the user to the available set unless it currently has
// an active session. Idempotent.
func (p *Pool) MarkAvailable(userID string) {
	if p.sessions != nil && p.sessions.InSession(userID) {
		return
	}
	p.mu.Lock()
	p.available[userID] = struct{}{}
	p.mu.Unlock()
}

// MarkUnavailable removes the user from the available set. Idempotent.
func (p *Pool) MarkUnavailable(userID string) {
	p.mu.Lock()
	delete(p.available, userID)
	p.mu.Unlock()
}

// PickPartner returns one user id drawn uniformly at random from the
// available set minus excludeUserID. The selection is made over a snapshot
// taken under the lock, so a concurrently removed user is never returned.
func (p *Pool) PickPartner(excludeUserID string) (string, bool) {
	p.mu.RLock()
	candidates := make([]string, 0, len(p.available))
	for id := range p.available {
		if id == excludeUserID {
			continue
		}
		candidates = append(candidates, id)
	}
	p.mu.RUnlock()

	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// Contains reports whether the user is currently in the available set.
func (p *Pool) Contains(userID string) bool {
	p.mu.RLock()
	_, ok := p.available[userID]
	p.mu.RUnlock()
	return ok
}

// AvailableCount returns the number of users waiting for a partner.
func (p *Pool) AvailableCount() int {
	p.mu.RLock()
	n := len(p.available)
	p.mu.RUnlock()
	return n
}
