// Package chatsession manages the active 1:1 chat session records and the
// user -> session index, enforcing at most one session per user.
package chatsession

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a live pairing of exactly two users.
type Session struct {
	ID        string
	User1ID   string
	User2ID   string
	StartedAt time.Time
}

// Partner returns the other member's user id, or "" if the given user is not
// a member of this session.
func (s *Session) Partner(userID string) string {
	if userID == s.User1ID {
		return s.User2ID
	}
	if userID == s.User2ID {
		return s.User1ID
	}
	return ""
}

// IsParticipant reports whether the user is a member of this session.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.User1ID || userID == s.User2ID
}

// PoolRemover removes a user from the matchmaking available set. Satisfied by
// matchpool.Pool.
type PoolRemover interface {
	MarkUnavailable(userID string)
}

// Manager is the thread-safe session registry. The sessions map and the
// byUser index are mutated together under one lock, so every session
// reachable from the index exists in the registry and vice versa.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session id -> record
	byUser   map[string]*Session // user id -> active session
	pool     PoolRemover
}

// NewManager creates an empty Manager with no pool attached; CreateSession
// skips the available-set removal until SetPool is called.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
	}
}

// SetPool installs the matchmaking pool whose available set CreateSession
// clears for both members. Split from NewManager because the pool itself is
// constructed with the manager as its session checker.
func (m *Manager) SetPool(pool PoolRemover) {
	m.pool = pool
}

// CreateSession generates a fresh session for the two users, installs both
// index entries, and removes both users from the matchmaking pool, all under
// one lock. Calling it for a user that already has a session is a programming
// error and panics; callers serialize matchmaking so the precondition holds.
func (m *Manager) CreateSession(userA, userB string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUser[userA]; ok {
		panic("chatsession: user " + userA + " already in a session")
	}
	if _, ok := m.byUser[userB]; ok {
		panic("chatsession: user " + userB + " already in a session")
	}

	s := &Session{
		ID:        uuid.New().String(),
		User1ID:   userA,
		User2ID:   userB,
		StartedAt: time.Now(),
	}
	m.sessions[s.ID] = s
	m.byUser[userA] = s
	m.byUser[userB] = s

	if m.pool != nil {
		m.pool.MarkUnavailable(userA)
		m.pool.MarkUnavailable(userB)
	}
	return s
}

// EndSession removes the session record and both index entries. Idempotent:
// ending an unknown or already-ended session id is a silent no-op, because
// disconnect cleanup and an explicit end request can race to end the same
// session. It reports whether a session was actually ended.
func (m *Manager) EndSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	delete(m.sessions, sessionID)
	delete(m.byUser, s.User1ID)
	delete(m.byUser, s.User2ID)
	return true
}

// SessionOf returns the session the user currently participates in.
func (m *Manager) SessionOf(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byUser[userID]
	return s, ok
}

// InSession reports whether the user currently has an active session. It
// satisfies matchpool.SessionChecker.
func (m *Manager) InSession(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byUser[userID]
	return ok
}

// ActiveCount returns the number of active sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
