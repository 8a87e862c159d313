// Package friends manages friend requests and the symmetric friendship
// adjacency for the lifetime of the process.
package friends

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/driftchat/chat-server/internal/protocol"
)

// Request creation guard errors. The texts are user-facing: the dispatcher
// forwards them verbatim in error frames.
var (
	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends   = errors.New("you are already friends with this user")
	ErrDuplicateRequest = errors.New("a friend request between you is already pending")
)

// ProfileSource resolves a user id to its cached profile. Satisfied by
// presence.Registry.
type ProfileSource interface {
	ProfileOf(userID string) (protocol.Profile, bool)
}

// Graph is the thread-safe friend-request ledger and friendship adjacency.
// Requests are immutable except for a single pending -> accepted or
// pending -> rejected transition; adjacency entries are only ever inserted on
// the accept transition, always in both directions.
type Graph struct {
	mu        sync.RWMutex
	requests  map[string]*protocol.FriendRequest // request id -> record
	adjacency map[string]map[string]struct{}     // user id -> friend set
	profiles  ProfileSource
}

// NewGraph creates an empty Graph that resolves profiles through the given
// source.
func NewGraph(profiles ProfileSource) *Graph {
	return &Graph{
		requests:  make(map[string]*protocol.FriendRequest),
		adjacency: make(map[string]map[string]struct{}),
		profiles:  profiles,
	}
}

// CreateRequest creates a new pending friend request from one user to
// another. It refuses self-requests, requests between users who are already
// friends, and duplicates of a still-pending request in either direction.
func (g *Graph) CreateRequest(fromUserID, toUserID string) (protocol.FriendRequest, error) {
	if fromUserID == toUserID {
		return protocol.FriendRequest{}, ErrSelfRequest
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.areFriendsLocked(fromUserID, toUserID) {
		return protocol.FriendRequest{}, ErrAlreadyFriends
	}
	for _, req := range g.requests {
		if req.Status != protocol.StatusPending {
			continue
		}
		if (req.FromUserID == fromUserID && req.ToUserID == toUserID) ||
			(req.FromUserID == toUserID && req.ToUserID == fromUserID) {
			return protocol.FriendRequest{}, ErrDuplicateRequest
		}
	}

	req := &protocol.FriendRequest{
		ID:         uuid.New().String(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     protocol.StatusPending,
		CreatedAt:  time.Now(),
	}
	g.requests[req.ID] = req
	return *req, nil
}

// PendingRequestsFor returns all pending requests addressed to the given
// user, newest first.
func (g *Graph) PendingRequestsFor(userID string) []protocol.FriendRequest {
	g.mu.RLock()
	pending := make([]protocol.FriendRequest, 0)
	for _, req := range g.requests {
		if req.ToUserID == userID && req.Status == protocol.StatusPending {
			pending = append(pending, *req)
		}
	}
	g.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})
	return pending
}

// Request returns a copy of the request with the given id.
func (g *Graph) Request(requestID string) (protocol.FriendRequest, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	req, ok := g.requests[requestID]
	if !ok {
		return protocol.FriendRequest{}, false
	}
	return *req, true
}

// Accept transitions the request from pending to accepted and, only on that
// exact transition, inserts both adjacency entries. It returns the updated
// request and whether the transition happened; an unknown or already-resolved
// request returns false.
func (g *Graph) Accept(requestID string) (protocol.FriendRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[requestID]
	if !ok || req.Status != protocol.StatusPending {
		return protocol.FriendRequest{}, false
	}

	req.Status = protocol.StatusAccepted
	g.addEdgeLocked(req.FromUserID, req.ToUserID)
	g.addEdgeLocked(req.ToUserID, req.FromUserID)
	return *req, true
}

// Reject transitions the request from pending to rejected. Same return
// contract as Accept; no adjacency is touched.
func (g *Graph) Reject(requestID string) (protocol.FriendRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[requestID]
	if !ok || req.Status != protocol.StatusPending {
		return protocol.FriendRequest{}, false
	}

	req.Status = protocol.StatusRejected
	return *req, true
}

// FriendsOf resolves the user's friend ids to cached profiles. Ids with no
// cached profile (offline users, whose profile was evicted on disconnect)
// are dropped rather than reported as errors.
func (g *Graph) FriendsOf(userID string) []protocol.Profile {
	g.mu.RLock()
	ids := make([]string, 0, len(g.adjacency[userID]))
	for id := range g.adjacency[userID] {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	sort.Strings(ids)
	return lo.FilterMap(ids, func(id string, _ int) (protocol.Profile, bool) {
		return g.profiles.ProfileOf(id)
	})
}

// AreFriends reports whether the two users share a friend edge. The relation
// is symmetric by construction.
func (g *Graph) AreFriends(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.areFriendsLocked(a, b)
}

func (g *Graph) areFriendsLocked(a, b string) bool {
	_, ok := g.adjacency[a][b]
	return ok
}

func (g *Graph) addEdgeLocked(from, to string) {
	set, ok := g.adjacency[from]
	if !ok {
		set = make(map[string]struct{})
		g.adjacency[from] = set
	}
	set[to] = struct{}{}
}
