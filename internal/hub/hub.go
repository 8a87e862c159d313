// Package hub is the coordination layer between the WebSocket transport and
// the chat state: it decodes inbound protocol messages, drives presence,
// matchmaking, sessions, and the friend graph, and relays results to the
// right connections. It is the only package that sends frames.
package hub

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/driftchat/chat-server/internal/chatsession"
	"github.com/driftchat/chat-server/internal/friends"
	"github.com/driftchat/chat-server/internal/matchpool"
	"github.com/driftchat/chat-server/internal/metrics"
	"github.com/driftchat/chat-server/internal/presence"
	"github.com/driftchat/chat-server/internal/protocol"
	"github.com/driftchat/chat-server/internal/ratelimit"
)

// Sender delivers framed messages to live connections. Satisfied by
// *ws.Server; tests substitute an in-memory recorder.
type Sender interface {
	// SendMessage writes one text frame to the connection, best effort.
	SendMessage(connID string, data []byte) error
	// CloseConnection closes and removes a connection, e.g. a stale socket
	// displaced by a reconnect.
	CloseConnection(connID string)
}

// Hub owns all chat state for one server process. It is constructed once at
// startup and handed the transport callbacks; there is no package-level
// state, so tests run fully isolated instances.
type Hub struct {
	sender   Sender
	presence *presence.Registry
	pool     *matchpool.Pool
	sessions *chatsession.Manager
	friends  *friends.Graph
	limiter  *ratelimit.Limiter

	// matchMu serializes the pick-partner + create-session sequence so two
	// concurrent find_match calls can never select the same partner twice.
	matchMu sync.Mutex
}

// New creates a Hub with freshly wired components. The sender is attached
// separately via SetSender because the transport server is constructed with
// the hub's Dispatch as its message callback.
func New() *Hub {
	reg := presence.NewRegistry()
	sessions := chatsession.NewManager()
	pool := matchpool.NewPool(sessions)
	sessions.SetPool(pool)

	return &Hub{
		presence: reg,
		pool:     pool,
		sessions: sessions,
		friends:  friends.NewGraph(reg),
		limiter:  ratelimit.NewLimiter(),
	}
}

// SetSender attaches the outbound frame writer. Must be called before the
// first Dispatch.
func (h *Hub) SetSender(sender Sender) {
	h.sender = sender
}

// Presence exposes the presence registry, e.g. for health reporting.
func (h *Hub) Presence() *presence.Registry { return h.presence }

// Sessions exposes the session manager.
func (h *Hub) Sessions() *chatsession.Manager { return h.sessions }

// Pool exposes the matchmaking pool.
func (h *Hub) Pool() *matchpool.Pool { return h.pool }

// Friends exposes the friend graph.
func (h *Hub) Friends() *friends.Graph { return h.friends }

// Dispatch handles one inbound frame from the given connection. It never
// returns an error: every failure mode is reported to the offending
// connection as an error frame and must not affect other connections.
func (h *Hub) Dispatch(connID string, data []byte) {
	start := time.Now()
	defer func() {
		metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}()

	msgType, msg, err := h.parse(connID, data)
	if err != nil {
		return
	}

	// register and ping are the only messages allowed before presence is
	// established.
	switch m := msg.(type) {
	case protocol.PingMsg:
		h.send(connID, protocol.TypePong, protocol.PongMsg{})
		return
	case protocol.RegisterMsg:
		h.handleRegister(connID, m)
		return
	}

	userID, ok := h.presence.UserOf(connID)
	if !ok {
		h.sendError(connID, "not_registered", "You must register first")
		return
	}

	switch m := msg.(type) {
	case protocol.FindMatchMsg:
		h.handleFindMatch(connID, userID)
	case protocol.SendMessageMsg:
		h.handleSendMessage(connID, userID, m)
	case protocol.TypingMsg:
		h.handleTyping(userID, m)
	case protocol.EndSessionMsg:
		h.handleEndSession(connID, userID)
	case protocol.SendFriendRequestMsg:
		h.handleSendFriendRequest(connID, userID, m)
	case protocol.AcceptFriendRequestMsg:
		h.handleAcceptFriendRequest(connID, userID, m)
	case protocol.RejectFriendRequestMsg:
		h.handleRejectFriendRequest(connID, userID, m)
	case protocol.GetFriendsMsg:
		h.handleGetFriends(connID, userID)
	case protocol.GetFriendRequestsMsg:
		h.handleGetFriendRequests(connID, userID)
	default:
		// ParseClientMessage only produces the types above; a new client
		// message type without a handler is a bug worth hearing about.
		log.Printf("[hub] no handler for type=%q conn=%s", msgType, connID)
		h.sendError(connID, "unknown_type", "Unknown message type")
	}
}

// parse decodes the frame and reports protocol errors back to the offending
// connection. The connection stays open either way.
func (h *Hub) parse(connID string, data []byte) (string, interface{}, error) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Printf("[hub] unknown message type=%q conn=%s", msgType, connID)
			h.sendError(connID, "unknown_type", "Unknown message type")
		} else {
			log.Printf("[hub] parse error conn=%s: %v", connID, err)
			h.sendError(connID, "invalid_format", "Invalid message format")
		}
		return "", nil, err
	}
	return msgType, msg, nil
}

// HandleDisconnect is the transport's close callback: it tears down
// presence, notifies and unpairs any active partner, and clears pool
// membership. Safe to call for connections that never registered.
func (h *Hub) HandleDisconnect(connID string) {
	h.limiter.Forget(connID)

	userID, ok := h.presence.Unregister(connID)
	if !ok {
		// Unknown or already-replaced connection; nothing to clean up.
		return
	}
	metrics.OnlineUsers.Set(float64(h.presence.OnlineCount()))

	// Under matchMu so a concurrent find_match cannot pick this user after
	// their pool entry is gone, nor pair them mid-cleanup.
	h.matchMu.Lock()
	s, inSession := h.sessions.SessionOf(userID)
	if inSession {
		h.sessions.EndSession(s.ID)
	}
	// Always safe to attempt, whether or not the user was waiting.
	h.pool.MarkUnavailable(userID)
	h.matchMu.Unlock()

	if inSession {
		if partnerConn, ok := h.presence.ConnOf(s.Partner(userID)); ok {
			h.send(partnerConn, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
		}
		metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))
	}
	metrics.AvailableUsers.Set(float64(h.pool.AvailableCount()))

	log.Printf("[hub] disconnect cleanup user=%s conn=%s", userID, connID)
}

// send marshals and delivers one server message, logging delivery failures.
// Delivery is best effort: a failed send is treated like an offline
// recipient, never propagated.
func (h *Hub) send(connID string, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[hub] failed to build %s message: %v", msgType, err)
		return
	}
	if err := h.sender.SendMessage(connID, data); err != nil {
		log.Printf("[hub] failed to send %s to conn=%s: %v", msgType, connID, err)
	}
}

// sendError reports an error condition to the offending connection only.
func (h *Hub) sendError(connID string, code string, message string) {
	h.send(connID, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
