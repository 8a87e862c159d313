package hub

import (
	"log"
	"time"

	"github.com/driftchat/chat-server/internal/metrics"
	"github.com/driftchat/chat-server/internal/protocol"
	"github.com/driftchat/chat-server/internal/ratelimit"
)

// handleRegister installs the user <-> connection mapping, displacing any
// stale socket from a previous connection of the same user, and replies with
// the current counts.
func (h *Hub) handleRegister(connID string, m protocol.RegisterMsg) {
	if m.UserID == "" {
		h.sendError(connID, "invalid_register", "userId is required")
		return
	}

	profile := m.User
	if profile.ID == "" {
		profile.ID = m.UserID
	}

	staleConnID, replaced := h.presence.Register(m.UserID, profile, connID)
	if replaced {
		log.Printf("[hub] user=%s reconnected, closing stale conn=%s", m.UserID, staleConnID)
		h.sender.CloseConnection(staleConnID)
	}
	metrics.OnlineUsers.Set(float64(h.presence.OnlineCount()))

	h.send(connID, protocol.TypeRegistered, protocol.RegisteredMsg{
		OnlineCount:    h.presence.OnlineCount(),
		AvailableCount: h.pool.AvailableCount(),
	})
	log.Printf("[hub] registered user=%s conn=%s (online=%d)", m.UserID, connID, h.presence.OnlineCount())
}

// handleFindMatch marks the caller available and tries to pair them. The
// whole mark + pick + create sequence runs under matchMu so concurrent
// callers cannot both claim the same partner.
func (h *Hub) handleFindMatch(connID string, userID string) {
	if !h.limiter.Allow(connID, ratelimit.RuleMatch) {
		h.sendError(connID, "rate_limited", "Too many match requests, slow down")
		return
	}

	h.matchMu.Lock()
	if h.sessions.InSession(userID) {
		h.matchMu.Unlock()
		h.sendError(connID, "already_in_session", "You are already in a chat session")
		return
	}

	h.pool.MarkAvailable(userID)
	partnerID, found := h.pool.PickPartner(userID)
	if !found {
		h.matchMu.Unlock()
		metrics.AvailableUsers.Set(float64(h.pool.AvailableCount()))
		h.send(connID, protocol.TypeWaiting, protocol.WaitingMsg{
			Message: "Waiting for a partner...",
		})
		return
	}

	// CreateSession removes both users from the pool atomically.
	session := h.sessions.CreateSession(userID, partnerID)
	h.matchMu.Unlock()

	metrics.MatchesTotal.Inc()
	metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))
	metrics.AvailableUsers.Set(float64(h.pool.AvailableCount()))

	partnerProfile, _ := h.presence.ProfileOf(partnerID)
	callerProfile, _ := h.presence.ProfileOf(userID)

	h.send(connID, protocol.TypeMatchFound, protocol.MatchFoundMsg{
		SessionID: session.ID,
		Partner:   partnerProfile,
	})
	if partnerConn, ok := h.presence.ConnOf(partnerID); ok {
		h.send(partnerConn, protocol.TypeMatchFound, protocol.MatchFoundMsg{
			SessionID: session.ID,
			Partner:   callerProfile,
		})
	}
	log.Printf("[hub] matched user=%s with user=%s session=%s", userID, partnerID, session.ID)
}

// handleSendMessage relays a chat message to the caller's partner and echoes
// a delivery confirmation back to the caller.
func (h *Hub) handleSendMessage(connID string, userID string, m protocol.SendMessageMsg) {
	if !h.limiter.Allow(connID, ratelimit.RuleMessage) {
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		h.sendError(connID, "rate_limited", "Too many messages, slow down")
		return
	}

	if err := ValidateContent(m.Content); err != nil {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		h.sendError(connID, "invalid_message", err.Error())
		return
	}

	session, ok := h.sessions.SessionOf(userID)
	if !ok {
		h.sendError(connID, "no_session", "You are not in a chat session")
		return
	}

	ts := time.Now().UnixMilli()
	if partnerConn, ok := h.presence.ConnOf(session.Partner(userID)); ok {
		h.send(partnerConn, protocol.TypeMessage, protocol.MessageMsg{
			Content:   m.Content,
			SenderID:  userID,
			Timestamp: ts,
		})
	}
	h.send(connID, protocol.TypeMessageSent, protocol.MessageSentMsg{
		Content:   m.Content,
		SenderID:  userID,
		Timestamp: ts,
	})
	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
}

// handleTyping forwards the typing indicator to the partner only; the sender
// gets no acknowledgment.
func (h *Hub) handleTyping(userID string, m protocol.TypingMsg) {
	session, ok := h.sessions.SessionOf(userID)
	if !ok {
		return
	}
	if partnerConn, ok := h.presence.ConnOf(session.Partner(userID)); ok {
		h.send(partnerConn, protocol.TypePartnerTyping, protocol.PartnerTypingMsg{
			IsTyping: m.IsTyping,
		})
	}
}

// handleEndSession ends the caller's session and notifies both members.
func (h *Hub) handleEndSession(connID string, userID string) {
	session, ok := h.sessions.SessionOf(userID)
	if !ok {
		h.sendError(connID, "no_session", "You are not in a chat session")
		return
	}

	if partnerConn, ok := h.presence.ConnOf(session.Partner(userID)); ok {
		h.send(partnerConn, protocol.TypeSessionEnded, protocol.SessionEndedMsg{})
	}
	h.sessions.EndSession(session.ID)
	metrics.ActiveSessions.Set(float64(h.sessions.ActiveCount()))

	h.send(connID, protocol.TypeSessionEnded, protocol.SessionEndedMsg{})
	log.Printf("[hub] session %s ended by user=%s", session.ID, userID)
}

// handleSendFriendRequest creates a pending request and pushes a live
// notification to the recipient when they are online. An offline recipient
// simply misses the push; there is no persisted inbox.
func (h *Hub) handleSendFriendRequest(connID string, userID string, m protocol.SendFriendRequestMsg) {
	if m.ToUserID == "" {
		h.sendError(connID, "invalid_request", "toUserId is required")
		return
	}
	if !h.limiter.Allow(connID, ratelimit.RuleFriend) {
		h.sendError(connID, "rate_limited", "Too many friend requests, slow down")
		return
	}

	req, err := h.friends.CreateRequest(userID, m.ToUserID)
	if err != nil {
		h.sendError(connID, "friend_request_failed", err.Error())
		return
	}
	metrics.FriendRequestsTotal.WithLabelValues("sent").Inc()

	h.send(connID, protocol.TypeFriendRequestSent, protocol.FriendRequestSentMsg{Request: req})

	if recipientConn, ok := h.presence.ConnOf(m.ToUserID); ok {
		fromProfile, _ := h.presence.ProfileOf(userID)
		h.send(recipientConn, protocol.TypeFriendRequestReceived, protocol.FriendRequestReceivedMsg{
			Request: req,
			From:    fromProfile,
		})
	}
}

// handleAcceptFriendRequest transitions the request to accepted, creating
// the friendship edge, and notifies the original requester when online.
func (h *Hub) handleAcceptFriendRequest(connID string, userID string, m protocol.AcceptFriendRequestMsg) {
	req, ok := h.friends.Request(m.RequestID)
	if !ok || req.ToUserID != userID {
		h.sendError(connID, "request_not_found", "Friend request not found")
		return
	}

	req, ok = h.friends.Accept(m.RequestID)
	if !ok {
		h.sendError(connID, "request_resolved", "Friend request already handled")
		return
	}
	metrics.FriendRequestsTotal.WithLabelValues("accepted").Inc()

	h.send(connID, protocol.TypeFriendRequestAccepted, protocol.FriendRequestAcceptedMsg{
		RequestID: req.ID,
	})
	if requesterConn, ok := h.presence.ConnOf(req.FromUserID); ok {
		h.send(requesterConn, protocol.TypeFriendRequestAccepted, protocol.FriendRequestAcceptedMsg{
			RequestID: req.ID,
		})
	}
	log.Printf("[hub] friend request %s accepted: %s <-> %s", req.ID, req.FromUserID, req.ToUserID)
}

// handleRejectFriendRequest transitions the request to rejected and notifies
// the original requester when online.
func (h *Hub) handleRejectFriendRequest(connID string, userID string, m protocol.RejectFriendRequestMsg) {
	req, ok := h.friends.Request(m.RequestID)
	if !ok || req.ToUserID != userID {
		h.sendError(connID, "request_not_found", "Friend request not found")
		return
	}

	req, ok = h.friends.Reject(m.RequestID)
	if !ok {
		h.sendError(connID, "request_resolved", "Friend request already handled")
		return
	}
	metrics.FriendRequestsTotal.WithLabelValues("rejected").Inc()

	h.send(connID, protocol.TypeFriendRequestRejected, protocol.FriendRequestRejectedMsg{
		RequestID: req.ID,
	})
	if requesterConn, ok := h.presence.ConnOf(req.FromUserID); ok {
		h.send(requesterConn, protocol.TypeFriendRequestRejected, protocol.FriendRequestRejectedMsg{
			RequestID: req.ID,
		})
	}
}

// handleGetFriends replies with the caller's resolved friends list.
func (h *Hub) handleGetFriends(connID string, userID string) {
	h.send(connID, protocol.TypeFriendsList, protocol.FriendsListMsg{
		Friends: h.friends.FriendsOf(userID),
	})
}

// handleGetFriendRequests replies with the caller's pending requests.
func (h *Hub) handleGetFriendRequests(connID string, userID string) {
	h.send(connID, protocol.TypeFriendRequests, protocol.FriendRequestsMsg{
		Requests: h.friends.PendingRequestsFor(userID),
	})
}
