// Package protocol defines the WebSocket message types and structures
// exchanged between the client and server. All messages are JSON objects
// carrying a "type" discriminator; payload decoding is deferred until the
// type is known.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRegister            = "register"
	TypeFindMatch           = "find_match"
	TypeSendMessage         = "send_message"
	TypeTyping              = "typing"
	TypeEndSession          = "end_session"
	TypeSendFriendRequest   = "send_friend_request"
	TypeAcceptFriendRequest = "accept_friend_request"
	TypeRejectFriendRequest = "reject_friend_request"
	TypeGetFriends          = "get_friends"
	TypeGetFriendRequests   = "get_friend_requests"
	TypePing                = "ping"
)

// Server -> Client message types.
const (
	TypeRegistered            = "registered"
	TypeMatchFound            = "match_found"
	TypeWaiting               = "waiting"
	TypeMessage               = "message"
	TypeMessageSent           = "message_sent"
	TypePartnerTyping         = "partner_typing"
	TypeSessionEnded          = "session_ended"
	TypePartnerDisconnected   = "partner_disconnected"
	TypeFriendRequestSent     = "friend_request_sent"
	TypeFriendRequestReceived = "friend_request_received"
	TypeFriendRequestAccepted = "friend_request_accepted"
	TypeFriendRequestRejected = "friend_request_rejected"
	TypeFriendsList           = "friends_list"
	TypeFriendRequests        = "friend_requests"
	TypeError                 = "error"
	TypePong                  = "pong"
)

// ErrUnknownType is returned by ParseClientMessage when the envelope carries
// a type string no client message is registered for. Callers use it to
// distinguish an unknown type from a malformed payload.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ---------------------------------------------------------------------------
// Shared wire structures
// ---------------------------------------------------------------------------

// Profile is the externally issued user identity. Only ID is meaningful to
// the server; the remaining fields are passed through to peers untouched.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image"`
}

// FriendRequest status values. A request transitions away from pending
// exactly once and is never re-opened.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// FriendRequest is a friend request record as it appears on the wire.
type FriendRequest struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"fromUserId"`
	ToUserID   string    `json:"toUserId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// RegisterMsg installs the caller's identity. It must be the first message on
// a connection; everything else is rejected until presence is established.
type RegisterMsg struct {
	Type   string  `json:"type"`
	UserID string  `json:"userId"`
	User   Profile `json:"user"`
}

// FindMatchMsg asks to be paired with another waiting user.
type FindMatchMsg struct {
	Type string `json:"type"`
}

// SendMessageMsg carries a chat message for the caller's active session.
type SendMessageMsg struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// TypingMsg signals whether the caller is currently typing.
type TypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

// EndSessionMsg ends the caller's active session.
type EndSessionMsg struct {
	Type string `json:"type"`
}

// SendFriendRequestMsg creates a friend request addressed to another user.
type SendFriendRequestMsg struct {
	Type     string `json:"type"`
	ToUserID string `json:"toUserId"`
}

// AcceptFriendRequestMsg accepts a pending friend request by id.
type AcceptFriendRequestMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// RejectFriendRequestMsg rejects a pending friend request by id.
type RejectFriendRequestMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// GetFriendsMsg requests the caller's friends list.
type GetFriendsMsg struct {
	Type string `json:"type"`
}

// GetFriendRequestsMsg requests the caller's pending friend requests.
type GetFriendRequestsMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// RegisteredMsg confirms presence registration and reports current counts.
type RegisteredMsg struct {
	Type           string `json:"type"`
	OnlineCount    int    `json:"onlineCount"`
	AvailableCount int    `json:"availableCount"`
}

// MatchFoundMsg announces a new session; sent to both members, each carrying
// the other's profile.
type MatchFoundMsg struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Partner   Profile `json:"partner"`
}

// WaitingMsg tells the caller no partner is available yet.
type WaitingMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MessageMsg relays a chat message to the partner.
type MessageMsg struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SenderID  string `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
}

// MessageSentMsg echoes a delivered chat message back to its sender.
type MessageSentMsg struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SenderID  string `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
}

// PartnerTypingMsg relays the partner's typing indicator.
type PartnerTypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

// SessionEndedMsg tells a session member their session is over.
type SessionEndedMsg struct {
	Type string `json:"type"`
}

// PartnerDisconnectedMsg tells the remaining member that the partner's
// connection dropped.
type PartnerDisconnectedMsg struct {
	Type string `json:"type"`
}

// FriendRequestSentMsg confirms a created friend request to its sender.
type FriendRequestSentMsg struct {
	Type    string        `json:"type"`
	Request FriendRequest `json:"request"`
}

// FriendRequestReceivedMsg is the live push to an online recipient of a new
// friend request, including the sender's cached profile.
type FriendRequestReceivedMsg struct {
	Type    string        `json:"type"`
	Request FriendRequest `json:"request"`
	From    Profile       `json:"from"`
}

// FriendRequestAcceptedMsg reports an accepted request. Sent to the accepter
// as the reply and pushed to the original requester when online.
type FriendRequestAcceptedMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// FriendRequestRejectedMsg reports a rejected request. Sent to the rejecter
// as the reply and pushed to the original requester when online.
type FriendRequestRejectedMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
}

// FriendsListMsg carries the caller's resolved friends.
type FriendsListMsg struct {
	Type    string    `json:"type"`
	Friends []Profile `json:"friends"`
}

// FriendRequestsMsg carries the caller's pending incoming requests.
type FriendRequestsMsg struct {
	Type     string          `json:"type"`
	Requests []FriendRequest `json:"requests"`
}

// ErrorMsg communicates an error condition to the offending connection only.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered. Unknown types return an error wrapping ErrUnknownType so the
// dispatcher can report them separately from malformed payloads.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRegister:
		var m RegisterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFindMatch:
		var m FindMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEndSession:
		var m EndSessionMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendFriendRequest:
		var m SendFriendRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAcceptFriendRequest:
		var m AcceptFriendRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRejectFriendRequest:
		var m RejectFriendRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetFriends:
		var m GetFriendsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeGetFriendRequests:
		var m GetFriendRequestsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key so that the
// Server*Msg structs never need their Type field populated by hand.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
