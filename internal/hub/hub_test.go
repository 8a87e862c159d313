package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/driftchat/chat-server/internal/protocol"
)

// fakeSender records every frame written per connection so scenario tests
// can assert on delivery without live sockets.
type fakeSender struct {
	mu     sync.Mutex
	frames map[string][]map[string]interface{}
	closed []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{frames: make(map[string][]map[string]interface{})}
}

func (f *fakeSender) SendMessage(connID string, data []byte) error {
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("fakeSender: bad frame: %w", err)
	}
	f.mu.Lock()
	f.frames[connID] = append(f.frames[connID], decoded)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) CloseConnection(connID string) {
	f.mu.Lock()
	f.closed = append(f.closed, connID)
	f.mu.Unlock()
}

// ofType returns all frames of the given type delivered to the connection.
func (f *fakeSender) ofType(connID, msgType string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]interface{}
	for _, frame := range f.frames[connID] {
		if frame["type"] == msgType {
			out = append(out, frame)
		}
	}
	return out
}

// one asserts exactly one frame of the given type was delivered and returns it.
func (f *fakeSender) one(t *testing.T, connID, msgType string) map[string]interface{} {
	t.Helper()
	frames := f.ofType(connID, msgType)
	if len(frames) != 1 {
		t.Fatalf("conn %s: expected exactly 1 %q frame, got %d", connID, msgType, len(frames))
	}
	return frames[0]
}

func newTestHub() (*Hub, *fakeSender) {
	sender := newFakeSender()
	h := New()
	h.SetSender(sender)
	return h, sender
}

// register runs the register handshake for a user on a connection.
func register(t *testing.T, h *Hub, connID, userID string) {
	t.Helper()
	h.Dispatch(connID, []byte(fmt.Sprintf(
		`{"type":"register","userId":%q,"user":{"id":%q,"name":"name-%s"}}`,
		userID, userID, userID)))
}

// pair registers two users and matches them, returning the shared session id.
func pair(t *testing.T, h *Hub, s *fakeSender, connA, userA, connB, userB string) string {
	t.Helper()
	register(t, h, connA, userA)
	register(t, h, connB, userB)
	h.Dispatch(connA, []byte(`{"type":"find_match"}`))
	h.Dispatch(connB, []byte(`{"type":"find_match"}`))

	found := s.one(t, connA, protocol.TypeMatchFound)
	return found["sessionId"].(string)
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegister_RepliesWithCounts(t *testing.T) {
	h, s := newTestHub()

	register(t, h, "c1", "alice")

	frame := s.one(t, "c1", protocol.TypeRegistered)
	if frame["onlineCount"] != float64(1) {
		t.Errorf("onlineCount = %v, want 1", frame["onlineCount"])
	}
	if frame["availableCount"] != float64(0) {
		t.Errorf("availableCount = %v, want 0", frame["availableCount"])
	}
	if !h.Presence().IsOnline("alice") {
		t.Error("alice should be online after register")
	}
}

func TestRegister_MissingUserID(t *testing.T) {
	h, s := newTestHub()

	h.Dispatch("c1", []byte(`{"type":"register","user":{"name":"nobody"}}`))

	s.one(t, "c1", protocol.TypeError)
	if h.Presence().OnlineCount() != 0 {
		t.Error("a register without userId must not install presence")
	}
}

func TestRegister_ReconnectClosesStaleSocket(t *testing.T) {
	h, s := newTestHub()

	register(t, h, "c1", "alice")
	register(t, h, "c2", "alice")

	if len(s.closed) != 1 || s.closed[0] != "c1" {
		t.Fatalf("expected stale conn c1 to be closed, got %v", s.closed)
	}
	if connID, _ := h.Presence().ConnOf("alice"); connID != "c2" {
		t.Errorf("alice should be reachable via c2, got %s", connID)
	}

	// The transport will report the stale close; it must not tear down the
	// fresh mapping.
	h.HandleDisconnect("c1")
	if !h.Presence().IsOnline("alice") {
		t.Error("alice must stay online after the stale socket's close event")
	}
}

func TestDispatch_RequiresRegistration(t *testing.T) {
	h, s := newTestHub()

	h.Dispatch("c1", []byte(`{"type":"find_match"}`))

	frame := s.one(t, "c1", protocol.TypeError)
	if frame["code"] != "not_registered" {
		t.Errorf("error code = %v, want not_registered", frame["code"])
	}
}

// ---------------------------------------------------------------------------
// Protocol errors
// ---------------------------------------------------------------------------

func TestDispatch_InvalidJSON(t *testing.T) {
	h, s := newTestHub()

	h.Dispatch("c1", []byte(`{broken`))

	frame := s.one(t, "c1", protocol.TypeError)
	if frame["message"] != "Invalid message format" {
		t.Errorf("message = %v, want Invalid message format", frame["message"])
	}
}

func TestDispatch_UnknownType(t *testing.T) {
	h, s := newTestHub()

	h.Dispatch("c1", []byte(`{"type":"teleport"}`))

	frame := s.one(t, "c1", protocol.TypeError)
	if frame["message"] != "Unknown message type" {
		t.Errorf("message = %v, want Unknown message type", frame["message"])
	}
}

func TestDispatch_Ping(t *testing.T) {
	h, s := newTestHub()

	// Ping works even before registration.
	h.Dispatch("c1", []byte(`{"type":"ping"}`))

	s.one(t, "c1", protocol.TypePong)
}

// ---------------------------------------------------------------------------
// Matchmaking
// ---------------------------------------------------------------------------

func TestFindMatch_WaitsAlone(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")

	h.Dispatch("c1", []byte(`{"type":"find_match"}`))

	s.one(t, "c1", protocol.TypeWaiting)
	if !h.Pool().Contains("alice") {
		t.Error("alice should be waiting in the pool")
	}
}

func TestFindMatch_PairsTwoUsers(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")
	register(t, h, "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"find_match"}`))
	h.Dispatch("c2", []byte(`{"type":"find_match"}`))

	foundA := s.one(t, "c1", protocol.TypeMatchFound)
	foundB := s.one(t, "c2", protocol.TypeMatchFound)

	// Both sides share one session id and see each other's profile.
	if foundA["sessionId"] != foundB["sessionId"] {
		t.Errorf("session ids differ: %v vs %v", foundA["sessionId"], foundB["sessionId"])
	}
	partnerA := foundA["partner"].(map[string]interface{})
	partnerB := foundB["partner"].(map[string]interface{})
	if partnerA["id"] != "bob" {
		t.Errorf("alice's partner = %v, want bob", partnerA["id"])
	}
	if partnerB["id"] != "alice" {
		t.Errorf("bob's partner = %v, want alice", partnerB["id"])
	}

	// Both removed from the pool.
	if n := h.Pool().AvailableCount(); n != 0 {
		t.Errorf("AvailableCount() = %d after match, want 0", n)
	}
	// I1: neither waiting user is in a session, and vice versa.
	if !h.Sessions().InSession("alice") || !h.Sessions().InSession("bob") {
		t.Error("both users should be in the session")
	}
}

func TestFindMatch_RefusedWhileInSession(t *testing.T) {
	h, s := newTestHub()
	pair(t, h, s, "c1", "alice", "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"find_match"}`))

	frame := s.one(t, "c1", protocol.TypeError)
	if frame["code"] != "already_in_session" {
		t.Errorf("error code = %v, want already_in_session", frame["code"])
	}
	if h.Pool().Contains("alice") {
		t.Error("an in-session user must never enter the pool")
	}
}

// ---------------------------------------------------------------------------
// Messaging
// ---------------------------------------------------------------------------

func TestSendMessage_RelaysAndEchoes(t *testing.T) {
	h, s := newTestHub()
	pair(t, h, s, "c1", "alice", "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"send_message","content":"hi"}`))

	relayed := s.one(t, "c2", protocol.TypeMessage)
	if relayed["content"] != "hi" {
		t.Errorf("relayed content = %v, want hi", relayed["content"])
	}
	if relayed["senderId"] != "alice" {
		t.Errorf("senderId = %v, want alice", relayed["senderId"])
	}
	if _, ok := relayed["timestamp"].(float64); !ok {
		t.Errorf("timestamp missing or not numeric: %v", relayed["timestamp"])
	}

	echo := s.one(t, "c1", protocol.TypeMessageSent)
	if echo["content"] != "hi" {
		t.Errorf("echoed content = %v, want hi", echo["content"])
	}
}

func TestSendMessage_RequiresSession(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")

	h.Dispatch("c1", []byte(`{"type":"send_message","content":"hi"}`))

	frame := s.one(t, "c1", protocol.TypeError)
	if frame["code"] != "no_session" {
		t.Errorf("error code = %v, want no_session", frame["code"])
	}
}

func TestSendMessage_EmptyContentBlocked(t *testing.T) {
	h, s := newTestHub()
	pair(t, h, s, "c1", "alice", "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"send_message","content":""}`))

	s.one(t, "c1", protocol.TypeError)
	if frames := s.ofType("c2", protocol.TypeMessage); len(frames) != 0 {
		t.Errorf("blocked message must not reach the partner, got %d frames", len(frames))
	}
}

func TestTyping_ForwardedToPartnerOnly(t *testing.T) {
	h, s := newTestHub()
	pair(t, h, s, "c1", "alice", "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"typing","isTyping":true}`))

	frame := s.one(t, "c2", protocol.TypePartnerTyping)
	if frame["isTyping"] != true {
		t.Errorf("isTyping = %v, want true", frame["isTyping"])
	}
	// No acknowledgment to the sender.
	if frames := s.ofType("c1", protocol.TypePartnerTyping); len(frames) != 0 {
		t.Error("typing must not be echoed to the sender")
	}
}

func TestTyping_WithoutSessionIsSilent(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")

	h.Dispatch("c1", []byte(`{"type":"typing","isTyping":true}`))

	if frames := s.ofType("c1", protocol.TypeError); len(frames) != 0 {
		t.Error("typing without a session is dropped, not an error")
	}
}

// ---------------------------------------------------------------------------
// Session end and disconnect cascade
// ---------------------------------------------------------------------------

func TestEndSession_NotifiesBothSides(t *testing.T) {
	h, s := newTestHub()
	pair(t, h, s, "c1", "alice", "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"end_session"}`))

	s.one(t, "c1", protocol.TypeSessionEnded)
	s.one(t, "c2", protocol.TypeSessionEnded)
	if _, ok := h.Sessions().SessionOf("alice"); ok {
		t.Error("alice's session should be gone")
	}
	if _, ok := h.Sessions().SessionOf("bob"); ok {
		t.Error("bob's session should be gone")
	}

	// Ending again is a precondition error, not a crash.
	h.Dispatch("c1", []byte(`{"type":"end_session"}`))
	frame := s.one(t, "c1", protocol.TypeError)
	if frame["code"] != "no_session" {
		t.Errorf("error code = %v, want no_session", frame["code"])
	}
}

func TestDisconnect_CascadeNotifiesPartner(t *testing.T) {
	h, s := newTestHub()
	pair(t, h, s, "c1", "alice", "c2", "bob")

	h.HandleDisconnect("c1")

	s.one(t, "c2", protocol.TypePartnerDisconnected)
	if _, ok := h.Sessions().SessionOf("bob"); ok {
		t.Error("bob's session should be gone after alice disconnects")
	}
	if h.Presence().IsOnline("alice") {
		t.Error("alice should be offline")
	}
	if h.Pool().Contains("alice") {
		t.Error("alice should not linger in the pool")
	}
}

func TestDisconnect_WhileWaitingLeavesPool(t *testing.T) {
	h, _ := newTestHub()
	register(t, h, "c1", "alice")
	h.Dispatch("c1", []byte(`{"type":"find_match"}`))

	h.HandleDisconnect("c1")

	if h.Pool().Contains("alice") {
		t.Error("disconnected user must be removed from the pool")
	}
	if n := h.Pool().AvailableCount(); n != 0 {
		t.Errorf("AvailableCount() = %d, want 0", n)
	}
}

func TestDisconnect_UnregisteredConnectionIsNoop(t *testing.T) {
	h, _ := newTestHub()

	// Must not panic or touch state.
	h.HandleDisconnect("never-registered")
}

// ---------------------------------------------------------------------------
// Friend graph over the wire
// ---------------------------------------------------------------------------

func TestFriendRequestFlow(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")
	register(t, h, "c2", "bob")

	// Alice sends a request; Bob gets a live push.
	h.Dispatch("c1", []byte(`{"type":"send_friend_request","toUserId":"bob"}`))

	sent := s.one(t, "c1", protocol.TypeFriendRequestSent)
	request := sent["request"].(map[string]interface{})
	requestID := request["id"].(string)
	if request["fromUserId"] != "alice" || request["toUserId"] != "bob" {
		t.Errorf("unexpected request endpoints: %v", request)
	}

	received := s.one(t, "c2", protocol.TypeFriendRequestReceived)
	from := received["from"].(map[string]interface{})
	if from["id"] != "alice" {
		t.Errorf("push sender = %v, want alice", from["id"])
	}

	// Bob lists pending requests.
	h.Dispatch("c2", []byte(`{"type":"get_friend_requests"}`))
	pending := s.one(t, "c2", protocol.TypeFriendRequests)
	if reqs := pending["requests"].([]interface{}); len(reqs) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(reqs))
	}

	// Bob accepts; both sides are notified and become friends.
	h.Dispatch("c2", []byte(fmt.Sprintf(`{"type":"accept_friend_request","requestId":%q}`, requestID)))

	s.one(t, "c2", protocol.TypeFriendRequestAccepted)
	s.one(t, "c1", protocol.TypeFriendRequestAccepted)
	if !h.Friends().AreFriends("alice", "bob") {
		t.Fatal("accept should create the friendship")
	}

	h.Dispatch("c1", []byte(`{"type":"get_friends"}`))
	list := s.one(t, "c1", protocol.TypeFriendsList)
	friendsOfAlice := list["friends"].([]interface{})
	if len(friendsOfAlice) != 1 {
		t.Fatalf("expected 1 friend, got %d", len(friendsOfAlice))
	}
	if friendsOfAlice[0].(map[string]interface{})["id"] != "bob" {
		t.Errorf("alice's friend = %v, want bob", friendsOfAlice[0])
	}

	// A second accept is refused and does not duplicate the edge.
	h.Dispatch("c2", []byte(fmt.Sprintf(`{"type":"accept_friend_request","requestId":%q}`, requestID)))
	errFrame := s.one(t, "c2", protocol.TypeError)
	if errFrame["code"] != "request_resolved" {
		t.Errorf("error code = %v, want request_resolved", errFrame["code"])
	}
	if n := len(h.Friends().FriendsOf("bob")); n != 1 {
		t.Errorf("bob has %d friends after double accept, want 1", n)
	}
}

func TestAcceptFriendRequest_OnlyRecipientMayAccept(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")
	register(t, h, "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"send_friend_request","toUserId":"bob"}`))
	sent := s.one(t, "c1", protocol.TypeFriendRequestSent)
	requestID := sent["request"].(map[string]interface{})["id"].(string)

	// Alice cannot accept her own outgoing request.
	h.Dispatch("c1", []byte(fmt.Sprintf(`{"type":"accept_friend_request","requestId":%q}`, requestID)))

	frame := s.one(t, "c1", protocol.TypeError)
	if frame["code"] != "request_not_found" {
		t.Errorf("error code = %v, want request_not_found", frame["code"])
	}
	if h.Friends().AreFriends("alice", "bob") {
		t.Error("no friendship should exist")
	}
}

func TestRejectFriendRequest(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")
	register(t, h, "c2", "bob")

	h.Dispatch("c1", []byte(`{"type":"send_friend_request","toUserId":"bob"}`))
	sent := s.one(t, "c1", protocol.TypeFriendRequestSent)
	requestID := sent["request"].(map[string]interface{})["id"].(string)

	h.Dispatch("c2", []byte(fmt.Sprintf(`{"type":"reject_friend_request","requestId":%q}`, requestID)))

	s.one(t, "c2", protocol.TypeFriendRequestRejected)
	s.one(t, "c1", protocol.TypeFriendRequestRejected)
	if h.Friends().AreFriends("alice", "bob") {
		t.Error("rejection must not create a friendship")
	}
}

func TestSendFriendRequest_OfflineRecipient(t *testing.T) {
	h, s := newTestHub()
	register(t, h, "c1", "alice")

	// carol has never connected; the request succeeds, the push is skipped.
	h.Dispatch("c1", []byte(`{"type":"send_friend_request","toUserId":"carol"}`))

	s.one(t, "c1", protocol.TypeFriendRequestSent)
	if frames := s.ofType("c1", protocol.TypeError); len(frames) != 0 {
		t.Error("an offline recipient is not an error")
	}
}
