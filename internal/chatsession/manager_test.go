package chatsession

import (
	"sync"
	"testing"
)

// recordingPool records MarkUnavailable calls.
type recordingPool struct {
	mu      sync.Mutex
	removed []string
}

func (p *recordingPool) MarkUnavailable(userID string) {
	p.mu.Lock()
	p.removed = append(p.removed, userID)
	p.mu.Unlock()
}

func TestCreateSession(t *testing.T) {
	pool := &recordingPool{}
	m := NewManager()
	m.SetPool(pool)

	s := m.CreateSession("alice", "bob")

	if s.ID == "" {
		t.Fatal("expected a generated session id")
	}
	if s.User1ID != "alice" || s.User2ID != "bob" {
		t.Errorf("unexpected members: %s, %s", s.User1ID, s.User2ID)
	}
	if s.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}

	// Both index entries point at the same record.
	sa, ok := m.SessionOf("alice")
	if !ok || sa != s {
		t.Errorf("SessionOf(alice) = %v, %v; want the created session", sa, ok)
	}
	sb, ok := m.SessionOf("bob")
	if !ok || sb != s {
		t.Errorf("SessionOf(bob) = %v, %v; want the created session", sb, ok)
	}

	// Both users removed from the matchmaking pool.
	if len(pool.removed) != 2 {
		t.Fatalf("expected 2 pool removals, got %v", pool.removed)
	}
	if n := m.ActiveCount(); n != 1 {
		t.Errorf("ActiveCount() = %d, want 1", n)
	}
}

func TestCreateSession_PanicsOnUserAlreadyInSession(t *testing.T) {
	m := NewManager()
	m.CreateSession("alice", "bob")

	defer func() {
		if recover() == nil {
			t.Error("expected panic when pairing a user already in a session")
		}
	}()
	m.CreateSession("alice", "carol")
}

func TestEndSession(t *testing.T) {
	m := NewManager()
	s := m.CreateSession("alice", "bob")

	if !m.EndSession(s.ID) {
		t.Fatal("expected EndSession to report true on first call")
	}
	if _, ok := m.SessionOf("alice"); ok {
		t.Error("SessionOf(alice) should be absent after end")
	}
	if _, ok := m.SessionOf("bob"); ok {
		t.Error("SessionOf(bob) should be absent after end")
	}
	if n := m.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount() = %d, want 0", n)
	}

	// Double end is a silent no-op: disconnect cleanup and an explicit end
	// request can race for the same session.
	if m.EndSession(s.ID) {
		t.Error("second EndSession should be a no-op")
	}
}

func TestEndSession_UnknownIDIsNoop(t *testing.T) {
	m := NewManager()

	if m.EndSession("never-existed") {
		t.Error("ending an unknown session should report false")
	}
}

func TestInSession(t *testing.T) {
	m := NewManager()
	s := m.CreateSession("alice", "bob")

	if !m.InSession("alice") || !m.InSession("bob") {
		t.Error("both members should be in session")
	}
	if m.InSession("carol") {
		t.Error("carol should not be in session")
	}

	m.EndSession(s.ID)
	if m.InSession("alice") {
		t.Error("alice should be free after session end")
	}
}

func TestSessionPartner(t *testing.T) {
	s := &Session{ID: "s1", User1ID: "alice", User2ID: "bob"}

	if got := s.Partner("alice"); got != "bob" {
		t.Errorf("Partner(alice) = %q, want bob", got)
	}
	if got := s.Partner("bob"); got != "alice" {
		t.Errorf("Partner(bob) = %q, want alice", got)
	}
	if got := s.Partner("carol"); got != "" {
		t.Errorf("Partner(carol) = %q, want empty", got)
	}
	if !s.IsParticipant("alice") || s.IsParticipant("carol") {
		t.Error("IsParticipant membership check failed")
	}
}
