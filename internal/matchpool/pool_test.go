package matchpool

import (
	"testing"
)

// stubChecker reports a fixed set of in-session users.
type stubChecker struct {
	inSession map[string]bool
}

func (s *stubChecker) InSession(userID string) bool {
	return s.inSession[userID]
}

func TestMarkAvailable(t *testing.T) {
	p := NewPool(nil)

	p.MarkAvailable("u1")
	p.MarkAvailable("u1") // idempotent

	if n := p.AvailableCount(); n != 1 {
		t.Errorf("AvailableCount() = %d, want 1", n)
	}
	if !p.Contains("u1") {
		t.Error("expected u1 in the pool")
	}
}

func TestMarkAvailable_RefusesInSessionUser(t *testing.T) {
	checker := &stubChecker{inSession: map[string]bool{"u1": true}}
	p := NewPool(checker)

	p.MarkAvailable("u1")

	if p.Contains("u1") {
		t.Error("in-session user must not enter the available set")
	}
}

func TestMarkUnavailable(t *testing.T) {
	p := NewPool(nil)
	p.MarkAvailable("u1")

	p.MarkUnavailable("u1")
	p.MarkUnavailable("u1") // idempotent

	if p.Contains("u1") {
		t.Error("u1 should have been removed")
	}
	if n := p.AvailableCount(); n != 0 {
		t.Errorf("AvailableCount() = %d, want 0", n)
	}
}

func TestPickPartner_ExcludesSelf(t *testing.T) {
	p := NewPool(nil)
	p.MarkAvailable("u1")
	p.MarkAvailable("u2")

	for i := 0; i < 50; i++ {
		partner, ok := p.PickPartner("u1")
		if !ok {
			t.Fatal("expected a partner")
		}
		if partner == "u1" {
			t.Fatal("PickPartner returned the excluded user")
		}
		if partner != "u2" {
			t.Fatalf("PickPartner returned %q, not a pool member", partner)
		}
	}
}

func TestPickPartner_EmptyPool(t *testing.T) {
	p := NewPool(nil)

	if _, ok := p.PickPartner("u1"); ok {
		t.Error("expected no partner from an empty pool")
	}
}

func TestPickPartner_OnlySelfAvailable(t *testing.T) {
	p := NewPool(nil)
	p.MarkAvailable("u1")

	if _, ok := p.PickPartner("u1"); ok {
		t.Error("expected no partner when only the caller is available")
	}
}

func TestPickPartner_CoversAllCandidates(t *testing.T) {
	p := NewPool(nil)
	p.MarkAvailable("u1")
	p.MarkAvailable("u2")
	p.MarkAvailable("u3")
	p.MarkAvailable("u4")

	// Uniform selection over {u2,u3,u4} should hit every candidate within a
	// few hundred draws; the chance of missing one is (2/3)^200.
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		partner, ok := p.PickPartner("u1")
		if !ok {
			t.Fatal("expected a partner")
		}
		if partner == "u1" {
			t.Fatal("PickPartner returned the excluded user")
		}
		seen[partner] = true
	}

	for _, want := range []string{"u2", "u3", "u4"} {
		if !seen[want] {
			t.Errorf("candidate %s was never selected in 200 draws", want)
		}
	}
}
