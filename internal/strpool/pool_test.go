package strpool

import "testing"

func TestAcquireReturnsCanonicalPointer(t *testing.T) {
	p := New()
	a := p.Acquire("room:general")
	b := p.Acquire("room:general")
	if a != b {
		t.Fatal("two acquisitions of equal bytes did not yield the same pointer")
	}
	if p.Refcount(a) != 2 {
		t.Fatalf("refcount = %d, want 2", p.Refcount(a))
	}
}

func TestReleaseFreesAtZero(t *testing.T) {
	p := New()
	e := p.Acquire("x")
	p.Acquire("x")
	p.Release(e)
	if p.Refcount(e) != 1 {
		t.Fatalf("refcount = %d, want 1", p.Refcount(e))
	}
	p.Release(e)
	if _, ok := p.Lookup("x"); ok {
		t.Fatal("entry should have been freed at refcount 0")
	}
}

func TestLookupDoesNotAffectRefcount(t *testing.T) {
	p := New()
	e := p.Acquire("x")
	if _, ok := p.Lookup("x"); !ok {
		t.Fatal("expected lookup to find entry")
	}
	if p.Refcount(e) != 1 {
		t.Fatalf("refcount = %d, want 1 (lookup must not bump it)", p.Refcount(e))
	}
}

func TestDistinctKeysDoNotCollideIdentity(t *testing.T) {
	p := New()
	a := p.Acquire("alpha")
	b := p.Acquire("beta")
	if a == b {
		t.Fatal("distinct keys must not share a canonical pointer")
	}
}
