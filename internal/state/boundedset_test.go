package state

import "testing"

func TestBoundedSet_ClearsAtCapacity(t *testing.T) {
	s := NewBoundedSet(2)
	s.Add("a")
	s.Add("b")
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	if !s.Add("c") {
		t.Fatalf("c should be new")
	}
	if s.Len() != 1 || !s.Contains("c") || s.Contains("a") {
		t.Fatalf("expected clear then insert, len=%d", s.Len())
	}
}

func TestBoundedSet_DuplicateDoesNotEvict(t *testing.T) {
	s := NewBoundedSet(2)
	s.Add("a")
	s.Add("b")
	if s.Add("a") {
		t.Fatalf("duplicate reported new")
	}
	if s.Len() != 2 {
		t.Fatalf("duplicate insert must not clear")
	}
}

func TestNewBoundedSet_CoercesCapacity(t *testing.T) {
	s := NewBoundedSet(0)
	s.Add("a")
	s.Add("b")
	if s.Len() != 1 {
		t.Fatalf("len = %d; want 1", s.Len())
	}
}

func TestKeyedMutex_UnlockIdempotent(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("x")
	unlock()
	unlock()
	if k.Len() != 0 {
		t.Fatalf("len = %d", k.Len())
	}
}
