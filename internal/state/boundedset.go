package state

import "sync"

// BoundedSet is an insert-only string set with a crude capacity bound: when an
// insert would grow it past capacity the set is cleared first. This
// approximates an LRU at a fraction of the bookkeeping; a key evicted this way
// may be reported as unseen again.
//
// This type is safe for concurrent use.
type BoundedSet struct {
	mu       sync.Mutex
	capacity int
	items    map[string]struct{}
}

// NewBoundedSet returns a set holding at most capacity keys. Values <= 0 are
// coerced to 1.
func NewBoundedSet(capacity int) *BoundedSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &BoundedSet{capacity: capacity, items: make(map[string]struct{})}
}

// Add inserts key and reports whether it was newly added.
func (s *BoundedSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(key)
}

func (s *BoundedSet) addLocked(key string) bool {
	if _, ok := s.items[key]; ok {
		return false
	}
	if len(s.items) >= s.capacity {
		s.items = make(map[string]struct{})
	}
	s.items[key] = struct{}{}
	return true
}

// Contains reports whether key is present.
func (s *BoundedSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Len returns the current number of keys.
func (s *BoundedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
