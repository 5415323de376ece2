package activity

import "sync"

// inflightSet tracks operation keys currently being processed so naturally
// duplicated actions (double-click leave, concurrent retries) collapse into
// one effective operation. It is a cache, never a correctness-critical
// structure; the janitor clears it wholesale if it grows past a sanity bound.
type inflightSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{keys: make(map[string]struct{})}
}

// begin marks the key in flight, reporting false when it already was.
func (s *inflightSet) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; exists {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// end releases the key. Callers release in a defer so the marker clears on
// every exit path.
func (s *inflightSet) end(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

func (s *inflightSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *inflightSet) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := len(s.keys)
	s.keys = make(map[string]struct{})
	return cleared
}
