package state

import "sync"

// Store is an in-memory map of per-key values guarded for concurrent use.
type Store[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	locks *KeyedMutex[K]
}

// NewStore constructs an empty Store.
func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		items: make(map[K]V),
		locks: NewKeyedMutex[K](),
	}
}

// Get returns the value stored for key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Has reports whether key has a value.
func (s *Store[K, V]) Has(key K) bool {
	_, ok := s.Get(key)
	return ok
}

// Put stores v under key, replacing any previous value.
func (s *Store[K, V]) Put(key K, v V) {
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
}

// Delete removes key and reports whether it was present.
func (s *Store[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// Len returns the number of stored keys.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// WithLock runs fn while holding the per-key lock. Get, Put and Delete stay
// usable inside fn; other WithLock calls for the same key wait.
func (s *Store[K, V]) WithLock(key K, fn func()) {
	unlock := s.locks.Lock(key)
	defer unlock()
	fn()
}

// Update replaces the value for key with the result of fn under the per-key
// lock. Returning keep=false removes the key.
func (s *Store[K, V]) Update(key K, fn func(cur V, ok bool) (next V, keep bool)) {
	s.WithLock(key, func() {
		cur, ok := s.Get(key)
		next, keep := fn(cur, ok)
		if !keep {
			s.Delete(key)
			return
		}
		s.Put(key, next)
	})
}
