package tracker

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps tickets for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[int64]Ticket
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[int64]Ticket)}
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) (Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[chatID]
	return t, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ChatID] = t
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tickets[chatID]
	delete(s.tickets, chatID)
	return ok, nil
}

// List returns tickets oldest first.
func (s *MemoryStore) List(_ context.Context) ([]Ticket, error) {
	s.mu.RLock()
	out := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ChatID < out[j].ChatID
	})
	return out, nil
}
