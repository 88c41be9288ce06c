package session

import (
	"context"
	"sync"

	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// MemoryStore implements Store with an in-memory map. It is thread-safe and
// suitable for development, testing and single-process deployments; slots do
// not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]ticket.Ticket
}

// NewMemoryStore creates an empty in-memory slot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[string]ticket.Ticket),
	}
}

// Store implements Store.
func (s *MemoryStore) Store(_ context.Context, name string, t ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[name] = t
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, name string) (ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.slots[name]
	if !ok {
		return ticket.Ticket{}, ErrNotFound
	}
	return t, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, name)
	return nil
}

// Close clears all slots.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = make(map[string]ticket.Ticket)
	return nil
}
