package store

import (
	"context"
	"sync"
)

// MemoryStore is a MessageStore kept entirely in memory. It backs local
// development and tests; durability starts and ends with the process.
type MemoryStore struct {
	mu     sync.RWMutex
	msgs   []Message
	nextID uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(_ context.Context, msg *Message) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := *msg
	stored.MID = s.nextID
	s.msgs = append(s.msgs, stored)
	return stored.MID, nil
}

func (s *MemoryStore) ByRecipient(_ context.Context, id uint64, kind ReceiverKind) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, msg := range s.msgs {
		if msg.ReceiverID == id && msg.ReceiverKind == kind {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Len reports how many messages have been persisted.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// All returns a copy of every persisted message in creation order.
func (s *MemoryStore) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}
