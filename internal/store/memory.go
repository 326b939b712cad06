// ABOUTME: In-memory implementation of the Store interface
// ABOUTME: Per-key append locks so independent conversations never contend

package store

import (
	"context"
	"sync"
)

// MemoryStore implements the Store interface with in-process maps. It is
// the default for tests and for deployments that accept losing history
// on restart (storage.driver: memory).
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*conversationLog
}

// conversationLog holds one conversation's ordered messages. Each log has
// its own lock so appends to different keys proceed without mutual
// blocking, while appends to the same key are serialized.
type conversationLog struct {
	mu       sync.Mutex
	messages []*Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs: make(map[string]*conversationLog),
	}
}

// AppendMessage appends a message to the tail of its conversation's log
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	log := s.logFor(msg.ConversationKey)

	log.mu.Lock()
	defer log.mu.Unlock()

	// Copy so callers cannot mutate the stored record afterwards.
	stored := *msg
	log.messages = append(log.messages, &stored)
	return nil
}

// ListMessages returns the most recent limit messages in ascending order
func (s *MemoryStore) ListMessages(ctx context.Context, conversationKey string, limit int) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = capLimit(limit)

	s.mu.RLock()
	log, ok := s.logs[conversationKey]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	start := 0
	if len(log.messages) > limit {
		start = len(log.messages) - limit
	}

	out := make([]*Message, 0, len(log.messages)-start)
	for _, msg := range log.messages[start:] {
		copied := *msg
		out = append(out, &copied)
	}
	return out, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// logFor returns the log for a key, creating it if needed.
func (s *MemoryStore) logFor(key string) *conversationLog {
	s.mu.RLock()
	log, ok := s.logs[key]
	s.mu.RUnlock()
	if ok {
		return log
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok = s.logs[key]; ok {
		return log
	}
	log = &conversationLog{}
	s.logs[key] = log
	return log
}
