// ABOUTME: Store interface and Message type for dm-relay persistence
// ABOUTME: Defines the append-only conversation log contract shared by all backends

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// maxListLimit caps a single history read. Callers that want more
// pages re-issue the query; no cursor state is held server-side.
const maxListLimit = 500

// Message is one immutable record in a conversation log. It is created
// by the relay router on receipt of a send request and never mutated
// afterwards.
type Message struct {
	ID              string
	ConversationKey string
	From            string
	To              string
	Text            string
	AttachmentRef   string
	CreatedAt       time.Time
}

// Store defines the interface for conversation log persistence.
//
// AppendMessage must be atomic with respect to concurrent appends to the
// same conversation key: persisted order equals append order, with no
// interleaved or lost writes. Appends to independent keys must not
// contend with each other.
type Store interface {
	// AppendMessage appends msg to the tail of its conversation's log.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the most recent limit messages for the key in
	// ascending creation order, ready for direct display. A limit <= 0
	// returns all messages, capped at an implementation maximum.
	ListMessages(ctx context.Context, conversationKey string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}

// capLimit normalizes a caller-supplied limit to the allowed range.
func capLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
