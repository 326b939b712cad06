// ABOUTME: Conn represents one live transport session owned by the registry
// ABOUTME: Carries a buffered outbox the transport layer drains into the socket

package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/dm-relay/internal/store"
)

// outboxBufferSize is the per-connection delivery buffer. A connection
// whose buffer is full has deliveries dropped rather than blocking the
// router; a reconnecting client re-fetches history anyway.
const outboxBufferSize = 64

// ErrConnClosed indicates a delivery was attempted on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// ErrConnBusy indicates the connection's outbox is full and the delivery
// was dropped.
var ErrConnBusy = errors.New("connection outbox full")

// Conn is a transient handle for one live transport session. It is
// created when the transport accepts a connection, bound to a participant
// by the registry after a join, and closed when the transport goes away.
type Conn struct {
	ID string

	outbox    chan *store.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn creates an unbound connection handle.
func NewConn() *Conn {
	return &Conn{
		ID:     uuid.New().String(),
		outbox: make(chan *store.Message, outboxBufferSize),
		done:   make(chan struct{}),
	}
}

// Deliver queues a message for the transport layer to push to the client.
// Non-blocking: returns ErrConnBusy if the outbox is full and ErrConnClosed
// if the connection has been closed. Callers treat both as best-effort
// delivery failures.
func (c *Conn) Deliver(msg *store.Message) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.outbox <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrConnBusy
	}
}

// Outbox returns the channel the transport layer drains into the socket.
func (c *Conn) Outbox() <-chan *store.Message {
	return c.outbox
}

// Done is closed when the connection is no longer usable.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection unusable. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
