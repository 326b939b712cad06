// ABOUTME: Router validates, persists, and fans out directed messages
// ABOUTME: Persist-before-fan-out is the ordering guarantee everything leans on

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/dm-relay/internal/store"
)

// Routing errors, in precondition order.
var (
	// ErrUnboundSender means the sending connection has no identity bound.
	// Recoverable: the caller completes a join and retries.
	ErrUnboundSender = errors.New("sender connection is not bound to an identity")

	// ErrInvalidRecipient means the recipient identifier is malformed.
	ErrInvalidRecipient = errors.New("invalid recipient identifier")

	// ErrPersistence means the store rejected the append. The whole send
	// fails and nothing is fanned out.
	ErrPersistence = errors.New("message persistence failed")
)

// defaultAppendTimeout bounds how long a route waits on the store before
// the operation is treated as a persistence failure.
const defaultAppendTimeout = 5 * time.Second

// MessageStore defines what the router needs from storage.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *store.Message) error
}

// Router receives inbound directed messages from bound connections,
// persists them, and fans them out to every live connection of the
// sender and recipient.
type Router struct {
	registry      *Registry
	store         MessageStore
	appendTimeout time.Duration
	logger        *slog.Logger
}

// NewRouter creates a Router. A zero appendTimeout selects the default;
// pass nil logger for default.
func NewRouter(registry *Registry, st MessageStore, appendTimeout time.Duration, logger *slog.Logger) *Router {
	if appendTimeout <= 0 {
		appendTimeout = defaultAppendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry:      registry,
		store:         st,
		appendTimeout: appendTimeout,
		logger:        logger.With("component", "router"),
	}
}

// Route handles one inbound send request.
//
// Key principle: persist first, then fan out. The message is appended to
// its conversation log BEFORE any live delivery, so a client that receives
// a live message and later replays history always finds it there. If the
// append fails nothing is delivered; once the append is acknowledged,
// fan-out always proceeds and per-connection delivery failures never roll
// it back.
func (r *Router) Route(ctx context.Context, sender *Conn, to, text, attachmentRef string) (*store.Message, error) {
	from, ok := r.registry.BoundTo(sender)
	if !ok {
		return nil, ErrUnboundSender
	}

	if !ValidParticipantID(to) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}

	// Absent text/attachment normalize to empty strings; the persisted
	// record is also the fan-out payload, so downstream consumers never
	// see an undefined field.
	msg := &store.Message{
		ID:              uuid.New().String(),
		ConversationKey: Key(from, to),
		From:            from,
		To:              to,
		Text:            text,
		AttachmentRef:   attachmentRef,
		CreatedAt:       time.Now().UTC(),
	}

	appendCtx, cancel := context.WithTimeout(ctx, r.appendTimeout)
	defer cancel()
	if err := r.store.AppendMessage(appendCtx, msg); err != nil {
		r.logger.Error("append failed, aborting route",
			"error", err,
			"conversation_key", msg.ConversationKey,
			"message_id", msg.ID,
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	r.fanOut(msg)
	return msg, nil
}

// fanOut delivers the persisted record to every live connection of the
// sender and recipient. Best-effort per connection: a dead or slow
// connection is logged and skipped, never retried, and never aborts
// delivery to the others.
func (r *Router) fanOut(msg *store.Message) {
	targets := make(map[*Conn]struct{})
	for _, conn := range r.registry.MembersOf(msg.From) {
		targets[conn] = struct{}{}
	}
	for _, conn := range r.registry.MembersOf(msg.To) {
		targets[conn] = struct{}{}
	}

	delivered := 0
	for conn := range targets {
		if err := conn.Deliver(msg); err != nil {
			r.logger.Warn("dropping delivery",
				"error", err,
				"conn_id", conn.ID,
				"message_id", msg.ID,
			)
			continue
		}
		delivered++
	}

	r.logger.Debug("message routed",
		"message_id", msg.ID,
		"conversation_key", msg.ConversationKey,
		"targets", len(targets),
		"delivered", delivered,
	)
}
