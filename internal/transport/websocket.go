// ABOUTME: WebSocket transport for the relay: join, send, and disconnect frames
// ABOUTME: One read loop and one write pump per connection; all socket writes go through the pump

package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/2389/dm-relay/internal/auth"
	"github.com/2389/dm-relay/internal/relay"
	"github.com/2389/dm-relay/internal/store"
)

// replyBufferSize is the per-socket buffer for join/error replies. Relay
// fan-out uses the relay.Conn outbox, not this channel.
const replyBufferSize = 16

// writeTimeout bounds a single socket write so one stuck client cannot
// wedge its write pump forever.
const writeTimeout = 10 * time.Second

// Inbound frame types
const (
	frameJoin    = "join"
	frameMessage = "message"
)

// Outbound frame types
const (
	frameJoined = "joined"
	frameError  = "error"
)

// Error codes surfaced to clients
const (
	codeBadFrame           = "bad_frame"
	codeInvalidToken       = "invalid_token"
	codeUnboundSender      = "unbound_sender"
	codeInvalidRecipient   = "invalid_recipient"
	codePersistenceFailure = "persistence_failure"
)

// inboundFrame is a client-to-relay frame.
type inboundFrame struct {
	Type          string `json:"type"`
	Token         string `json:"token,omitempty"`
	To            string `json:"to,omitempty"`
	Text          string `json:"text,omitempty"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

// outboundFrame is a relay-to-client frame.
type outboundFrame struct {
	Type          string          `json:"type"`
	ParticipantID string          `json:"participant_id,omitempty"`
	Code          string          `json:"code,omitempty"`
	Error         string          `json:"error,omitempty"`
	Message       *MessagePayload `json:"message,omitempty"`
}

// MessagePayload is the wire shape of a persisted message. The same shape
// is served by the history API, so live and replayed messages look alike.
type MessagePayload struct {
	ID            string    `json:"id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Text          string    `json:"text"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewMessagePayload converts a persisted record to its wire shape.
func NewMessagePayload(msg *store.Message) *MessagePayload {
	return &MessagePayload{
		ID:            msg.ID,
		From:          msg.From,
		To:            msg.To,
		Text:          msg.Text,
		AttachmentRef: msg.AttachmentRef,
		CreatedAt:     msg.CreatedAt,
	}
}

// Handler upgrades HTTP requests to relay WebSocket sessions.
type Handler struct {
	registry *relay.Registry
	router   *relay.Router
	resolver auth.Resolver
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler. Pass nil logger for default.
func NewHandler(registry *relay.Registry, router *relay.Router, resolver auth.Resolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		router:   router,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Token auth happens on the join frame, not the origin.
				return true
			},
		},
		logger: logger.With("component", "transport"),
	}
}

// Register mounts the WebSocket endpoint on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ws", h.handleSocket)
}

// handleSocket runs one relay session: upgrade, read loop, and cleanup.
// Unbinding on disconnect is implicit; clients re-fetch history on rejoin
// rather than relying on redelivery.
func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	conn := relay.NewConn()
	replies := make(chan outboundFrame, replyBufferSize)

	h.logger.Debug("connection opened", "conn_id", conn.ID, "remote", r.RemoteAddr)

	defer func() {
		h.registry.Unbind(conn)
		conn.Close()
		ws.Close()
		h.logger.Debug("connection closed", "conn_id", conn.ID)
	}()

	go h.writePump(ws, conn, replies)
	h.readLoop(r, ws, conn, replies)
}

// readLoop consumes client frames until the socket dies.
func (h *Handler) readLoop(r *http.Request, ws *websocket.Conn, conn *relay.Conn, replies chan outboundFrame) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("read failed", "error", err, "conn_id", conn.ID)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(conn, replies, errorFrame(codeBadFrame, "malformed frame"))
			continue
		}

		switch frame.Type {
		case frameJoin:
			h.handleJoin(conn, replies, frame.Token)
		case frameMessage:
			h.handleSend(r, conn, replies, frame)
		default:
			h.reply(conn, replies, errorFrame(codeBadFrame, "unknown frame type "+frame.Type))
		}
	}
}

// handleJoin resolves the presented token and binds the connection.
func (h *Handler) handleJoin(conn *relay.Conn, replies chan outboundFrame, token string) {
	participantID, err := h.resolver.Resolve(token)
	if err != nil {
		h.logger.Debug("join rejected", "error", err, "conn_id", conn.ID)
		h.reply(conn, replies, errorFrame(codeInvalidToken, "identity resolution failed"))
		return
	}

	if !relay.ValidParticipantID(participantID) {
		h.logger.Warn("resolver produced malformed participant id",
			"participant_id", participantID,
			"conn_id", conn.ID,
		)
		h.reply(conn, replies, errorFrame(codeInvalidToken, "identity resolution failed"))
		return
	}

	h.registry.Bind(conn, participantID)
	h.reply(conn, replies, outboundFrame{Type: frameJoined, ParticipantID: participantID})
}

// handleSend routes one directed message. Routing errors are reported on
// the same socket and leave the connection open.
func (h *Handler) handleSend(r *http.Request, conn *relay.Conn, replies chan outboundFrame, frame inboundFrame) {
	_, err := h.router.Route(r.Context(), conn, frame.To, frame.Text, frame.AttachmentRef)
	if err == nil {
		// The sender receives its own copy via fan-out; no separate ack.
		return
	}

	h.reply(conn, replies, errorFrame(routeErrorCode(err), err.Error()))
}

// routeErrorCode maps router errors to wire error codes.
func routeErrorCode(err error) string {
	switch {
	case errors.Is(err, relay.ErrUnboundSender):
		return codeUnboundSender
	case errors.Is(err, relay.ErrInvalidRecipient):
		return codeInvalidRecipient
	default:
		return codePersistenceFailure
	}
}

// writePump is the only goroutine that writes to the socket. It drains
// both relay fan-out deliveries and local replies until the connection
// closes.
func (h *Handler) writePump(ws *websocket.Conn, conn *relay.Conn, replies chan outboundFrame) {
	for {
		select {
		case msg := <-conn.Outbox():
			frame := outboundFrame{Type: frameMessage, Message: NewMessagePayload(msg)}
			if !h.writeFrame(ws, conn, frame) {
				return
			}
		case frame := <-replies:
			if !h.writeFrame(ws, conn, frame) {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// writeFrame sends one frame, closing the relay connection on failure.
func (h *Handler) writeFrame(ws *websocket.Conn, conn *relay.Conn, frame outboundFrame) bool {
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(frame); err != nil {
		h.logger.Debug("write failed", "error", err, "conn_id", conn.ID)
		conn.Close()
		return false
	}
	return true
}

// reply queues a control frame for the write pump. Dropping on a full
// buffer is acceptable: replies are advisory and the client can retry.
func (h *Handler) reply(conn *relay.Conn, replies chan outboundFrame, frame outboundFrame) {
	select {
	case replies <- frame:
	case <-conn.Done():
	default:
		h.logger.Warn("reply buffer full, dropping frame",
			"conn_id", conn.ID,
			"frame_type", frame.Type,
		)
	}
}

func errorFrame(code, msg string) outboundFrame {
	return outboundFrame{Type: frameError, Code: code, Error: msg}
}
