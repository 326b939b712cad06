// ABOUTME: HTTP query surface for conversation history and health
// ABOUTME: Bearer-token authenticated; replays the same record shape the socket pushes

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/dm-relay/internal/auth"
	"github.com/2389/dm-relay/internal/relay"
	"github.com/2389/dm-relay/internal/store"
	"github.com/2389/dm-relay/internal/transport"
)

// callerKey is the context key for the authenticated participant ID.
type callerKey struct{}

// HistoryStore defines what the API needs from storage.
type HistoryStore interface {
	ListMessages(ctx context.Context, conversationKey string, limit int) ([]*store.Message, error)
}

// Handler serves the history query surface. It sits outside the relay's
// push path: clients call it on join to replay history, then rely on live
// fan-out.
type Handler struct {
	store    HistoryStore
	resolver auth.Resolver
	logger   *slog.Logger
}

// NewHandler creates an API handler. Pass nil logger for default.
func NewHandler(st HistoryStore, resolver auth.Resolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    st,
		resolver: resolver,
		logger:   logger.With("component", "api"),
	}
}

// Register mounts the API routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireIdentity)
		r.Get("/history/{peer}", h.handleHistory)
	})
}

// handleHealth reports liveness.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHistory returns the conversation between the caller and a peer,
// oldest first, optionally limited with ?limit=N.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller := r.Context().Value(callerKey{}).(string)

	peer := chi.URLParam(r, "peer")
	if !relay.ValidParticipantID(peer) {
		writeError(w, http.StatusBadRequest, "invalid peer identifier")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := h.store.ListMessages(r.Context(), relay.Key(caller, peer), limit)
	if err != nil {
		h.logger.Error("history query failed", "error", err, "caller", caller, "peer", peer)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	payload := make([]*transport.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		payload = append(payload, transport.NewMessagePayload(msg))
	}
	writeJSON(w, http.StatusOK, payload)
}

// requireIdentity resolves the Authorization bearer token and stores the
// caller's participant ID in the request context.
func (h *Handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		participantID, err := h.resolver.Resolve(token)
		if err != nil {
			h.logger.Debug("token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, participantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
