// ABOUTME: Registry tracks live connections and binds them to participant identities
// ABOUTME: Supports multi-device fan-out via an identity -> connection multimap

package relay

import (
	"log/slog"
	"sync"
)

// Registry is the connection-to-identity multimap. A participant may own
// zero or more simultaneous connections (multi-device); a connection is
// bound to at most one participant at a time.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[*Conn]struct{}
	bound   map[*Conn]string
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		members: make(map[string]map[*Conn]struct{}),
		bound:   make(map[*Conn]string),
		logger:  logger.With("component", "registry"),
	}
}

// Bind associates a connection with a participant identity for all
// subsequent routing. Rebinding an already-bound connection replaces the
// prior binding (last write wins). Binding a closed connection is a no-op.
func (r *Registry) Bind(conn *Conn, participantID string) {
	if conn.Closed() {
		r.logger.Debug("ignoring bind on closed connection",
			"conn_id", conn.ID,
			"participant_id", participantID,
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bound[conn]; ok {
		r.removeMemberLocked(prev, conn)
	}

	r.bound[conn] = participantID
	if _, ok := r.members[participantID]; !ok {
		r.members[participantID] = make(map[*Conn]struct{})
	}
	r.members[participantID][conn] = struct{}{}

	r.logger.Info("=== CONNECTION BOUND ===",
		"conn_id", conn.ID,
		"participant_id", participantID,
		"devices", len(r.members[participantID]),
	)
}

// Unbind removes a connection from any identity's membership set.
// Invoked on transport close. Idempotent.
func (r *Registry) Unbind(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participantID, ok := r.bound[conn]
	if !ok {
		return
	}

	delete(r.bound, conn)
	r.removeMemberLocked(participantID, conn)

	r.logger.Info("=== CONNECTION UNBOUND ===",
		"conn_id", conn.ID,
		"participant_id", participantID,
	)
}

// MembersOf returns every currently live connection bound to the identity.
// The returned slice is a snapshot; ordering is not significant.
func (r *Registry) MembersOf(participantID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.members[participantID]
	if !ok {
		return nil
	}

	conns := make([]*Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// BoundTo returns the participant identity a connection is bound to,
// or false if the connection has not joined yet.
func (r *Registry) BoundTo(conn *Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participantID, ok := r.bound[conn]
	return participantID, ok
}

// removeMemberLocked deletes conn from an identity's membership set and
// drops the set when it empties. Caller holds r.mu.
func (r *Registry) removeMemberLocked(participantID string, conn *Conn) {
	set, ok := r.members[participantID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.members, participantID)
	}
}
