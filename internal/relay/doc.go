// Package relay implements the core of the private-messaging relay:
// connection-to-identity binding, conversation addressing, and message
// routing with ordered persistence.
//
// # Components
//
//   - Conn: a transient handle for one live transport session, with a
//     buffered outbox the transport layer drains.
//   - Registry: the identity -> connection multimap. One participant may
//     hold several connections at once (multi-device); fan-out reaches
//     all of them.
//   - Key: pure derivation of the canonical, order-independent
//     conversation key for a pair of participants.
//   - Router: validates an inbound send, persists the message to its
//     conversation log, and only then fans the persisted record out to
//     every live connection of sender and recipient.
//
// # Ordering guarantee
//
// The router persists before it fans out. A message a client sees live is
// always already in the log, so a reconnect followed by a history replay
// can never lose it. The converse also holds: a persistence failure fails
// the whole send and nothing is delivered.
//
// # Data flow
//
//	transport open -> NewConn
//	join           -> resolver -> Registry.Bind
//	send           -> Router.Route -> store append -> fan-out
//	transport close -> Registry.Unbind, Conn.Close
//
// The registry and router hold no ambient process-wide state: each server
// instance owns its own Registry/Router pair, so tests run many relays
// side by side.
package relay
