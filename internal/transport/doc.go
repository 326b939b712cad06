// Package transport exposes the relay over WebSocket.
//
// # Protocol
//
// Clients connect to GET /ws and exchange JSON frames:
//
//	-> {"type":"join","token":"<bearer token>"}
//	<- {"type":"joined","participant_id":"..."}
//
//	-> {"type":"message","to":"...","text":"...","attachment_ref":"..."}
//	<- {"type":"message","message":{...persisted record...}}
//
//	<- {"type":"error","code":"...","error":"..."}
//
// A send produces no explicit ack: the sender receives its own copy of
// the message through fan-out, exactly like every other device of the
// sender and recipient. Routing errors (unbound_sender,
// invalid_recipient, persistence_failure) are reported on the socket and
// leave the connection open so the client can join or retry.
//
// # Concurrency
//
// Each session runs a read loop and a write pump. The pump is the only
// writer to the socket; it drains the relay connection's fan-out outbox
// and the session's reply channel. When either side of the socket fails
// the relay connection is closed and the registry unbinds it.
package transport
