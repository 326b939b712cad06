// Package store provides persistence for dm-relay conversation logs.
//
// # Overview
//
// Every routed message is appended to an ordered, append-only log keyed
// by its conversation key. Insertion order, delivery order, and persisted
// order are the same thing: the store never reorders or deletes messages.
//
// # Backends
//
// Two implementations of the Store interface are provided:
//
//   - SQLiteStore: durable storage via modernc.org/sqlite with WAL mode
//     and automatic schema creation. Append order is captured by an
//     AUTOINCREMENT sequence column, so two messages written in the same
//     nanosecond still read back in write order.
//   - MemoryStore: in-process maps with a lock per conversation log.
//     Used by tests and by deployments that opt into volatile history.
//
// # Contract
//
// AppendMessage is atomic per conversation key: concurrent appends to the
// same key serialize, appends to different keys do not block each other.
// ListMessages returns the most recent N messages in ascending creation
// order and is restartable; no cursor state lives server-side.
package store
