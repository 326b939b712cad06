// Package api serves the relay's HTTP query surface.
//
// The only authenticated endpoint is history replay:
//
//	GET /api/history/{peer}?limit=N
//	Authorization: Bearer <token>
//
// The bearer token resolves to the caller's participant identity; the
// conversation key is derived from caller and peer, so a caller can only
// read conversations it is a party to. Messages come back oldest first in
// the same JSON shape the WebSocket transport pushes, which is what makes
// reconnect-and-replay seamless.
//
// GET /healthz is unauthenticated liveness.
package api
