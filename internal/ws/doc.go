// Package ws streams the latest asset scores to WebSocket subscribers.
//
// The server mounts a Hub at /ws/stream. On connect a subscriber receives the
// current scores at once, then a fresh copy on every Hub interval:
//
//	{"event": "scores", "data": { /* GET /api/v1/snapshot schema */ }}
//
// Adding ?asset=<id> (repeatable) limits the stream to those assets. All
// origins are accepted; restrict them at the reverse proxy.
package ws
