// Package store keeps the latest score of every asset scored through the
// API. It is a thread-safe in-memory cache with TTL eviction; nothing is
// persisted.
package store
