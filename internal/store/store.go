package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/assetscore/assetscore/internal/compute"
)

// Entry is a score result together with the time it was stored.
type Entry struct {
	Result    *compute.Result
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory result store, keyed by asset ID.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL. A zero TTL keeps entries forever.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores or replaces the result for res.AssetID.
// Callers must not modify res after calling Put.
func (s *Store) Put(res *compute.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[res.AssetID] = &Entry{
		Result:    res,
		UpdatedAt: s.now(),
	}
}

// Get returns the live entry for the given asset ID and whether one was
// found. Entries past the TTL are treated as missing even before eviction.
func (s *Store) Get(assetID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[assetID]
	if !ok || !s.live(e, s.now()) {
		return nil, false
	}
	return e, true
}

// List returns all live entries sorted by asset ID.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, now) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Result.AssetID < out[j].Result.AssetID
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled. With a zero TTL it
// only waits for ctx.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale scores", "count", n)
			}
		}
	}
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}
