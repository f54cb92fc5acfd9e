package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/assetscore/assetscore/internal/api"
	"github.com/assetscore/assetscore/internal/store"
)

// EventScores is the event name of every message sent to subscribers.
const EventScores = "scores"

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 5 * time.Second

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10 // must stay below pongWait
	queueDepth   = 16
	maxInbound   = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope pushed to subscribers.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub fans the latest asset scores out to WebSocket subscribers.
type Hub struct {
	store    *store.Store
	interval time.Duration

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// subscriber is one WebSocket connection. A nil filter receives every asset.
type subscriber struct {
	conn   *websocket.Conn
	queue  chan []byte
	filter map[string]bool
}

// New creates a Hub that reads scores from st and pushes them every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Hub{
		store:    st,
		interval: interval,
		subs:     make(map[*subscriber]struct{}),
	}
}

// Run pushes scores on every tick until ctx is cancelled, then disconnects
// all subscribers.
func (h *Hub) Run(ctx context.Context) {
	tick := time.NewTicker(h.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			return
		case <-tick.C:
			h.publish()
		}
	}
}

// ServeHTTP upgrades the request and streams scores until the peer goes away.
// Repeating the asset query parameter restricts the stream to those asset IDs.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // the upgrader already replied
	}

	s := &subscriber{conn: conn, queue: make(chan []byte, queueDepth)}
	if ids := r.URL.Query()["asset"]; len(ids) > 0 {
		s.filter = make(map[string]bool, len(ids))
		for _, id := range ids {
			s.filter[id] = true
		}
	}

	if msg, err := encode(s.view(api.BuildSnapshot(h.store))); err == nil {
		s.queue <- msg
	}
	h.add(s)
	defer h.remove(s)

	go s.writeLoop()
	s.readLoop()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	h.drop(s)
	h.mu.Unlock()
}

// drop closes the queue of s exactly once. Callers hold h.mu.
func (h *Hub) drop(s *subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.queue)
}

// publish queues the current scores for every subscriber. Queues are filled
// under h.mu so a concurrent remove cannot close one mid-send.
func (h *Hub) publish() {
	snap := api.BuildSnapshot(h.store)
	full, err := encode(snap)
	if err != nil {
		slog.Error("ws: encode scores", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		msg := full
		if s.filter != nil {
			if msg, err = encode(s.view(snap)); err != nil {
				continue
			}
		}
		select {
		case s.queue <- msg:
		default:
			slog.Warn("ws: subscriber too slow, disconnecting", "remote", s.conn.RemoteAddr().String())
			h.drop(s)
		}
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.drop(s)
	}
}

// view narrows snap to the subscriber's assets.
func (s *subscriber) view(snap api.SnapshotResponse) api.SnapshotResponse {
	if s.filter == nil {
		return snap
	}
	out := api.SnapshotResponse{GeneratedAt: snap.GeneratedAt, Assets: []api.AssetResponse{}}
	for _, a := range snap.Assets {
		if s.filter[a.AssetID] {
			out.Assets = append(out.Assets, a)
		}
	}
	return out
}

func encode(snap api.SnapshotResponse) ([]byte, error) {
	return json.Marshal(Message{Event: EventScores, Data: snap})
}

// writeLoop forwards queued messages and keeps the connection alive with pings.
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.queue:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes control frames until the peer disconnects or stops
// answering pings.
func (s *subscriber) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxInbound)
	s.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
