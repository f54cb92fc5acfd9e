package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/store"
	wsHub "github.com/assetscore/assetscore/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore(results ...*compute.Result) *store.Store {
	st := store.New(5 * time.Minute)
	for _, r := range results {
		st.Put(r)
	}
	return st
}

func result(id string, final float64) *compute.Result {
	return &compute.Result{AssetID: id, FinalScore: final, State: compute.StateHealthy, Timestamp: time.Now()}
}

// startHub starts a test HTTP server with the hub as its handler and runs
// the hub's broadcast loop until the test ends.
func startHub(t *testing.T, st *store.Store) (string, *wsHub.Hub) {
	t.Helper()

	hub := wsHub.New(st, testInterval)
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateScores(t *testing.T) {
	wsURL, _ := startHub(t, newStore(result("pump-1", 91), result("valve-2", 40)))

	m := readMessage(t, dial(t, wsURL))
	if m.Event != wsHub.EventScores {
		t.Errorf("event: got %q, want %q", m.Event, wsHub.EventScores)
	}
	if m.Data.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
	if len(m.Data.Assets) != 2 || m.Data.Assets[0].AssetID != "pump-1" {
		t.Errorf("assets: got %+v", m.Data.Assets)
	}
}

func TestHub_AssetFilter(t *testing.T) {
	st := newStore(result("pump-1", 91), result("valve-2", 40), result("fan-3", 70))
	wsURL, _ := startHub(t, st)

	conn := dial(t, wsURL+"?asset=valve-2&asset=fan-3&asset=unknown")
	for i := 0; i < 2; i++ { // immediate message, then one broadcast
		m := readMessage(t, conn)
		if len(m.Data.Assets) != 2 {
			t.Fatalf("message %d: got %d assets, want 2", i, len(m.Data.Assets))
		}
		for _, a := range m.Data.Assets {
			if a.AssetID == "pump-1" {
				t.Errorf("message %d: filtered asset pump-1 delivered", i)
			}
		}
	}
}

func TestHub_EmptyStore(t *testing.T) {
	wsURL, _ := startHub(t, newStore())
	m := readMessage(t, dial(t, wsURL))
	if len(m.Data.Assets) != 0 {
		t.Errorf("assets: got %d, want 0", len(m.Data.Assets))
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub := startHub(t, newStore())

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	eventually(t, "3 clients", func() bool { return hub.Count() == 3 })

	conns[0].Close()
	eventually(t, "2 clients after disconnect", func() bool { return hub.Count() == 2 })
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := newStore()
	wsURL, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // immediate message, empty store

	st.Put(result("new-asset", 88))

	for i := 0; i < 50; i++ {
		m := readMessage(t, conn)
		if len(m.Data.Assets) == 1 && m.Data.Assets[0].AssetID == "new-asset" {
			return
		}
	}
	t.Fatal("broadcast with the new asset never arrived")
}

func TestHub_RunStopsAndClosesClients(t *testing.T) {
	hub := wsHub.New(newStore(), testInterval)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	readMessage(t, conn)
	eventually(t, "client registered", func() bool { return hub.Count() == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if hub.Count() != 0 {
		t.Errorf("Count after shutdown: got %d, want 0", hub.Count())
	}
}

func TestHub_NonPositiveIntervalUsesDefault(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		hub := wsHub.New(newStore(), interval)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			hub.Run(ctx) // must not panic on a zero ticker period
			close(done)
		}()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("interval %v: Run did not return after cancel", interval)
		}
	}
}
