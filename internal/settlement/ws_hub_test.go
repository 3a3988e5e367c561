package settlement

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func (h *WSHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, hub *WSHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.clientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, hub has %d", want, hub.clientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSHub_BroadcastDelivery(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c1 := dialWS(t, srv)
	defer c1.Close()
	c2 := dialWS(t, srv)
	defer c2.Close()
	waitForClients(t, hub, 2)

	hub.Broadcast(WSMessage{
		Type:       "result_declared",
		MarketName: "Kalyan",
		Jodi:       "65",
	})

	for _, conn := range []*websocket.Conn{c1, c2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "result_declared" || msg.Jodi != "65" {
			t.Errorf("unexpected message: %+v", msg)
		}
	}
}

func TestWSHub_DeadClientIsPruned(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	live := dialWS(t, srv)
	defer live.Close()
	dead := dialWS(t, srv)
	waitForClients(t, hub, 2)

	dead.Close()

	// Keep broadcasting until the dead conn is gone; the live one must
	// receive throughout.
	deadline := time.Now().Add(2 * time.Second)
	for hub.clientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("dead client was not pruned, hub has %d", hub.clientCount())
		}
		hub.Broadcast(WSMessage{Type: "result_declared", MarketName: "Kalyan"})
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(WSMessage{Type: "result_declared", MarketName: "Kalyan"})
	live.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := live.ReadMessage(); err != nil {
		t.Fatalf("live client should keep receiving: %v", err)
	}
}
