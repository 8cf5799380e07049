package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	return h
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	return ev
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", want, h.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnectGreeting(t *testing.T) {
	h := newTestHub(t)
	conn := dialHub(t, h)

	if ev := readEvent(t, conn); ev.Type != "connected" {
		t.Fatalf("expected connected greeting, got %q", ev.Type)
	}
	waitForClients(t, h, 1)
}

func TestBroadcastPlayerState(t *testing.T) {
	h := newTestHub(t)
	conn := dialHub(t, h)
	readEvent(t, conn) // greeting
	waitForClients(t, h, 1)

	h.BroadcastPlayerState(map[string]string{"name": "den", "state": "playing"})

	ev := readEvent(t, conn)
	if ev.Type != "player_state" {
		t.Fatalf("expected player_state, got %q", ev.Type)
	}
	payload, ok := ev.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected payload shape: %#v", ev.Payload)
	}
	if payload["name"] != "den" || payload["state"] != "playing" {
		t.Errorf("unexpected payload: %#v", payload)
	}
}

func TestInitialEventsReplayed(t *testing.T) {
	h := newTestHub(t)
	h.SetInitialEvents(func() []Event {
		return []Event{
			{Type: "player_state", Payload: map[string]string{"name": "den"}},
			{Type: "player_state", Payload: map[string]string{"name": "attic"}},
		}
	})
	conn := dialHub(t, h)

	if ev := readEvent(t, conn); ev.Type != "connected" {
		t.Fatalf("expected connected greeting, got %q", ev.Type)
	}

	for _, want := range []string{"den", "attic"} {
		ev := readEvent(t, conn)
		if ev.Type != "player_state" {
			t.Fatalf("expected player_state replay, got %q", ev.Type)
		}
		payload, ok := ev.Payload.(map[string]interface{})
		if !ok || payload["name"] != want {
			t.Errorf("expected replay for %q, got %#v", want, ev.Payload)
		}
	}
}

func TestClientDisconnectUpdatesCount(t *testing.T) {
	h := newTestHub(t)
	conn := dialHub(t, h)
	readEvent(t, conn)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}
