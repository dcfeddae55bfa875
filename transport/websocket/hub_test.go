package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

func newTestClient(hub *Hub, sessionID string) *Client {
	return &Client{hub: hub, sessionID: sessionID, send: make(chan []byte, 256)}
}

func TestHubRegisterClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "test-session")

	hub.registerClient(client)

	if !hub.sessions["test-session"][client] {
		t.Error("Client was not registered in session")
	}
	if hub.ClientCount("test-session") != 1 {
		t.Errorf("Expected 1 client in session, got %d", hub.ClientCount("test-session"))
	}
}

func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "test-session")

	hub.registerClient(client)
	hub.unregisterClient(client)

	if _, exists := hub.sessions["test-session"]; exists {
		t.Error("Session should have been cleaned up after last client unregistered")
	}
	if _, ok := <-client.send; ok {
		t.Error("Expected send channel to be closed")
	}

	// second unregister is a no-op
	hub.unregisterClient(client)
}

func TestHubMultipleClientsInSession(t *testing.T) {
	hub := NewHub()
	client1 := newTestClient(hub, "multi")
	client2 := newTestClient(hub, "multi")

	hub.registerClient(client1)
	hub.registerClient(client2)
	hub.unregisterClient(client1)

	if hub.ClientCount("multi") != 1 || !hub.sessions["multi"][client2] {
		t.Error("client2 should still be registered")
	}
}

func TestHubBroadcastMessage(t *testing.T) {
	hub := NewHub()
	watcher := newTestClient(hub, "s1")
	other := newTestClient(hub, "s2")
	hub.registerClient(watcher)
	hub.registerClient(other)

	hub.broadcastMessage(&Message{
		SessionID: "s1",
		Event:     EventState,
		Session:   &service.SessionView{ID: "s1", Status: engine.StatusPlaying, Score: 20},
	})

	select {
	case data := <-watcher.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Event != EventState || msg.Session == nil || msg.Session.Score != 20 {
			t.Errorf("Unexpected message %+v", msg)
		}
	default:
		t.Error("Expected message for watcher")
	}

	if len(other.send) != 0 {
		t.Error("Clients of other sessions must not receive the message")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &Client{hub: hub, sessionID: "s1", send: make(chan []byte)}
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SessionID: "s1", Event: EventState})

	if hub.ClientCount("s1") != 0 {
		t.Error("Expected slow client to be dropped")
	}
}

func TestHubNotifySkipsUnwatchedSessions(t *testing.T) {
	hub := NewHub()
	hub.Notify(engine.Result{SessionID: "nobody"})
	if len(hub.broadcast) != 0 {
		t.Error("Expected no broadcast for a session without clients")
	}

	hub.registerClient(newTestClient(hub, "watched"))
	hub.Notify(engine.Result{SessionID: "watched", Status: engine.StatusWin})
	msg := <-hub.broadcast
	if msg.Event != EventFinished || msg.Result.Status != engine.StatusWin {
		t.Errorf("Unexpected message %+v", msg)
	}
}

func dialSession(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session_id"))
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketSessionUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	conn := dialSession(t, hub, "ws-test")
	waitFor(t, func() bool { return hub.ClientCount("ws-test") == 1 })

	hub.BroadcastSession(&service.SessionView{ID: "ws-test", Moves: 3})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.SessionID != "ws-test" || msg.Session.Moves != 3 {
		t.Errorf("Unexpected message %+v", msg)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount("ws-test") == 0 })
}

func TestWebSocketRejectsOrigin(t *testing.T) {
	hub := NewHub(WithCheckOrigin(func(*http.Request) bool { return false }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "s")
	}))
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil {
		t.Fatal("Expected upgrade to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %+v", resp)
	}
}
