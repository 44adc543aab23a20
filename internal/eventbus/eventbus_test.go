package eventbus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/event"
)

func TestPublishNoClientsIsNoop(t *testing.T) {
	b := New(zerolog.New(nil))
	b.Publish(event.Event{Kind: event.KindPlayFinished, StrategyID: "strat1"})
}

func TestServeHTTPBroadcastsPublishedEvents(t *testing.T) {
	b := New(zerolog.New(nil))
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// allow ServeHTTP to register the client before publishing.
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		n := len(b.clients)
		b.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(event.Event{Kind: event.KindPlayFinished, StrategyID: "strat1", CycleID: 7})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	var got event.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	if got.Kind != event.KindPlayFinished || got.StrategyID != "strat1" || got.CycleID != 7 {
		t.Errorf("unexpected event received: %+v", got)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	b := New(zerolog.New(nil))
	conn := &websocket.Conn{}
	ch := make(chan event.Event) // unbuffered: the first Publish fills nothing, the select must not block
	b.mu.Lock()
	b.clients[conn] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.Publish(event.Event{Kind: event.KindPlayFinished})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber instead of dropping the event")
	}
}

func TestCloseDisconnectsAllClients(t *testing.T) {
	b := New(zerolog.New(nil))
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		n := len(b.clients)
		b.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Close()

	b.mu.Lock()
	n := len(b.clients)
	b.mu.Unlock()
	if n != 0 {
		t.Errorf("expected Close to clear all clients, got %d remaining", n)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the client connection to observe a close")
	}
}
