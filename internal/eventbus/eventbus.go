// Package eventbus is the outbound event-center transport (spec.md §6):
// every published Event is broadcast, as JSON, to every connected
// WebSocket subscriber. Grounded on internal/api/api.go's websocket
// upgrade and cached-state-plus-broadcast pattern, pulled out into its
// own package since the spec treats the bus as a first-class external
// interface rather than an API-actor internal.
package eventbus

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/riverbt/nodeflow/internal/event"
)

// Bus implements event.Bus by fanning every Publish call out to every
// currently connected WebSocket client.
type Bus struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan event.Event
}

func New(log zerolog.Logger) *Bus {
	return &Bus{
		log:     log,
		clients: make(map[*websocket.Conn]chan event.Event),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish satisfies event.Bus: it never blocks on a slow subscriber,
// dropping the event for that one client instead of stalling the
// publisher (the strategy actor's Receive loop).
func (b *Bus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn, ch := range b.clients {
		select {
		case ch <- e:
		default:
			b.log.Warn().Str("kind", string(e.Kind)).Msg("event bus subscriber too slow, dropping event")
			_ = conn
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams events to it
// until the connection closes.
func (b *Bus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ch := make(chan event.Event, 256)
	b.mu.Lock()
	b.clients[conn] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	go b.drainReads(conn)

	for e := range ch {
		data, err := json.Marshal(e)
		if err != nil {
			b.log.Error().Err(err).Msg("failed to marshal event")
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// drainReads discards client messages; the protocol is server-push
// only, but the connection must still be read to observe client closes.
func (b *Bus) drainReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close disconnects every subscriber, used during supervisor shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn, ch := range b.clients {
		close(ch)
		conn.Close()
		delete(b.clients, conn)
	}
}
