// Package console exposes the agent's ops surface: health and status
// endpoints, Prometheus metrics, and a websocket stream of agent events
// (posts scheduled, actions dispatched, provider fallbacks).
package console

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Event is one item on the stream.
type Event struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Broadcaster fans events out to every connected client. It satisfies
// the EventSink seams of the other packages; a nil *Broadcaster is a
// valid no-op sink.
type Broadcaster struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*client
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:  logger.With().Str("component", "console").Logger(),
		clients: make(map[string]*client),
	}
}

// Emit sends one event to every connected client. Clients whose send
// buffer is full are dropped rather than allowed to stall the agent.
func (b *Broadcaster) Emit(event string, fields map[string]any) {
	if b == nil {
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		// Exceedingly unlikely; the event still goes out
		id = time.Now().Format(time.RFC3339Nano)
	}

	e := Event{
		ID:     id,
		Type:   event,
		At:     time.Now(),
		Fields: fields,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for cid, c := range b.clients {
		select {
		case c.send <- e:
		default:
			b.logger.Warn().Str("client", cid).Msg("Client too slow, dropping")
			close(c.send)
			delete(b.clients, cid)
		}
	}
}

// register adds a connected client and returns its id.
func (b *Broadcaster) register(c *client) string {
	id, err := gonanoid.New()
	if err != nil {
		id = time.Now().Format(time.RFC3339Nano)
	}

	b.mu.Lock()
	b.clients[id] = c
	n := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug().Str("client", id).Int("clients", n).Msg("Client connected")
	return id
}

// unregister drops a client if it is still tracked.
func (b *Broadcaster) unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[id]; ok {
		close(c.send)
		delete(b.clients, id)
		b.logger.Debug().Str("client", id).Msg("Client disconnected")
	}
}

// ClientCount reports how many stream clients are connected.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
