package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

const eventClientBuffer = 256

// EventClient is one UI connection listening to the event stream.
type EventClient struct {
	ID   string
	send chan []byte
}

// Events returns the channel of encoded events. It is closed when the client is dropped.
func (c *EventClient) Events() <-chan []byte { return c.send }

// EventHub fans gateway events out to every connected UI client.
type EventHub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*EventClient
}

func NewEventHub(logger zerolog.Logger) *EventHub {
	return &EventHub{
		log:     logger.With().Str("component", "events").Logger(),
		clients: make(map[string]*EventClient),
	}
}

// Register adds a client.
func (h *EventHub) Register() *EventClient {
	c := &EventClient{ID: uuid.NewString(), send: make(chan []byte, eventClientBuffer)}
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Str("client_id", c.ID).Int("clients", n).Msg("event client registered")
	return c
}

// Unregister removes a client and closes its channel.
func (h *EventHub) Unregister(c *EventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends evt to every client without blocking. Clients whose buffer is
// full are dropped.
func (h *EventHub) Broadcast(evt models.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn().Err(err).Str("type", string(evt.Type)).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, id)
			close(c.send)
			h.log.Warn().Str("client_id", id).Msg("event client too slow, dropped")
		}
	}
}
