// Package realtime fans queue events out to display and admin clients over SockJS and
// WebSocket connections, and optionally to NATS.
package realtime

import (
	"encoding/json"
	"sync"

	"smartq/internal/metrics"

	"github.com/rs/zerolog"
)

// Client is one connected session. A nil Events set receives every event.
type Client struct {
	ID     string
	Send   chan []byte
	Events map[string]bool
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

type SubscribeMessage struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

// Unregister removes the client and closes its Send channel. Calling it twice is safe.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

// UpdateSubscription limits the client to events. An empty list restores all events.
func (h *Hub) UpdateSubscription(client *Client, events []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(events) == 0 {
		client.Events = nil
		return
	}
	client.Events = make(map[string]bool, len(events))
	for _, event := range events {
		client.Events[event] = true
	}
}

// Broadcast queues payload for every client subscribed to event. Clients whose
// buffer is full miss the message.
func (h *Hub) Broadcast(payload []byte, event string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.Events != nil && !client.Events[event] {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			metrics.BroadcastDropped.Inc()
			h.logger.Warn().Str("client_id", client.ID).Str("event", event).Msg("drop message for slow client")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleMessage applies a subscribe or unsubscribe frame sent by client.
func (h *Hub) handleMessage(client *Client, data []byte) {
	msg, ok := ParseSubscribe(data)
	if !ok {
		return
	}
	if msg.Action == "unsubscribe" {
		h.UpdateSubscription(client, nil)
		return
	}
	h.UpdateSubscription(client, msg.Events)
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
