package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"agribot/internal/logger"
	"agribot/internal/metrics"
)

// Message types pushed to browsers
const (
	TypeToast  = "toast"
	TypeSeries = "series"
)

// Message is the envelope of every frame sent to a client
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Payload   any    `json:"payload"`
}

type outbound struct {
	sessionID string
	data      []byte
}

// Hub maintains the set of active clients per session and delivers
// session-scoped messages. Broadcast never blocks the caller.
type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	dropped    atomic.Uint64
}

// NewHub creates a hub whose outbound queue holds queueSize messages
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		broadcast:  make(chan outbound, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and deliveries until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	log := logger.WithComponent("websocket_hub")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			metrics.WebsocketClients.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.sessionID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[client.sessionID] = set
			}
			set[client] = true
			h.mu.Unlock()
			metrics.WebsocketClients.Inc()
			log.Debug().Str("session_id", client.sessionID).Msg("websocket client registered")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.sessionID] {
				select {
				case client.send <- msg.data:
				default:
					// Assume client is blocked or gone, unregister
					log.Warn().Str("session_id", msg.sessionID).Msg("websocket client send buffer full, removing")
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	set, ok := h.clients[client.sessionID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.sessionID)
	}
	close(client.send)
	metrics.WebsocketClients.Dec()
}

// Disconnect closes every client of a session and returns how many were
// attached. Their write pumps send a close frame and exit.
func (h *Hub) Disconnect(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[sessionID]
	n := len(set)
	for client := range set {
		h.removeLocked(client)
	}
	return n
}

// Send queues a message for every client of a session. It returns false
// when the queue is full and the message was dropped.
func (h *Hub) Send(sessionID, msgType string, payload any) bool {
	data, err := json.Marshal(Message{Type: msgType, SessionID: sessionID, Payload: payload})
	if err != nil {
		log := logger.WithComponent("websocket_hub")
		log.Error().Err(err).Str("type", msgType).Msg("failed to marshal message")
		return false
	}

	select {
	case h.broadcast <- outbound{sessionID: sessionID, data: data}:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// Clients returns the number of clients attached to a session
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Dropped returns the number of messages dropped on a full queue
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
