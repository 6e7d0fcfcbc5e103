package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/minigame-engine/internal/domain"
)

// Message types
const (
	MessageTypeScoreUpdate     = "score_update"
	MessageTypeStandingsUpdate = "standings_update"
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type        string      `json:"type"`
	ChallengeID string      `json:"challenge_id,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// StandingsUpdate contains a full standings refresh for broadcast
type StandingsUpdate struct {
	ChallengeID string            `json:"challenge_id"`
	Standings   []domain.Standing `json:"standings"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by challenge ID
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages to fan out
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client      *Client
	challengeID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all challenge subscriptions
				for challengeID, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, challengeID)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.challengeID]; !ok {
				h.clients[req.challengeID] = make(map[*Client]bool)
			}
			h.clients[req.challengeID][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "challenge_id", req.challengeID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.challengeID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.challengeID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "challenge_id", req.challengeID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If the message names a challenge, only send to its subscribers
	if message.ChallengeID != "" {
		if clients, ok := h.clients[message.ChallengeID]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		// Broadcast to all clients
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// BroadcastScoreUpdate pushes one member's new running total to subscribers
func (h *Hub) BroadcastScoreUpdate(challengeID string, standing domain.Standing) {
	message := &Message{
		Type:        MessageTypeScoreUpdate,
		ChallengeID: challengeID,
		Data:        standing,
		Timestamp:   time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastStandings pushes a full standings refresh to subscribers
func (h *Hub) BroadcastStandings(challengeID string, standings []domain.Standing) {
	message := &Message{
		Type:        MessageTypeStandingsUpdate,
		ChallengeID: challengeID,
		Data: StandingsUpdate{
			ChallengeID: challengeID,
			Standings:   standings,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastGameEvent pushes a mini-game lifecycle event to subscribers
func (h *Hub) BroadcastGameEvent(event domain.GameEvent) {
	message := &Message{
		Type:        event.Type,
		ChallengeID: event.ChallengeID,
		Data:        event.Game,
		Timestamp:   time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a challenge subscription
func (h *Hub) Subscribe(client *Client, challengeID string) {
	h.subscribe <- &subscriptionRequest{
		client:      client,
		challengeID: challengeID,
	}
}

// Unsubscribe removes a client from a challenge subscription
func (h *Hub) Unsubscribe(client *Client, challengeID string) {
	h.unsubscribe <- &subscriptionRequest{
		client:      client,
		challengeID: challengeID,
	}
}

// GetSubscriberCount returns the number of subscribers for a challenge
func (h *Hub) GetSubscriberCount(challengeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[challengeID]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
