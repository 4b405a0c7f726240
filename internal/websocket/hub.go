package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Message types
const (
	MessageTypeMarkAwarded       = "mark_awarded"
	MessageTypeRankChanged       = "rank_changed"
	MessageTypePromotionEligible = "promotion_eligible"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	MemberID  string      `json:"member_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MarkUpdate carries a member's mark totals after an award
type MarkUpdate struct {
	UserID             int64 `json:"user_id"`
	TotalMarks         int   `json:"total_marks"`
	MarksAtCurrentRank int   `json:"marks_at_current_rank"`
}

// RankUpdate carries a rank change adopted from the group directory
type RankUpdate struct {
	UserID    int64 `json:"user_id"`
	OldRankID int64 `json:"old_rank_id"`
	NewRankID int64 `json:"new_rank_id"`
}

// PromotionNotice flags a member whose marks hit the rank threshold
type PromotionNotice struct {
	UserID int64 `json:"user_id"`
	RankID int64 `json:"rank_id"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by member ID
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages from clients
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
	client   *Client
	memberID string
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
				// Remove from all member subscriptions
				for memberID, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, memberID)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.memberID]; !ok {
				h.clients[req.memberID] = make(map[*Client]bool)
			}
			h.clients[req.memberID][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "member_id", req.memberID)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.memberID]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.memberID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "member_id", req.memberID)

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

	// If the message targets a member, only send to subscribed clients
	if message.MemberID != "" {
		if clients, ok := h.clients[message.MemberID]; ok {
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

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastMarkAwarded notifies subscribers that a member earned a mark
func (h *Hub) BroadcastMarkAwarded(userID int64, totalMarks, marksAtCurrentRank int) {
	h.enqueue(&Message{
		Type:     MessageTypeMarkAwarded,
		MemberID: strconv.FormatInt(userID, 10),
		Data: MarkUpdate{
			UserID:             userID,
			TotalMarks:         totalMarks,
			MarksAtCurrentRank: marksAtCurrentRank,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastRankChanged notifies subscribers of an adopted rank change
func (h *Hub) BroadcastRankChanged(userID, oldRankID, newRankID int64) {
	h.enqueue(&Message{
		Type:     MessageTypeRankChanged,
		MemberID: strconv.FormatInt(userID, 10),
		Data: RankUpdate{
			UserID:    userID,
			OldRankID: oldRankID,
			NewRankID: newRankID,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastPromotionEligible notifies subscribers that a member's marks
// hit the rank threshold
func (h *Hub) BroadcastPromotionEligible(userID, rankID int64) {
	h.enqueue(&Message{
		Type:     MessageTypePromotionEligible,
		MemberID: strconv.FormatInt(userID, 10),
		Data: PromotionNotice{
			UserID: userID,
			RankID: rankID,
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a member subscription
func (h *Hub) Subscribe(client *Client, memberID string) {
	h.subscribe <- &subscriptionRequest{
		client:   client,
		memberID: memberID,
	}
}

// Unsubscribe removes a client from a member subscription
func (h *Hub) Unsubscribe(client *Client, memberID string) {
	h.unsubscribe <- &subscriptionRequest{
		client:   client,
		memberID: memberID,
	}
}

// GetSubscriberCount returns the number of subscribers for a member
func (h *Hub) GetSubscriberCount(memberID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[memberID]; ok {
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
