package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeTicketEvent MessageType = "ticket_event"
	MessageTypeError       MessageType = "error"
)

// Ticket event names pushed to desk subscribers
const (
	EventTicketCreated   = "ticket_created"
	EventMessageAppended = "message_appended"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    MessageType `json:"type"`
	DeskID  uint        `json:"desk_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TicketEventPayload is pushed to desk subscribers when a ticket changes
type TicketEventPayload struct {
	Event     string `json:"event"`
	TicketID  uint   `json:"ticket_id"`
	MessageID uint   `json:"message_id,omitempty"`
	At        string `json:"at"`
}

// Hub maintains the set of active clients and broadcasts ticket events
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Desk subscriptions: deskID -> set of clients
	subscriptions map[uint]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Subscribe to desk
	subscribe chan *subscriptionRequest

	// Unsubscribe from desk
	unsubscribeDesk chan *subscriptionRequest

	// Broadcast to desk subscribers
	broadcast chan *broadcastMessage

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger
}

type subscriptionRequest struct {
	client *Client
	deskID uint
}

type broadcastMessage struct {
	deskID  uint
	message []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		subscriptions:   make(map[uint]map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		subscribe:       make(chan *subscriptionRequest),
		unsubscribeDesk: make(chan *subscriptionRequest),
		broadcast:       make(chan *broadcastMessage, 256),
		logger:          logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client registered")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				// Remove from all subscriptions
				for deskID, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, deskID)
					}
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unregistered")
			}

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.deskID] == nil {
				h.subscriptions[req.deskID] = make(map[*Client]bool)
			}
			h.subscriptions[req.deskID][req.client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client subscribed to desk", slog.Uint64("desk_id", uint64(req.deskID)))
			}

		case req := <-h.unsubscribeDesk:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.deskID]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.deskID)
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unsubscribed from desk", slog.Uint64("desk_id", uint64(req.deskID)))
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			subscribers := h.subscriptions[msg.deskID]
			for client := range subscribers {
				select {
				case client.send <- msg.message:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
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

// Subscribe subscribes a client to a desk
func (h *Hub) Subscribe(client *Client, deskID uint) {
	h.subscribe <- &subscriptionRequest{client: client, deskID: deskID}
}

// Unsubscribe unsubscribes a client from a desk
func (h *Hub) Unsubscribe(client *Client, deskID uint) {
	h.unsubscribeDesk <- &subscriptionRequest{client: client, deskID: deskID}
}

// NotifyTicketEvent broadcasts a ticket event to desk subscribers. It is
// the hub's half of the ingestion notifier contract.
func (h *Hub) NotifyTicketEvent(deskID uint, event string, ticketID, messageID uint) {
	msg := WSMessage{
		Type:   MessageTypeTicketEvent,
		DeskID: deskID,
		Payload: &TicketEventPayload{
			Event:     event,
			TicketID:  ticketID,
			MessageID: messageID,
			At:        time.Now().UTC().Format(time.RFC3339),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		}
		return
	}

	h.broadcast <- &broadcastMessage{
		deskID:  deskID,
		message: data,
	}
}
