package broker

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/majorswap/relayer/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// WebSocket event names.
const (
	EventWelcome       = "welcome"
	EventQuoteRequest  = "quote-request"
	EventQuoteResponse = "quote-response"

	// Inbound events
	EventClientQuoteRequest    = "client:quote-request"
	EventResolverQuoteResponse = "resolver:quote-response"
)

// Role distinguishes swap clients from resolvers.
type Role string

const (
	RoleClient   Role = "client"
	RoleResolver Role = "resolver"
)

// Envelope is the wire format for WebSocket messages in both directions.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Client is a connected WebSocket peer.
type Client struct {
	id   string
	role Role
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// ID returns the connection identifier assigned at upgrade time.
func (c *Client) ID() string { return c.id }

// Send queues an event for delivery to the peer.
func (c *Client) Send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(&Envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

// Hub manages WebSocket connections and routes quote traffic between
// clients and resolvers through the broker.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broker     *Broker
	log        *logging.Logger
	mu         sync.RWMutex
}

// NewHub creates a hub wired to the given broker.
func NewHub(b *Broker) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broker:     b,
		log:        logging.GetDefault().Component("ws"),
	}
	b.SetResolvers(h)
	return h
}

// Run starts the hub event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("WebSocket client connected", "id", client.id, "role", client.role, "clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.broker.DisconnectClient(client.id)
			h.log.Debug("WebSocket client disconnected", "id", client.id, "clients", len(h.clients))
		}
	}
}

// BroadcastResolvers sends an event to every connected resolver.
func (h *Hub) BroadcastResolvers(event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.role != RoleResolver {
			continue
		}
		if err := client.Send(event, payload); err != nil {
			h.log.Warn("Resolver send failed", "id", client.id, "error", err)
		}
	}
}

// ClientCount returns the number of connected peers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ResolverCount returns the number of connected resolvers.
func (h *Hub) ResolverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.role == RoleResolver {
			n++
		}
	}
	return n
}

// ServeWS upgrades an HTTP request to a WebSocket connection. The role
// is taken from the "role" query parameter and defaults to client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	role := RoleClient
	if Role(r.URL.Query().Get("role")) == RoleResolver {
		role = RoleResolver
	}

	client := &Client{
		id:   uuid.New().String(),
		role: role,
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	client.Send(EventWelcome, map[string]interface{}{
		"clientId": client.id,
		"role":     client.role,
	})
}

// readPump reads messages from the WebSocket connection and dispatches
// them through the broker.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket read error", "error", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.log.Debug("Dropping malformed message", "id", c.id, "error", err)
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *Envelope) {
	switch env.Event {
	case EventClientQuoteRequest:
		var req QuoteRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.Send(EventQuoteResponse, errAnswer("", "malformed quote request"))
			return
		}
		if _, err := c.hub.broker.SubmitQuoteRequest(c, &req); err != nil {
			c.Send(EventQuoteResponse, errAnswer("", err.Error()))
		}

	case EventResolverQuoteResponse:
		if c.role != RoleResolver {
			c.hub.log.Warn("Quote response from non-resolver", "id", c.id)
			return
		}
		var resp QuoteResponse
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			c.hub.log.Debug("Malformed resolver response", "id", c.id, "error", err)
			return
		}
		c.hub.broker.HandleResolverResponse(&resp)

	default:
		c.hub.log.Debug("Unknown event", "id", c.id, "event", env.Event)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
