package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024

	// Outbound messages buffered per client before it is considered too slow.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	// The monitor listens on a local address and is protected by a bearer token.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active monitor clients and broadcasts pipeline events to them.
// It implements domain.EventPublisher.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Encoded messages for every client.
	broadcast chan []byte

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// status returns the snapshot sent to clients on connect
	status func() interface{}

	// Closed when Run returns.
	done chan struct{}

	logger *zap.Logger
}

var _ domain.EventPublisher = (*Hub)(nil)

// NewHub creates a new WebSocket hub. status may be nil.
func NewHub(status func() interface{}, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		status:     status,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done, closing every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case message := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				h.logger.Warn("Dropping slow client", zap.String("clientID", client.id))
				h.remove(client)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Publish broadcasts event to every client. It never blocks; events are dropped when
// the broadcast buffer is full.
func (h *Hub) Publish(event domain.Event) {
	payload, err := json.Marshal(NewEventMessage(event))
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("Broadcast buffer full, dropping event", zap.String("type", string(event.Type)))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	id     string
	logger *zap.Logger
}

// HandleWebSocket upgrades the request and attaches a new monitor client to the hub
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		id:     uuid.NewString(),
		logger: logger,
	}

	// The snapshot is queued before registration so it always precedes broadcast events.
	if hub.status != nil {
		if payload, err := json.Marshal(NewStatusMessage(hub.status())); err == nil {
			client.send <- payload
		}
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump reads client requests until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) processMessage(message []byte) {
	parsed, err := ParseMessage(message)
	if err != nil {
		c.logger.Warn("Invalid client message", zap.Error(err))
		c.enqueue(NewErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *PingMessage:
		c.enqueue(NewPongMessage(msg.Data))
	case *BaseMessage:
		c.sendStatus()
	}
}

func (c *Client) sendStatus() {
	if c.hub.status == nil {
		return
	}
	c.enqueue(NewStatusMessage(c.hub.status()))
}

// enqueue queues a direct reply to this client. The hub owns closing c.send, so the
// send happens under its read lock and only while the client is still registered.
func (c *Client) enqueue(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Client send buffer full, dropping reply", zap.String("clientID", c.id))
	}
}
