package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout    = 10 * time.Second
	heartbeatPeriod = 30 * time.Second
	clientSendBuf   = 16
)

// Event is one WebSocket broadcast frame.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Hub fans out broadcast events to every connected WebSocket client.
type Hub struct {
	logger     *zap.Logger
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHub constructs a Hub. Call Run in its own goroutine before
// accepting connections.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run drives the hub's registration/broadcast/heartbeat loop until stop
// is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			for c := range h.clients {
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		case <-ticker.C:
			h.Publish("heartbeat", nil)
		}
	}
}

// Publish broadcasts an event of the given type to every connected
// client. Marshal failures and a full broadcast channel are logged and
// the event dropped; a client whose send buffer is full is disconnected
// by Run — delivery is best-effort.
func (h *Hub) Publish(eventType string, payload interface{}) {
	body, err := json.Marshal(Event{Type: eventType, Payload: payload, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		h.logger.Error("marshaling broadcast event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- body:
	default:
		h.logger.Warn("broadcast channel full, dropping event", zap.String("type", eventType))
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and pumps
// broadcast events to it until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientSendBuf)}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump drains and discards client frames purely to detect
// disconnects; this hub's clients are read-only subscribers.
func (h *Hub) readPump(c *wsClient) {
	defer func() { h.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
