// Package realtime pushes row-change notifications to WebSocket clients.
// Topics are table names; domain services publish a ChangeEvent after every
// successful write, and clients refetch only the views backed by that table
// instead of reloading everything.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Op identifies the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// ChangeEvent is delivered to every client subscribed to the table.
type ChangeEvent struct {
	Table     string    `json:"table"`
	Op        Op        `json:"op"`
	RowID     string    `json:"row_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is what domain services hold to announce row changes. A nil
// publisher is valid; services treat publishing as fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent)
}

// clientMessage is an inbound subscribe/unsubscribe request.
type clientMessage struct {
	Action string   `json:"action"`
	Tables []string `json:"tables"`
}

type client struct {
	id     string
	tables map[string]struct{}
	send   chan []byte
}

// Hub tracks connected clients and their table subscriptions.
type Hub struct {
	mu      sync.RWMutex
	byTable map[string]map[*client]struct{}
	all     map[*client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byTable: make(map[string]map[*client]struct{}),
		all:     make(map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	for table := range c.tables {
		h.dropLocked(table, c)
	}
	delete(h.all, c)
	close(c.send)
}

func (h *Hub) dropLocked(table string, c *client) {
	if subs, ok := h.byTable[table]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.byTable, table)
		}
	}
}

func (h *Hub) subscribe(c *client, tables []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range tables {
		if h.byTable[t] == nil {
			h.byTable[t] = make(map[*client]struct{})
		}
		h.byTable[t][c] = struct{}{}
		c.tables[t] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *client, tables []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range tables {
		h.dropLocked(t, c)
		delete(c.tables, t)
	}
}

// Publish broadcasts the event to every subscriber of its table. Clients
// whose send buffer is full are skipped rather than blocked on.
func (h *Hub) Publish(_ context.Context, event ChangeEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("realtime: marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.byTable[event.Table] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// SubscriberCount returns the number of clients subscribed to a table.
func (h *Hub) SubscriberCount(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTable[table])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced at the HTTP layer.
	},
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *Hub) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.handleConnect)
}

func (h *Hub) handleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{
		id:     uuid.NewString(),
		tables: make(map[string]struct{}),
		send:   make(chan []byte, 256),
	}
	h.register(cl)

	go h.writePump(cl, ws)
	go h.readPump(cl, ws)
	return nil
}

func (h *Hub) readPump(cl *client, ws *websocket.Conn) {
	defer func() {
		h.unregister(cl)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // ignore malformed messages
		}
		switch msg.Action {
		case "subscribe":
			h.subscribe(cl, msg.Tables)
		case "unsubscribe":
			h.unsubscribe(cl, msg.Tables)
		}
	}
}

func (h *Hub) writePump(cl *client, ws *websocket.Conn) {
	defer ws.Close()
	for message := range cl.send {
		if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
