package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bengal-ssg/bengal/internal/diagnostics"
)

// Event is one message pushed to connected clients. Type mirrors the reload
// decision actions, plus "building" while a rebuild runs and "error" when it
// fails.
type Event struct {
	Type   string                    `json:"type"`
	Paths  []string                  `json:"paths,omitempty"`
	Errors []*diagnostics.Diagnostic `json:"errors,omitempty"`
}

var upgrader = websocket.Upgrader{
	// The dev server binds locally; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans reload events out to every connected browser.
type Hub struct {
	log *slog.Logger

	mu         sync.Mutex
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	once       sync.Once
}

// NewHub creates a hub ready to accept connections.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		log:        log,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run processes register, unregister, and broadcast events until Stop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and closes every client connection.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Broadcast sends an event to all connected clients. Events are dropped when
// the queue is full rather than blocking a build.
func (h *Hub) Broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("marshaling reload event", "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Debug("reload event dropped, queue full", "type", ev.Type)
	}
}

// HandleWS upgrades the connection and registers it with the hub. The
// connection unregisters itself when the client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
				conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
