package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"meshgate/internal/engine"
	"meshgate/internal/web/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
	eventBufferSize   = 64
)

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans engine events out to websocket clients. Slow clients
// lose events instead of stalling the engine.
type EventHub struct {
	mu       sync.RWMutex
	clients  map[*eventClient]struct{}
	upgrader websocket.Upgrader
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*eventClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Publish is an engine listener
func (h *EventHub) Publish(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		apiLogger().Warn().Err(err).Msg("failed to encode event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		select {
		case cl.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients
func (h *EventHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func (h *EventHub) remove(cl *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func (h *EventHub) serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		apiLogger().Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	cl := &eventClient{conn: conn, send: make(chan []byte, eventBufferSize)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	apiLogger().Debug().Str("remote", c.Request.RemoteAddr).Msg("event client connected")

	go h.write(cl)

	// reads only to notice the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(cl)
}

func (h *EventHub) write(cl *eventClient) {
	ticker := time.NewTicker(eventPingInterval)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case data, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func RegisterEventRoutes(r *gin.Engine, middleware *middleware.MiddlewareManager, hub *EventHub) {
	r.GET("/api/:apikey/events", middleware.RequireApikey(), hub.serve)
}
