package internet_bridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"meshgate/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type relayAgent struct {
	ID  string
	WS  *websocket.Conn
	Mux sync.Mutex
}

// Relay is the public side of remote access. Gateways connect on /agent;
// every other request is forwarded to the gateway named by X-Server-ID.
type Relay struct {
	agentsMux sync.Mutex
	agents    map[string]*relayAgent

	pendingMux sync.Mutex
	pending    map[string]chan responseMsg

	upgrader websocket.Upgrader
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewRelay(timeout time.Duration) *Relay {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Relay{
		agents:  map[string]*relayAgent{},
		pending: map[string]chan responseMsg{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		timeout: timeout,
		log:     utils.Logger("bridge"),
	}
}

// Router builds the relay routes
func (r *Relay) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/agent", r.handleAgent)
	router.NoRoute(r.handleClientRequest)
	return router
}

// Online reports whether an agent is registered under id
func (r *Relay) Online(id string) bool {
	r.agentsMux.Lock()
	defer r.agentsMux.Unlock()
	_, ok := r.agents[id]
	return ok
}

func (r *Relay) handleAgent(c *gin.Context) {
	ws, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	var agentID string
	defer func() {
		if agentID != "" {
			r.agentsMux.Lock()
			delete(r.agents, agentID)
			r.agentsMux.Unlock()
			r.log.Info().Str("id", agentID).Msg("agent gone")
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var data struct {
			Type   string      `json:"type"`
			ID     string      `json:"id"`
			ReqId  string      `json:"reqId"`
			Status int         `json:"status"`
			Body   interface{} `json:"body"`
		}
		if err := json.Unmarshal(msg, &data); err != nil {
			continue
		}

		switch data.Type {
		case "register":
			if data.ID == "" {
				continue
			}
			agentID = data.ID
			r.log.Info().Str("id", agentID).Msg("agent registered")

			r.agentsMux.Lock()
			r.agents[agentID] = &relayAgent{ID: agentID, WS: ws}
			r.agentsMux.Unlock()

		case "response":
			r.pendingMux.Lock()
			ch, ok := r.pending[data.ReqId]
			if ok {
				delete(r.pending, data.ReqId)
			}
			r.pendingMux.Unlock()
			if ok {
				ch <- responseMsg{Type: "response", ReqId: data.ReqId, Status: data.Status, Body: data.Body}
			}
		}
	}
}

func (r *Relay) handleClientRequest(c *gin.Context) {
	agentID := c.GetHeader("X-Server-ID")
	if agentID == "" {
		c.JSON(490, gin.H{"error": "Missing X-Server-ID"})
		return
	}

	r.agentsMux.Lock()
	agent, ok := r.agents[agentID]
	r.agentsMux.Unlock()

	if !ok {
		c.JSON(491, gin.H{"error": "Agent offline"})
		return
	}

	var body interface{}
	_ = c.ShouldBindJSON(&body) // requests without a body are fine

	headers := make(map[string]string)
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	reqId := uuid.NewString()
	msg := requestMsg{
		Type:    "request",
		ReqId:   reqId,
		Method:  c.Request.Method,
		Path:    c.Request.URL.RequestURI(),
		Headers: headers,
		Body:    body,
	}

	respChan := make(chan responseMsg, 1)
	r.pendingMux.Lock()
	r.pending[reqId] = respChan
	r.pendingMux.Unlock()
	defer func() {
		r.pendingMux.Lock()
		delete(r.pending, reqId)
		r.pendingMux.Unlock()
	}()

	agent.Mux.Lock()
	err := agent.WS.WriteJSON(msg)
	agent.Mux.Unlock()
	if err != nil {
		c.JSON(502, gin.H{"error": "Agent unreachable"})
		return
	}

	select {
	case resp := <-respChan:
		c.JSON(resp.Status, resp.Body)

	case <-time.After(r.timeout):
		c.JSON(504, gin.H{"error": "Timeout"})
	}
}
