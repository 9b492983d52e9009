package internet_bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"meshgate/internal/utils"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Config struct {
	PublicWS       string // ws://host:port/agent
	LocalURL       string // http://localhost:8080
	ServerID       string // unique agent id
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

type requestMsg struct {
	Type    string            `json:"type"`
	ReqId   string            `json:"reqId"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    interface{}       `json:"body"`
}

type responseMsg struct {
	Type   string      `json:"type"`
	ReqId  string      `json:"reqId"`
	Status int         `json:"status"`
	Body   interface{} `json:"body"`
}

// forwardedHeaders are copied from relayed requests to the local request
var forwardedHeaders = []string{"Authorization", "User-Agent"}

// Agent keeps a websocket to the public relay and replays relayed
// requests against the local management surface
type Agent struct {
	cfg    Config
	client *http.Client
	log    *zerolog.Logger
}

func NewAgent(cfg Config) *Agent {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return &Agent{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		log:    utils.Logger("bridge"),
	}
}

// Run reconnects until ctx is cancelled
func (a *Agent) Run(ctx context.Context) {
	for {
		if err := a.session(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn().Err(err).Msg("agent disconnected, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.RetryDelay):
		}
	}
}

func (a *Agent) session(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.PublicWS, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteJSON(v)
	}

	if err := write(map[string]interface{}{"type": "register", "id": a.cfg.ServerID}); err != nil {
		return err
	}
	a.log.Info().Str("relay", a.cfg.PublicWS).Str("id", a.cfg.ServerID).Msg("agent registered")

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		var req requestMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			a.log.Debug().Err(err).Msg("ignoring unreadable relay message")
			continue
		}
		if req.Type != "request" {
			continue
		}

		go func() {
			respBody, status := a.doLocalRequest(ctx, req)
			if err := write(responseMsg{Type: "response", ReqId: req.ReqId, Status: status, Body: respBody}); err != nil {
				a.log.Debug().Err(err).Str("req", req.ReqId).Msg("failed to answer relay")
			}
		}()
	}
}

// doLocalRequest runs a relayed request against the local server
func (a *Agent) doLocalRequest(ctx context.Context, req requestMsg) (interface{}, int) {
	var body io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return "invalid request body", 400
		}
		body = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, a.cfg.LocalURL+req.Path, body)
	if err != nil {
		return "invalid request", 400
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for _, h := range forwardedHeaders {
		if v, ok := req.Headers[h]; ok {
			httpReq.Header.Set(h, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.log.Warn().Err(err).Str("path", req.Path).Msg("local request failed")
		return "local request failed", 500
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "local request failed", 500
	}

	var parsed interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = string(raw)
		}
	}

	return parsed, resp.StatusCode
}
