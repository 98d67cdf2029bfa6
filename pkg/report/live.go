package report

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tumaini/pesaflow/pkg/config"
	"github.com/tumaini/pesaflow/pkg/etl"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = non-browser client (curl, tooling).
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// RunHub pushes each finished pipeline run's summary to connected dashboard
// clients, replacing interval polling.
type RunHub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	log        zerolog.Logger

	mu sync.RWMutex
}

// NewRunHub creates a run-summary hub.
func NewRunHub(log zerolog.Logger) *RunHub {
	return &RunHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, config.WSChannelBuffer),
		unregister: make(chan *websocket.Conn, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
		log:        log.With().Str("component", "run_hub").Logger(),
	}
}

// Run starts the hub's main loop.
func (h *RunHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("total", count).Msg("live client connected")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.unregister <- conn
			}
		}
	}
}

// BroadcastRun pushes one run summary to every connected client. Dropped if
// the broadcast buffer is full; the next run will carry fresher numbers
// anyway.
func (h *RunHub) BroadcastRun(result *etl.RunResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode run summary")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn().Msg("broadcast buffer full, run summary dropped")
	}
}

// HandleLive upgrades GET /v1/live to a websocket and registers the client.
func (h *RunHub) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.register <- conn

	// Drain the read side so close frames are processed.
	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
