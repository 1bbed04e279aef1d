// Package ws pushes published envelopes over a websocket so clients that
// prefer a feed over polling receive exactly the bytes /snapshot serves.
package ws

import (
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"engain/server/internal/sim"
	"engain/server/internal/telemetry"
)

const writeWait = 10 * time.Second

// HandlerConfig tunes the stream handler.
type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler upgrades connections and streams each newly published envelope.
type Handler struct {
	orc      *sim.Orchestrator
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a stream handler over the orchestrator.
func NewHandler(orc *sim.Orchestrator, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	return &Handler{
		orc:    orc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the request and writes envelopes until the peer goes away
// or the orchestrator stops. The send pace follows the tick rate; slow peers
// hit the write deadline and are dropped, never stalling the simulation.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Discard inbound frames so pings and close handshakes are serviced.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := time.Second / time.Duration(h.orc.TickRate())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSent uint64
	sentAny := false
	for range ticker.C {
		if phase := h.orc.Phase(); phase == sim.PhaseStopped {
			return
		}
		latest := h.orc.Latest()
		if latest == nil {
			continue
		}
		if sentAny && latest.Envelope.Tick == lastSent {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, latest.Raw); err != nil {
			return
		}
		lastSent = latest.Envelope.Tick
		sentAny = true
	}
}
