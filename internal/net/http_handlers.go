// Package net exposes the simulation over JSON-over-HTTP: snapshot fetch,
// command submission, and a websocket push variant of the snapshot feed.
package net

import (
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"engain/server/internal/net/ws"
	"engain/server/internal/sim"
	"engain/server/internal/telemetry"
)

// HandlerConfig tunes the HTTP surface.
type HandlerConfig struct {
	Logger  telemetry.Logger
	Metrics *telemetry.Counters
}

// CommandRequest is the generic POST /command body.
type CommandRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckResponse acknowledges a staged command. Acceptance is not success: the
// command's effect, if any, shows up in a later snapshot.
type AckResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Seq    uint64 `json:"seq,omitempty"`
}

// ErrorResponse is the JSON error body for every transport failure.
type ErrorResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// DamageRequest is the POST /combat/damage body.
type DamageRequest struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
}

// TakeRequest is the POST /inventory/take body.
type TakeRequest struct {
	Entity string  `json:"entity"`
	Item   string  `json:"item"`
	Weight float64 `json:"weight"`
}

// ActivateRequest is the POST /quest/activate body.
type ActivateRequest struct {
	Entity string `json:"entity"`
	Quest  string `json:"quest"`
	Goal   int    `json:"goal"`
}

// NewHandler builds the route table over the orchestrator.
func NewHandler(orc *sim.Orchestrator, cfg HandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeError(w, "not_found", nethttp.StatusNotFound)
	})

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			writeError(w, "method_not_allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			writeError(w, "method_not_allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		latest := orc.Latest()
		payload := struct {
			Status     string                         `json:"status"`
			Phase      string                         `json:"phase"`
			ServerTime int64                          `json:"serverTime"`
			Tick       uint64                         `json:"tick"`
			TickRate   int                            `json:"tickRate"`
			Epoch      string                         `json:"epoch"`
			Subsystems map[string]sim.SubsystemTotals `json:"subsystems"`
			Telemetry  map[string]uint64              `json:"telemetry,omitempty"`
		}{
			Status:     "ok",
			Phase:      orc.Phase().String(),
			ServerTime: time.Now().UnixMilli(),
			TickRate:   orc.TickRate(),
			Epoch:      orc.Epoch(),
			Subsystems: orc.AdapterTotals(),
			Telemetry:  cfg.Metrics.Snapshot(),
		}
		if latest != nil {
			payload.Tick = latest.Envelope.Tick
		}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/snapshot", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			writeError(w, "method_not_allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		latest := orc.Latest()
		if latest == nil {
			writeError(w, "unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(latest.Raw)
	})

	mux.HandleFunc("/command", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, "method_not_allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req CommandRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Type == "" {
			writeError(w, "missing_type", nethttp.StatusBadRequest)
			return
		}
		submit(w, orc, req.Type, req.Payload)
	})

	mux.HandleFunc("/combat/damage", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, "method_not_allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req DamageRequest
		if !decodeBody(w, r, &req) {
			return
		}
		submitTyped(w, orc, sim.DeltaCombatAttack, req)
	})

	mux.HandleFunc("/inventory/take", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, "method_not_allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req TakeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		submitTyped(w, orc, sim.DeltaInventoryTake, req)
	})

	mux.HandleFunc("/quest/activate", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, "method_not_allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req ActivateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		submitTyped(w, orc, sim.DeltaQuestActivate, req)
	})

	stream := ws.NewHandler(orc, ws.HandlerConfig{Logger: logger})
	mux.HandleFunc("/stream", stream.Handle)

	return mux
}

func submit(w nethttp.ResponseWriter, orc *sim.Orchestrator, cmdType string, payload json.RawMessage) {
	seq, err := orc.SubmitCommand(cmdType, payload)
	switch {
	case errors.Is(err, sim.ErrQueueFull):
		writeError(w, "queue_full", nethttp.StatusServiceUnavailable)
	case errors.Is(err, sim.ErrShuttingDown):
		writeError(w, "shutting_down", nethttp.StatusServiceUnavailable)
	case err != nil:
		writeError(w, "internal", nethttp.StatusInternalServerError)
	default:
		writeJSON(w, nethttp.StatusOK, AckResponse{Type: "ack", Status: "ok", Seq: seq})
	}
}

func submitTyped(w nethttp.ResponseWriter, orc *sim.Orchestrator, cmdType string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		writeError(w, "internal", nethttp.StatusInternalServerError)
		return
	}
	submit(w, orc, cmdType, payload)
}

func decodeBody(w nethttp.ResponseWriter, r *nethttp.Request, dst any) bool {
	if r.Body == nil {
		writeError(w, "missing_body", nethttp.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		writeError(w, "malformed_body", nethttp.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		nethttp.Error(w, `{"type":"error","status":"internal"}`, nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w nethttp.ResponseWriter, status string, code int) {
	writeJSON(w, code, ErrorResponse{Type: "error", Status: status})
}
