package net

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"engain/server/internal/protocol"
	"engain/server/internal/sim"
	"engain/server/internal/telemetry"
)

func newTestServer(t *testing.T) (*sim.Orchestrator, *httptest.Server) {
	t.Helper()
	orc, err := sim.New(sim.Config{Metrics: telemetry.NewCounters()}, sim.DefaultAdapters(), sim.DefaultAlertHandlers())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	server := httptest.NewServer(NewHandler(orc, HandlerConfig{Metrics: telemetry.NewCounters()}))
	t.Cleanup(server.Close)
	return orc, server
}

func postJSON(t *testing.T, url string, body any) *nethttp.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := nethttp.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *nethttp.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestSnapshotServesValidEnvelope(t *testing.T) {
	orc, server := newTestServer(t)
	orc.RunTick(0.05)

	resp, err := nethttp.Get(server.URL + "/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var env protocol.Envelope
	decodeResponse(t, resp, &env)
	if _, err := protocol.Unwrap(env, true); err != nil {
		t.Fatalf("served envelope failed validation: %v", err)
	}
	if env.Tick != 1 {
		t.Fatalf("envelope tick = %d, want 1", env.Tick)
	}
}

func TestCommandReturnsAckWithSeq(t *testing.T) {
	orc, server := newTestServer(t)

	resp := postJSON(t, server.URL+"/command", CommandRequest{
		Type:    sim.DeltaQuestActivate,
		Payload: json.RawMessage(`{"entity":"hero","quest":"scout","goal":1}`),
	})
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("command status = %d", resp.StatusCode)
	}
	var ack AckResponse
	decodeResponse(t, resp, &ack)
	if ack.Type != "ack" || ack.Status != "ok" || ack.Seq == 0 {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	orc.RunTick(0.05)
	latest := orc.Latest()
	if latest.Snapshot.Tick != 1 {
		t.Fatalf("tick did not advance: %d", latest.Snapshot.Tick)
	}
}

func TestCommandWithoutTypeRejected(t *testing.T) {
	_, server := newTestServer(t)
	resp := postJSON(t, server.URL+"/command", map[string]any{"payload": map[string]any{}})
	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body ErrorResponse
	decodeResponse(t, resp, &body)
	if body.Type != "error" || body.Status != "missing_type" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestCommandMalformedBodyRejected(t *testing.T) {
	_, server := newTestServer(t)
	resp, err := nethttp.Post(server.URL+"/command", "application/json", bytes.NewReader([]byte(`{"type":`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCommandWrongMethodRejected(t *testing.T) {
	_, server := newTestServer(t)
	resp, err := nethttp.Get(server.URL + "/command")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestUnknownRouteReturnsJSONNotFound(t *testing.T) {
	_, server := newTestServer(t)
	resp, err := nethttp.Get(server.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != nethttp.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body ErrorResponse
	decodeResponse(t, resp, &body)
	if body.Type != "error" || body.Status != "not_found" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestConvenienceRoutesStageTypedCommands(t *testing.T) {
	orc, server := newTestServer(t)

	resp := postJSON(t, server.URL+"/quest/activate", ActivateRequest{Entity: "hero", Quest: "scout", Goal: 2})
	var ack AckResponse
	decodeResponse(t, resp, &ack)
	if ack.Status != "ok" {
		t.Fatalf("activate ack: %+v", ack)
	}
	orc.RunTick(0.05)

	resp = postJSON(t, server.URL+"/combat/damage", DamageRequest{Source: "a", Target: "b", Amount: 5})
	decodeResponse(t, resp, &ack)
	if ack.Status != "ok" {
		t.Fatalf("damage ack: %+v", ack)
	}

	resp = postJSON(t, server.URL+"/inventory/take", TakeRequest{Entity: "hero", Item: "rope", Weight: 1})
	decodeResponse(t, resp, &ack)
	if ack.Status != "ok" {
		t.Fatalf("take ack: %+v", ack)
	}
}

func TestDiagnosticsReportsPhaseAndEpoch(t *testing.T) {
	orc, server := newTestServer(t)
	orc.RunTick(0.05)

	resp, err := nethttp.Get(server.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	var body struct {
		Status     string                         `json:"status"`
		Phase      string                         `json:"phase"`
		Tick       uint64                         `json:"tick"`
		TickRate   int                            `json:"tickRate"`
		Epoch      string                         `json:"epoch"`
		Subsystems map[string]sim.SubsystemTotals `json:"subsystems"`
	}
	decodeResponse(t, resp, &body)
	if body.Status != "ok" || body.Phase != "initializing" {
		t.Fatalf("unexpected diagnostics: %+v", body)
	}
	if body.Tick != 1 || body.TickRate != 30 {
		t.Fatalf("unexpected diagnostics: %+v", body)
	}
	if body.Epoch != orc.Epoch() {
		t.Fatalf("diagnostics epoch %q, want %q", body.Epoch, orc.Epoch())
	}
	if _, exists := body.Subsystems[sim.SubsystemCombat]; !exists {
		t.Fatalf("diagnostics missing subsystem totals: %+v", body.Subsystems)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, server := newTestServer(t)
	resp, err := nethttp.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}
