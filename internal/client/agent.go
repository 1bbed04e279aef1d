// Package client implements the synchronization contract a rendering client
// must follow. All envelope validation is delegated to the protocol package;
// this package adds only the session state the checks need (the pinned epoch
// and the last tick seen).
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"engain/server/internal/protocol"
)

// Update is the result of ingesting one validated envelope.
type Update struct {
	Tick    uint64
	Payload json.RawMessage
	// Fresh is false when the envelope repeats a tick the agent already
	// consumed, which happens whenever the poll rate outruns the tick rate.
	Fresh bool
	// WorldReset is set when the envelope's epoch differs from the pinned
	// session epoch: the server restarted and all interpolation or cached
	// entity state must be discarded, not reconciled.
	WorldReset bool
}

// SyncAgent polls the transport and validates envelopes before releasing
// payloads to presentation consumers. A payload that fails validation is
// never released, not even partially.
type SyncAgent struct {
	http    *http.Client
	baseURL string

	epoch    string
	pinned   bool
	lastTick uint64
}

// NewSyncAgent constructs an agent polling the given server base URL. The
// timeout bounds each poll independently of the server's tick rate.
func NewSyncAgent(baseURL string, timeout time.Duration) *SyncAgent {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SyncAgent{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Poll fetches /snapshot and ingests the response.
func (a *SyncAgent) Poll(ctx context.Context) (Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/snapshot", nil)
	if err != nil {
		return Update{}, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return Update{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Update{}, fmt.Errorf("snapshot fetch returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Update{}, fmt.Errorf("read snapshot body: %w", err)
	}
	return a.Ingest(body)
}

// Ingest validates raw envelope bytes and returns the payload on success.
// The first envelope pins the session epoch; any later envelope carrying a
// different epoch is reported as a world reset and re-pins the session.
func (a *SyncAgent) Ingest(data []byte) (Update, error) {
	env, err := protocol.Decode(data)
	if err != nil {
		return Update{}, err
	}
	payload, err := protocol.Unwrap(env, true)
	if err != nil {
		return Update{}, err
	}

	update := Update{Tick: env.Tick, Payload: payload, Fresh: true}
	if !a.pinned {
		a.epoch = env.Epoch
		a.pinned = true
	} else if env.Epoch != a.epoch {
		update.WorldReset = true
		a.epoch = env.Epoch
		a.lastTick = 0
	}
	if !update.WorldReset && env.Tick <= a.lastTick {
		update.Fresh = false
		return update, nil
	}
	a.lastTick = env.Tick
	return update, nil
}

// Epoch returns the pinned session epoch, empty before the first envelope.
func (a *SyncAgent) Epoch() string {
	if a == nil || !a.pinned {
		return ""
	}
	return a.epoch
}
