package sim

import (
	"encoding/json"
	"strings"
)

// Delta is a single proposed state change addressed to one subsystem. A delta
// is applied atomically or not at all; there is no partial application.
type Delta struct {
	// Seq is assigned once at intake and never reused, which is what makes
	// at-most-once accounting checkable.
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Subsystem returns the routing prefix of the delta type ("combat" for
// "combat/attack"), or empty when the type carries no prefix.
func (d Delta) Subsystem() string {
	idx := strings.IndexByte(d.Type, '/')
	if idx <= 0 {
		return ""
	}
	return d.Type[:idx]
}

// Alert is an ephemeral notification describing a side effect of applying
// deltas. Alerts are consumed by the orchestrator's dispatch step and never
// persist into the snapshot.
type Alert struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}
