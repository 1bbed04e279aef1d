package sim

import (
	"encoding/json"
	"time"
)

// Command represents an intent captured for processing on the next tick. The
// transport layer submits commands; the orchestrator turns each into a delta
// addressed to the subsystem named by the type prefix.
type Command struct {
	Seq      uint64          `json:"seq"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	IssuedAt time.Time       `json:"issuedAt"`
}

// Delta converts the command into its subsystem delta, carrying the sequence
// number through for at-most-once accounting.
func (c Command) Delta() Delta {
	return Delta{Seq: c.Seq, Type: c.Type, Payload: c.Payload}
}
