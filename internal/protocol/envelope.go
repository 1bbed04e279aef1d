// Package protocol implements the envelope wrapped around every snapshot
// exchanged between the simulation authority and its clients. It is the sole
// implementation of envelope validation; both ends call into it and neither
// reimplements the checks.
package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

const (
	// Name is the fixed protocol identifier carried by every envelope.
	Name = "engain-sync"
	// Version is the only wire version this build speaks. Mismatches are
	// hard rejections; there is no cross-version subset behavior.
	Version = "1.0.0"

	hashPrefix = "sha256:"
)

// Envelope wraps one snapshot payload with integrity and compatibility
// metadata.
type Envelope struct {
	Protocol string          `json:"protocol"`
	Version  string          `json:"version"`
	Tick     uint64          `json:"tick"`
	Epoch    string          `json:"epoch"`
	Payload  json.RawMessage `json:"payload"`
	Hash     string          `json:"hash"`
}

// NewEpoch mints the opaque session identifier fixed for the lifetime of one
// simulation process. A change in epoch signals a world reset to clients.
func NewEpoch() string {
	return uuid.NewString()
}

// HashPayload computes the content hash recorded in the envelope.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// Wrap serializes payload and returns the envelope carrying it. Serialization
// is deterministic for a fixed payload value (encoding/json emits struct
// fields in declaration order and map keys sorted).
func Wrap(payload any, tick uint64, epoch string) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, newError(ReasonMalformed, "marshal payload: %v", err)
	}
	return Envelope{
		Protocol: Name,
		Version:  Version,
		Tick:     tick,
		Epoch:    epoch,
		Payload:  data,
		Hash:     HashPayload(data),
	}, nil
}

// Unwrap validates the envelope and returns its payload. Validation order:
// protocol name, version, required fields, then the content hash when
// verifyHash is set. Every failure is an *Error.
func Unwrap(env Envelope, verifyHash bool) (json.RawMessage, error) {
	if env.Protocol != Name {
		return nil, newError(ReasonProtocolMismatch, "got %q, want %q", env.Protocol, Name)
	}
	if env.Version != Version {
		return nil, newError(ReasonVersionMismatch, "got %q, want %q", env.Version, Version)
	}
	if env.Epoch == "" {
		return nil, newError(ReasonMissingField, "epoch")
	}
	if len(env.Payload) == 0 {
		return nil, newError(ReasonMissingField, "payload")
	}
	if env.Hash == "" {
		return nil, newError(ReasonMissingField, "hash")
	}
	if verifyHash {
		if computed := HashPayload(env.Payload); computed != env.Hash {
			return nil, newError(ReasonHashMismatch, "stored %q, computed %q", env.Hash, computed)
		}
	}
	return env.Payload, nil
}

// Decode parses raw envelope bytes, rejecting documents that omit required
// fields. Unmarshalling into Envelope directly cannot distinguish a missing
// tick from tick zero, so decoding goes through a shadow struct of pointers.
func Decode(data []byte) (Envelope, error) {
	var shadow struct {
		Protocol *string          `json:"protocol"`
		Version  *string          `json:"version"`
		Tick     *uint64          `json:"tick"`
		Epoch    *string          `json:"epoch"`
		Payload  *json.RawMessage `json:"payload"`
		Hash     *string          `json:"hash"`
	}
	if err := json.Unmarshal(data, &shadow); err != nil {
		return Envelope{}, newError(ReasonMalformed, "decode envelope: %v", err)
	}
	for field, present := range map[string]bool{
		"protocol": shadow.Protocol != nil,
		"version":  shadow.Version != nil,
		"tick":     shadow.Tick != nil,
		"epoch":    shadow.Epoch != nil,
		"payload":  shadow.Payload != nil,
		"hash":     shadow.Hash != nil,
	} {
		if !present {
			return Envelope{}, newError(ReasonMissingField, "%s", field)
		}
	}
	return Envelope{
		Protocol: *shadow.Protocol,
		Version:  *shadow.Version,
		Tick:     *shadow.Tick,
		Epoch:    *shadow.Epoch,
		Payload:  *shadow.Payload,
		Hash:     *shadow.Hash,
	}, nil
}
