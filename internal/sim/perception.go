package sim

import (
	"encoding/json"
	"sort"
)

// SubsystemPerception names the subsystem that owns visibility sets.
const SubsystemPerception = "perception"

// Perception delta types.
const (
	DeltaPerceptionAttune  = "perception/attune"
	DeltaPerceptionDisable = "perception/disable"
	DeltaPerceptionEnable  = "perception/enable"
)

// Perception alert types.
const (
	AlertPerceptionSpotted  = "perception/spotted"
	AlertPerceptionRejected = "perception/rejected"
)

// PerceptionEntity is the kernel-side sensing record for one entity.
type PerceptionEntity struct {
	Range    float64  `json:"range"`
	Visible  []string `json:"visible"`
	Disabled bool     `json:"disabled,omitempty"`
}

// PerceptionState is the perception sub-tree.
type PerceptionState struct {
	Entities map[string]PerceptionEntity `json:"entities"`
}

// CloneState implements State.
func (s *PerceptionState) CloneState() State {
	copied := &PerceptionState{Entities: make(map[string]PerceptionEntity, len(s.Entities))}
	for id, entity := range s.Entities {
		entity.Visible = append(entity.Visible[:0:0], entity.Visible...)
		copied.Entities[id] = entity
	}
	return copied
}

// WireView implements State.
func (s *PerceptionState) WireView() any { return s.Entities }

type perceptionAttunePayload struct {
	ID    string  `json:"id"`
	Range float64 `json:"range"`
}

type perceptionTargetPayload struct {
	ID string `json:"id"`
}

// PerceptionKernel recomputes visibility sets from the merged entity view.
// It runs after spatial in the tick order, so it sees this tick's positions.
type PerceptionKernel struct{}

// Name implements Kernel.
func (PerceptionKernel) Name() string { return SubsystemPerception }

// EmptyState implements Kernel.
func (PerceptionKernel) EmptyState() State {
	return &PerceptionState{Entities: make(map[string]PerceptionEntity)}
}

// Step applies attune/disable deltas, then rebuilds each active perceiver's
// visible set. Visible sets are sorted so output is deterministic, and a
// spotted alert fires only for ids newly visible this tick.
func (PerceptionKernel) Step(entities Entities, state State, deltas []Delta, _ float64) (State, []Delta, []Alert) {
	current := state.(*PerceptionState)
	next := current.CloneState().(*PerceptionState)

	var accepted []Delta
	var alerts []Alert
	for _, delta := range deltas {
		switch delta.Type {
		case DeltaPerceptionAttune:
			var p perceptionAttunePayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" || p.Range <= 0 {
				alerts = append(alerts, rejectionAlert(AlertPerceptionRejected, delta, "malformed_payload"))
				continue
			}
			entity := next.Entities[p.ID]
			entity.Range = p.Range
			next.Entities[p.ID] = entity
			accepted = append(accepted, delta)
		case DeltaPerceptionDisable, DeltaPerceptionEnable:
			var p perceptionTargetPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" {
				alerts = append(alerts, rejectionAlert(AlertPerceptionRejected, delta, "malformed_payload"))
				continue
			}
			entity, exists := next.Entities[p.ID]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertPerceptionRejected, delta, "unknown_entity"))
				continue
			}
			entity.Disabled = delta.Type == DeltaPerceptionDisable
			if entity.Disabled {
				entity.Visible = nil
			}
			next.Entities[p.ID] = entity
			accepted = append(accepted, delta)
		default:
		}
	}

	ids := make([]string, 0, len(next.Entities))
	for id := range next.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		perceiver := next.Entities[id]
		if perceiver.Disabled || perceiver.Range <= 0 {
			continue
		}
		self, located := entities[id]
		if !located {
			continue
		}
		previous := make(map[string]bool, len(perceiver.Visible))
		for _, seen := range perceiver.Visible {
			previous[seen] = true
		}

		visible := make([]string, 0)
		rangeSq := perceiver.Range * perceiver.Range
		for otherID, other := range entities {
			if otherID == id {
				continue
			}
			if other.Pos.Sub(self.Pos).LengthSq() <= rangeSq {
				visible = append(visible, otherID)
			}
		}
		sort.Strings(visible)

		for _, seen := range visible {
			if !previous[seen] {
				alerts = append(alerts, Alert{Type: AlertPerceptionSpotted, Payload: map[string]any{
					"entity":  id,
					"spotted": seen,
				}})
			}
		}
		perceiver.Visible = visible
		next.Entities[id] = perceiver
	}

	return next, accepted, alerts
}
