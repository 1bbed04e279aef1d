package sim

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"sort"
)

// SubsystemBehavior names the subsystem that owns movement intent.
const SubsystemBehavior = "behavior"

// Behavior delta types.
const (
	DeltaBehaviorAssign  = "behavior/assign"
	DeltaBehaviorDisable = "behavior/disable"
)

// Behavior alert types.
const (
	AlertBehaviorHeadingChanged = "behavior/heading_changed"
	AlertBehaviorRejected       = "behavior/rejected"
)

// Behavior modes.
const (
	BehaviorModeIdle     = "idle"
	BehaviorModeWander   = "wander"
	BehaviorModeDisabled = "disabled"
)

// How long a wandering entity holds one heading before re-rolling, in
// simulated seconds.
const wanderHoldSeconds = 3.0

// BehaviorEntity is the kernel-side intent record for one entity.
type BehaviorEntity struct {
	Mode    string  `json:"mode"`
	Heading Vec3    `json:"heading"`
	Clock   float64 `json:"clock"`
	Speed   float64 `json:"speed"`
}

// BehaviorState is the behavior sub-tree.
type BehaviorState struct {
	Entities map[string]BehaviorEntity `json:"entities"`
}

// CloneState implements State.
func (s *BehaviorState) CloneState() State {
	copied := &BehaviorState{Entities: make(map[string]BehaviorEntity, len(s.Entities))}
	for id, entity := range s.Entities {
		copied.Entities[id] = entity
	}
	return copied
}

// WireView implements State.
func (s *BehaviorState) WireView() any { return s.Entities }

type behaviorAssignPayload struct {
	ID    string  `json:"id"`
	Mode  string  `json:"mode"`
	Speed float64 `json:"speed"`
}

type behaviorTargetPayload struct {
	ID string `json:"id"`
}

// BehaviorKernel drives wander headings. Randomness is replaced by a hash of
// the entity id and the wander interval index, so two runs over the same
// inputs roll identical headings.
type BehaviorKernel struct{}

// Name implements Kernel.
func (BehaviorKernel) Name() string { return SubsystemBehavior }

// EmptyState implements Kernel.
func (BehaviorKernel) EmptyState() State {
	return &BehaviorState{Entities: make(map[string]BehaviorEntity)}
}

// Step applies assignment deltas, then advances per-entity clocks and
// re-rolls wander headings on interval boundaries. A heading change is
// surfaced as an alert; the orchestrator's dispatch turns it into a spatial
// set_velocity delta for the next tick.
func (BehaviorKernel) Step(_ Entities, state State, deltas []Delta, dt float64) (State, []Delta, []Alert) {
	current := state.(*BehaviorState)
	next := current.CloneState().(*BehaviorState)

	var accepted []Delta
	var alerts []Alert
	for _, delta := range deltas {
		switch delta.Type {
		case DeltaBehaviorAssign:
			var p behaviorAssignPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" {
				alerts = append(alerts, rejectionAlert(AlertBehaviorRejected, delta, "malformed_payload"))
				continue
			}
			if p.Mode != BehaviorModeIdle && p.Mode != BehaviorModeWander {
				alerts = append(alerts, rejectionAlert(AlertBehaviorRejected, delta, "unknown_mode"))
				continue
			}
			entity := next.Entities[p.ID]
			entity.Mode = p.Mode
			if p.Speed > 0 {
				entity.Speed = p.Speed
			}
			next.Entities[p.ID] = entity
			accepted = append(accepted, delta)
		case DeltaBehaviorDisable:
			var p behaviorTargetPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" {
				alerts = append(alerts, rejectionAlert(AlertBehaviorRejected, delta, "malformed_payload"))
				continue
			}
			entity, exists := next.Entities[p.ID]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertBehaviorRejected, delta, "unknown_entity"))
				continue
			}
			entity.Mode = BehaviorModeDisabled
			entity.Heading = Vec3{}
			next.Entities[p.ID] = entity
			accepted = append(accepted, delta)
			alerts = append(alerts, Alert{Type: AlertBehaviorHeadingChanged, Payload: map[string]any{
				"entity":  p.ID,
				"heading": Vec3{},
			}})
		default:
		}
	}

	ids := make([]string, 0, len(next.Entities))
	for id := range next.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entity := next.Entities[id]
		if entity.Mode != BehaviorModeWander {
			continue
		}
		previousInterval := int64(entity.Clock / wanderHoldSeconds)
		entity.Clock += dt
		interval := int64(entity.Clock / wanderHoldSeconds)
		if interval != previousInterval || (entity.Heading == Vec3{}) {
			heading := wanderHeading(id, interval)
			speed := entity.Speed
			if speed <= 0 {
				speed = 1
			}
			entity.Heading = heading.Scale(speed)
			alerts = append(alerts, Alert{Type: AlertBehaviorHeadingChanged, Payload: map[string]any{
				"entity":  id,
				"heading": entity.Heading,
			}})
		}
		next.Entities[id] = entity
	}

	return next, accepted, alerts
}

// wanderHeading derives a unit heading in the XZ plane from the entity id and
// interval index.
func wanderHeading(id string, interval int64) Vec3 {
	h := fnv.New64a()
	h.Write([]byte(id))
	var buf [8]byte
	v := uint64(interval)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
	angle := float64(h.Sum64()%3600) / 3600 * 2 * math.Pi
	return Vec3{math.Cos(angle), 0, math.Sin(angle)}
}
