package sim

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SubsystemSpatial names the subsystem that owns positions and velocities.
const SubsystemSpatial = "spatial"

// Spatial delta types. Payloads use the canonical kernel field names
// (pos/vel); the wire translation happens in spatialTranslator.
const (
	DeltaSpatialSpawn       = "spatial/spawn"
	DeltaSpatialDespawn     = "spatial/despawn"
	DeltaSpatialSetVelocity = "spatial/set_velocity"
)

// Spatial alert types.
const (
	AlertSpatialSpawned   = "spatial/spawned"
	AlertSpatialDespawned = "spatial/despawned"
	AlertSpatialRejected  = "spatial/rejected"
)

// SpatialEntity is the kernel-side state of one entity in space.
type SpatialEntity struct {
	Pos Vec3 `json:"pos"`
	Vel Vec3 `json:"vel"`
}

// SpatialState is the spatial sub-tree: entity id to spatial record.
type SpatialState struct {
	Entities map[string]SpatialEntity `json:"entities"`
}

// CloneState implements State.
func (s *SpatialState) CloneState() State {
	copied := &SpatialState{Entities: make(map[string]SpatialEntity, len(s.Entities))}
	for id, entity := range s.Entities {
		copied.Entities[id] = entity
	}
	return copied
}

// WireView translates pos/vel into the canonical wire names.
func (s *SpatialState) WireView() any {
	view := make(map[string]WireEntity, len(s.Entities))
	for id, entity := range s.Entities {
		view[id] = WireEntity{Position: entity.Pos, Velocity: entity.Vel}
	}
	return view
}

type spatialSpawnPayload struct {
	ID  string `json:"id"`
	Pos Vec3   `json:"pos"`
	Vel Vec3   `json:"vel"`
}

type spatialTargetPayload struct {
	ID string `json:"id"`
}

type spatialVelocityPayload struct {
	ID  string `json:"id"`
	Vel Vec3   `json:"vel"`
}

// SpatialKernel integrates positions and services entity lifecycle deltas.
type SpatialKernel struct{}

// Name implements Kernel.
func (SpatialKernel) Name() string { return SubsystemSpatial }

// EmptyState implements Kernel.
func (SpatialKernel) EmptyState() State {
	return &SpatialState{Entities: make(map[string]SpatialEntity)}
}

// Step advances every entity by vel*dt, then applies lifecycle deltas in
// order.
func (SpatialKernel) Step(_ Entities, state State, deltas []Delta, dt float64) (State, []Delta, []Alert) {
	current := state.(*SpatialState)
	next := current.CloneState().(*SpatialState)

	for id, entity := range next.Entities {
		entity.Pos = entity.Pos.Add(entity.Vel.Scale(dt))
		next.Entities[id] = entity
	}

	var accepted []Delta
	var alerts []Alert
	for _, delta := range deltas {
		switch delta.Type {
		case DeltaSpatialSpawn:
			var p spatialSpawnPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" {
				alerts = append(alerts, rejectionAlert(AlertSpatialRejected, delta, "malformed_payload"))
				continue
			}
			if _, exists := next.Entities[p.ID]; exists {
				alerts = append(alerts, rejectionAlert(AlertSpatialRejected, delta, "duplicate_entity"))
				continue
			}
			next.Entities[p.ID] = SpatialEntity{Pos: p.Pos, Vel: p.Vel}
			accepted = append(accepted, delta)
			alerts = append(alerts, Alert{Type: AlertSpatialSpawned, Payload: map[string]any{"entity": p.ID}})
		case DeltaSpatialDespawn:
			var p spatialTargetPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" {
				alerts = append(alerts, rejectionAlert(AlertSpatialRejected, delta, "malformed_payload"))
				continue
			}
			if _, exists := next.Entities[p.ID]; !exists {
				alerts = append(alerts, rejectionAlert(AlertSpatialRejected, delta, "unknown_entity"))
				continue
			}
			delete(next.Entities, p.ID)
			accepted = append(accepted, delta)
			alerts = append(alerts, Alert{Type: AlertSpatialDespawned, Payload: map[string]any{"entity": p.ID}})
		case DeltaSpatialSetVelocity:
			var p spatialVelocityPayload
			if err := json.Unmarshal(delta.Payload, &p); err != nil || p.ID == "" {
				alerts = append(alerts, rejectionAlert(AlertSpatialRejected, delta, "malformed_payload"))
				continue
			}
			entity, exists := next.Entities[p.ID]
			if !exists {
				alerts = append(alerts, rejectionAlert(AlertSpatialRejected, delta, "unknown_entity"))
				continue
			}
			entity.Vel = p.Vel
			next.Entities[p.ID] = entity
			accepted = append(accepted, delta)
		default:
			// Unknown delta types are dropped without aborting the batch.
		}
	}
	return next, accepted, alerts
}

// spatialWirePayload is the transport shape for spawn and set_velocity
// bodies: the wire speaks position/velocity, never pos/vel.
type spatialWirePayload struct {
	ID       string `json:"id"`
	Position *Vec3  `json:"position"`
	Velocity *Vec3  `json:"velocity"`
}

// spatialTranslator is the single mandatory translation between wire and
// kernel field names. It either produces a canonical payload or fails; there
// is no fallback chain guessing at alternate names.
type spatialTranslator struct{}

func (spatialTranslator) ToKernel(delta Delta) (Delta, error) {
	switch delta.Type {
	case DeltaSpatialSpawn:
		var wire spatialWirePayload
		if err := json.Unmarshal(delta.Payload, &wire); err != nil {
			return Delta{}, fmt.Errorf("decode %s payload: %w", delta.Type, err)
		}
		if wire.ID == "" {
			return Delta{}, errors.New("spawn payload missing id")
		}
		if wire.Position == nil {
			return Delta{}, errors.New("spawn payload missing position")
		}
		canonical := spatialSpawnPayload{ID: wire.ID, Pos: *wire.Position}
		if wire.Velocity != nil {
			canonical.Vel = *wire.Velocity
		}
		return recodeDelta(delta, canonical)
	case DeltaSpatialSetVelocity:
		var wire spatialWirePayload
		if err := json.Unmarshal(delta.Payload, &wire); err != nil {
			return Delta{}, fmt.Errorf("decode %s payload: %w", delta.Type, err)
		}
		if wire.ID == "" {
			return Delta{}, errors.New("set_velocity payload missing id")
		}
		if wire.Velocity == nil {
			return Delta{}, errors.New("set_velocity payload missing velocity")
		}
		return recodeDelta(delta, spatialVelocityPayload{ID: wire.ID, Vel: *wire.Velocity})
	default:
		// Other spatial deltas carry no positional fields; pass through.
		return delta, nil
	}
}

func recodeDelta(delta Delta, payload any) (Delta, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Delta{}, fmt.Errorf("encode canonical %s payload: %w", delta.Type, err)
	}
	delta.Payload = data
	return delta, nil
}

func rejectionAlert(alertType string, delta Delta, reason string) Alert {
	return Alert{Type: alertType, Payload: map[string]any{
		"delta":  delta.Type,
		"seq":    delta.Seq,
		"reason": reason,
	}}
}
