package sim

// WireEntity is the transport DTO for one entity's cross-cutting fields. The
// wire speaks position/velocity; kernels never see these names.
type WireEntity struct {
	Position Vec3 `json:"position"`
	Velocity Vec3 `json:"velocity"`
}

// WorldInfo is the world sub-tree of the wire payload.
type WorldInfo struct {
	Tick uint64  `json:"tick"`
	Time float64 `json:"time"`
	Seed string  `json:"seed,omitempty"`
}

// Snapshot is the immutable per-tick aggregate of all subsystem states. It is
// fully derived from the previous snapshot plus the deltas accepted this
// tick, and is never mutated after publication.
type Snapshot struct {
	Tick       uint64
	WorldTime  float64
	Seed       string
	Entities   Entities
	Subsystems map[string]State
}

// WirePayload assembles the envelope payload: the merged entity view under
// canonical wire names plus one sub-tree per subsystem.
func (s Snapshot) WirePayload() map[string]any {
	entities := make(map[string]WireEntity, len(s.Entities))
	for id, entity := range s.Entities {
		entities[id] = WireEntity{Position: entity.Pos, Velocity: entity.Vel}
	}

	payload := map[string]any{
		"entities": entities,
		"world":    WorldInfo{Tick: s.Tick, Time: s.WorldTime, Seed: s.Seed},
	}
	for name, state := range s.Subsystems {
		if state == nil {
			continue
		}
		payload[name] = state.WireView()
	}
	return payload
}
