package sim

// Entity is the merged cross-subsystem view of one simulated object. Inside
// the simulation the canonical field names are Pos and Vel; the wire names
// (position/velocity) exist only in the transport DTOs.
type Entity struct {
	ID  string
	Pos Vec3
	Vel Vec3
}

// Entities maps entity id to the merged entity view. Kernels receive it as a
// read-only reference; only the orchestrator's merge step replaces it.
type Entities map[string]Entity

// Clone returns a structurally independent copy.
func (e Entities) Clone() Entities {
	if e == nil {
		return Entities{}
	}
	copied := make(Entities, len(e))
	for id, entity := range e {
		copied[id] = entity
	}
	return copied
}
