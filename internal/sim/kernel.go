package sim

// State is one subsystem's sub-tree of the snapshot. Implementations are
// plain data: cloning must produce a structurally independent value, and
// WireView must translate internal field names into the wire shape without
// mutating the receiver.
type State interface {
	CloneState() State
	WireView() any
}

// Kernel is a pure state-transition function for one subsystem domain.
//
// Step must not mutate state, entities, or deltas, must not perform I/O, and
// must be deterministic: identical inputs produce identical outputs. The
// entities view is the merged cross-subsystem read model as of this point in
// the tick; kernels read it but only ever write their own returned state.
//
// A malformed or inapplicable delta is dropped (omitted from accepted) or
// surfaced as a rejection alert; it never aborts the rest of the batch.
type Kernel interface {
	Name() string
	EmptyState() State
	Step(entities Entities, state State, deltas []Delta, dt float64) (State, []Delta, []Alert)
}
