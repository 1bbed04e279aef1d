package sim

import (
	"fmt"
	"sync/atomic"
)

// WireTranslator converts a wire-shaped delta payload into the kernel's
// canonical field names. It either produces a canonical delta or fails;
// translation never guesses between alternate names.
type WireTranslator interface {
	ToKernel(Delta) (Delta, error)
}

// Adapter owns the pending-delta queue for one kernel and bridges wire-level
// deltas into kernel steps. It is only ever touched by the simulation
// goroutine; cross-thread handoff happens in the orchestrator's command
// buffer, upstream of the adapter.
type Adapter struct {
	kernel     Kernel
	translator WireTranslator
	state      State
	queue      []Delta

	// Read by diagnostics off the simulation goroutine.
	acceptedTotal atomic.Uint64
	alertsTotal   atomic.Uint64
}

// NewAdapter wraps the kernel with an empty state and queue. The translator
// may be nil for subsystems whose wire and kernel field names coincide.
func NewAdapter(kernel Kernel, translator WireTranslator) *Adapter {
	return &Adapter{
		kernel:     kernel,
		translator: translator,
		state:      kernel.EmptyState(),
	}
}

// Name returns the wrapped kernel's subsystem name.
func (a *Adapter) Name() string {
	if a == nil || a.kernel == nil {
		return ""
	}
	return a.kernel.Name()
}

// Enqueue appends a delta to the pending queue after wire translation.
// Structural translation failure is the only rejection at this stage; unknown
// delta types are queued and left for the kernel to drop.
func (a *Adapter) Enqueue(delta Delta) error {
	if a == nil {
		return fmt.Errorf("nil adapter")
	}
	if a.translator != nil {
		canonical, err := a.translator.ToKernel(delta)
		if err != nil {
			return fmt.Errorf("%s: translate %s: %w", a.Name(), delta.Type, err)
		}
		delta = canonical
	}
	a.queue = append(a.queue, delta)
	return nil
}

// Pending reports the number of queued deltas.
func (a *Adapter) Pending() int {
	if a == nil {
		return 0
	}
	return len(a.queue)
}

// Tick dequeues the entire pending batch, runs the kernel step, and replaces
// the held state. The queue is cleared wholesale: deltas the kernel rejected
// are dropped, never retried on a later tick.
func (a *Adapter) Tick(entities Entities, dt float64) ([]Delta, []Alert) {
	if a == nil {
		return nil, nil
	}
	batch := a.queue
	a.queue = nil

	next, accepted, alerts := a.kernel.Step(entities, a.state, batch, dt)
	a.state = next
	a.acceptedTotal.Add(uint64(len(accepted)))
	a.alertsTotal.Add(uint64(len(alerts)))
	return accepted, alerts
}

// ExportState returns a value copy of the adapter's held state. Mutating the
// adapter afterwards cannot retroactively change an exported snapshot.
func (a *Adapter) ExportState() State {
	if a == nil || a.state == nil {
		return nil
	}
	return a.state.CloneState()
}

// Totals reports lifetime accepted/alert counts for diagnostics.
func (a *Adapter) Totals() (accepted, alerts uint64) {
	if a == nil {
		return 0, 0
	}
	return a.acceptedTotal.Load(), a.alertsTotal.Load()
}
