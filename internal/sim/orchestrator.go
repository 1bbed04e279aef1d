package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"engain/server/internal/protocol"
	"engain/server/internal/telemetry"
	"engain/server/logging"
)

// Phase tracks the orchestrator lifecycle.
type Phase int32

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Submission failures surfaced to transport handlers.
var (
	ErrQueueFull    = errors.New("command queue full")
	ErrShuttingDown = errors.New("orchestrator shutting down")
	ErrNotStartable = errors.New("orchestrator already started")
)

const (
	ticksMetricKey              = "sim_ticks_total"
	tickDurationMetricKey       = "sim_tick_duration_micros"
	commandsEnqueuedMetricKey   = "sim_commands_enqueued_total"
	commandsUnroutableMetricKey = "sim_commands_unroutable_total"
	commandsRejectedMetricKey   = "sim_commands_rejected_total"
	subsystemFaultsMetricKey    = "sim_subsystem_faults_total"
	publishesMetricKey          = "sim_snapshot_publishes_total"
	alertsMetricKey             = "sim_alerts_total"
)

// Orchestrator event types routed through the logging publisher.
const (
	EventTickFault       logging.EventType = "tick.subsystem_fault"
	EventCmdUnroutable   logging.EventType = "command.unroutable"
	EventCmdUntranslated logging.EventType = "command.translation_rejected"
	EventLoopStarted     logging.EventType = "orchestrator.started"
	EventLoopStopped     logging.EventType = "orchestrator.stopped"
)

// AlertHandler inspects one alert and may answer with follow-on commands.
// Handlers run strictly between ticks; the returned commands are injected at
// the head of the next tick's batch. This is the only place one subsystem's
// outcome influences another's input.
type AlertHandler func(Alert) []Command

// Config tunes the orchestrator.
type Config struct {
	TickRate        int
	CommandCapacity int
	Seed            string
	Logger          telemetry.Logger
	Metrics         telemetry.Metrics
	Publisher       logging.Publisher
}

// DefaultConfig returns the baseline orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		TickRate:        30,
		CommandCapacity: 256,
	}
}

// Published is the immutable result of one snapshot publication. Raw holds
// the marshaled envelope served verbatim by the transport.
type Published struct {
	Snapshot Snapshot
	Envelope protocol.Envelope
	Raw      []byte
}

// Orchestrator owns the authoritative snapshot and runs the tick loop.
// Exactly one goroutine (Run) advances state; transport goroutines only read
// the published pointer and push into the command buffer.
type Orchestrator struct {
	cfg      Config
	epoch    string
	adapters []*Adapter
	byName   map[string]*Adapter
	handlers []AlertHandler
	buffer   *CommandBuffer

	logger    telemetry.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher

	// Owned by the simulation goroutine.
	entities  Entities
	worldTime float64
	tick      uint64
	carry     []Command

	nextSeq   atomic.Uint64
	phase     atomic.Int32
	published atomic.Pointer[Published]
}

// DefaultAdapters constructs one adapter per subsystem in the fixed
// dependency order: spatial before perception before behavior before combat,
// then inventory, quest, faction. Later subsystems observe positions
// committed by earlier ones within the same tick.
func DefaultAdapters() []*Adapter {
	return []*Adapter{
		NewAdapter(SpatialKernel{}, spatialTranslator{}),
		NewAdapter(PerceptionKernel{}, nil),
		NewAdapter(BehaviorKernel{}, nil),
		NewAdapter(CombatKernel{}, nil),
		NewAdapter(InventoryKernel{}, nil),
		NewAdapter(QuestKernel{}, nil),
		NewAdapter(FactionKernel{}, nil),
	}
}

// DefaultAlertHandlers wires the stock cross-subsystem reactions: a death
// disables the victim's behavior and perception, and a behavior heading
// change becomes a spatial velocity update.
func DefaultAlertHandlers() []AlertHandler {
	return []AlertHandler{handleEntityDied, handleHeadingChanged}
}

// New constructs an orchestrator in the Initializing phase and publishes the
// empty snapshot so transport reads never observe nothing.
func New(cfg Config, adapters []*Adapter, handlers []AlertHandler) (*Orchestrator, error) {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultConfig().TickRate
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = DefaultConfig().CommandCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if len(adapters) == 0 {
		adapters = DefaultAdapters()
	}

	byName := make(map[string]*Adapter, len(adapters))
	for _, adapter := range adapters {
		name := adapter.Name()
		if name == "" {
			return nil, errors.New("adapter with empty subsystem name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate subsystem adapter %q", name)
		}
		byName[name] = adapter
	}

	o := &Orchestrator{
		cfg:       cfg,
		epoch:     protocol.NewEpoch(),
		adapters:  adapters,
		byName:    byName,
		handlers:  handlers,
		buffer:    NewCommandBuffer(cfg.CommandCapacity, cfg.Metrics),
		logger:    logger,
		metrics:   cfg.Metrics,
		publisher: publisher,
		entities:  Entities{},
	}
	o.phase.Store(int32(PhaseInitializing))
	o.publish()
	return o, nil
}

// Epoch returns the opaque session identifier fixed at construction.
func (o *Orchestrator) Epoch() string { return o.epoch }

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase { return Phase(o.phase.Load()) }

// TickRate returns the configured ticks per second.
func (o *Orchestrator) TickRate() int { return o.cfg.TickRate }

// Latest returns the most recently published snapshot. Never nil after New.
func (o *Orchestrator) Latest() *Published {
	return o.published.Load()
}

// SubsystemTotals summarizes one adapter's lifetime activity.
type SubsystemTotals struct {
	Accepted uint64 `json:"accepted"`
	Alerts   uint64 `json:"alerts"`
}

// AdapterTotals reports per-subsystem accepted-delta and alert counts.
func (o *Orchestrator) AdapterTotals() map[string]SubsystemTotals {
	totals := make(map[string]SubsystemTotals, len(o.adapters))
	for _, adapter := range o.adapters {
		accepted, alerts := adapter.Totals()
		totals[adapter.Name()] = SubsystemTotals{Accepted: accepted, Alerts: alerts}
	}
	return totals
}

// SubmitCommand stages a command for the next tick and returns its assigned
// sequence number. Acceptance only means the command will be offered to its
// subsystem; the effect, if any, becomes visible in a later snapshot.
func (o *Orchestrator) SubmitCommand(cmdType string, payload json.RawMessage) (uint64, error) {
	switch o.Phase() {
	case PhaseShuttingDown, PhaseStopped:
		return 0, ErrShuttingDown
	}
	seq := o.nextSeq.Add(1)
	cmd := Command{Seq: seq, Type: cmdType, Payload: payload, IssuedAt: time.Now()}
	if !o.buffer.Push(cmd) {
		return 0, ErrQueueFull
	}
	if o.metrics != nil {
		o.metrics.Add(commandsEnqueuedMetricKey, 1)
	}
	return seq, nil
}

// Run executes the fixed-rate tick loop until ctx is canceled. The in-flight
// tick always completes before the loop halts.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.phase.CompareAndSwap(int32(PhaseInitializing), int32(PhaseRunning)) {
		return ErrNotStartable
	}
	o.publisher.Publish(ctx, logging.Event{
		Type:     EventLoopStarted,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Payload:  map[string]any{"tickRate": o.cfg.TickRate, "epoch": o.epoch},
	})

	interval := time.Second / time.Duration(o.cfg.TickRate)
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.phase.Store(int32(PhaseShuttingDown))
			o.phase.Store(int32(PhaseStopped))
			o.publisher.Publish(context.Background(), logging.Event{
				Type:     EventLoopStopped,
				Tick:     o.tick,
				Severity: logging.SeverityInfo,
				Category: logging.CategorySimulation,
				Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
			})
			return nil
		case <-ticker.C:
			o.RunTick(dt)
		}
	}
}

// RunTick advances the simulation by dt seconds. Exported so tests and
// offline replay can drive the loop manually; production code reaches it only
// through Run.
func (o *Orchestrator) RunTick(dt float64) {
	started := time.Now()

	pending := o.carry
	o.carry = nil
	pending = append(pending, o.buffer.Drain()...)
	for _, cmd := range pending {
		o.routeCommand(cmd)
	}

	working := o.entities.Clone()
	var alerts []Alert
	for _, adapter := range o.adapters {
		_, stepAlerts := o.stepAdapter(adapter, working, dt)
		alerts = append(alerts, stepAlerts...)
		if adapter.Name() == SubsystemSpatial {
			if state, ok := adapter.ExportState().(*SpatialState); ok {
				working = entitiesFromSpatial(state)
			}
		}
	}

	o.entities = working
	o.worldTime += dt
	o.tick++

	for _, alert := range alerts {
		for _, handler := range o.handlers {
			for _, cmd := range handler(alert) {
				cmd.Seq = o.nextSeq.Add(1)
				cmd.IssuedAt = started
				o.carry = append(o.carry, cmd)
			}
		}
	}

	o.publish()

	if o.metrics != nil {
		o.metrics.Add(ticksMetricKey, 1)
		o.metrics.Add(alertsMetricKey, uint64(len(alerts)))
		o.metrics.Store(tickDurationMetricKey, uint64(time.Since(started).Microseconds()))
	}
}

func (o *Orchestrator) routeCommand(cmd Command) {
	delta := cmd.Delta()
	adapter, ok := o.byName[delta.Subsystem()]
	if !ok {
		if o.metrics != nil {
			o.metrics.Add(commandsUnroutableMetricKey, 1)
		}
		o.publisher.Publish(context.Background(), logging.Event{
			Type:     EventCmdUnroutable,
			Tick:     o.tick,
			Severity: logging.SeverityWarn,
			Category: logging.CategorySimulation,
			Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
			Payload:  map[string]any{"type": cmd.Type, "seq": cmd.Seq},
		})
		return
	}
	if err := adapter.Enqueue(delta); err != nil {
		if o.metrics != nil {
			o.metrics.Add(commandsRejectedMetricKey, 1)
		}
		o.publisher.Publish(context.Background(), logging.Event{
			Type:     EventCmdUntranslated,
			Tick:     o.tick,
			Severity: logging.SeverityWarn,
			Category: logging.CategorySubsystem,
			Actor:    logging.EntityRef{ID: adapter.Name(), Kind: logging.EntityKindSubsystem},
			Payload:  map[string]any{"type": cmd.Type, "seq": cmd.Seq, "error": err.Error()},
		})
	}
}

// stepAdapter runs one adapter tick, containing panics so a buggy subsystem
// skips its update instead of halting the loop.
func (o *Orchestrator) stepAdapter(adapter *Adapter, entities Entities, dt float64) (accepted []Delta, alerts []Alert) {
	defer func() {
		if r := recover(); r != nil {
			accepted, alerts = nil, nil
			if o.metrics != nil {
				o.metrics.Add(subsystemFaultsMetricKey, 1)
			}
			o.logger.Printf("subsystem %s faulted on tick %d: %v", adapter.Name(), o.tick, r)
			o.publisher.Publish(context.Background(), logging.Event{
				Type:     EventTickFault,
				Tick:     o.tick,
				Severity: logging.SeverityError,
				Category: logging.CategorySubsystem,
				Actor:    logging.EntityRef{ID: adapter.Name(), Kind: logging.EntityKindSubsystem},
				Payload:  map[string]any{"panic": fmt.Sprint(r)},
			})
		}
	}()
	return adapter.Tick(entities, dt)
}

func (o *Orchestrator) publish() {
	subsystems := make(map[string]State, len(o.adapters))
	for _, adapter := range o.adapters {
		subsystems[adapter.Name()] = adapter.ExportState()
	}
	snapshot := Snapshot{
		Tick:       o.tick,
		WorldTime:  o.worldTime,
		Seed:       o.cfg.Seed,
		Entities:   o.entities.Clone(),
		Subsystems: subsystems,
	}

	env, err := protocol.Wrap(snapshot.WirePayload(), o.tick, o.epoch)
	if err != nil {
		o.logger.Printf("failed to wrap snapshot for tick %d: %v", o.tick, err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		o.logger.Printf("failed to marshal envelope for tick %d: %v", o.tick, err)
		return
	}

	o.published.Store(&Published{Snapshot: snapshot, Envelope: env, Raw: raw})
	if o.metrics != nil {
		o.metrics.Add(publishesMetricKey, 1)
	}
}

func entitiesFromSpatial(state *SpatialState) Entities {
	entities := make(Entities, len(state.Entities))
	for id, record := range state.Entities {
		entities[id] = Entity{ID: id, Pos: record.Pos, Vel: record.Vel}
	}
	return entities
}

func handleEntityDied(alert Alert) []Command {
	if alert.Type != AlertCombatEntityDied {
		return nil
	}
	entity, _ := alert.Payload["entity"].(string)
	if entity == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"id": entity})
	if err != nil {
		return nil
	}
	return []Command{
		{Type: DeltaBehaviorDisable, Payload: payload},
		{Type: DeltaPerceptionDisable, Payload: payload},
	}
}

func handleHeadingChanged(alert Alert) []Command {
	if alert.Type != AlertBehaviorHeadingChanged {
		return nil
	}
	entity, _ := alert.Payload["entity"].(string)
	heading, ok := alert.Payload["heading"].(Vec3)
	if entity == "" || !ok {
		return nil
	}
	// Commands re-enter through the adapter boundary, so this speaks the
	// wire field names.
	payload, err := json.Marshal(map[string]any{"id": entity, "velocity": heading})
	if err != nil {
		return nil
	}
	return []Command{{Type: DeltaSpatialSetVelocity, Payload: payload}}
}
