package logging

import (
	"context"
	"time"
)

// EventType identifies a structured event emitted by the simulation runtime.
type EventType string

// Severity orders events from diagnostic chatter to operator-facing failures.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// EntityKind classifies the actor referenced by an event.
type EntityKind string

const (
	EntityKindUnknown   EntityKind = "unknown"
	EntityKindEntity    EntityKind = "entity"
	EntityKindSubsystem EntityKind = "subsystem"
	EntityKindClient    EntityKind = "client"
	EntityKindWorld     EntityKind = "world"
)

// EntityRef names one participant in an event.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

// Event is the structured record routed to sinks.
type Event struct {
	Type     EventType      `json:"type"`
	Tick     uint64         `json:"tick"`
	Time     time.Time      `json:"time"`
	Actor    EntityRef      `json:"actor"`
	Targets  []EntityRef    `json:"targets,omitempty"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

const (
	CategorySimulation = "simulation"
	CategorySubsystem  = "subsystem"
	CategoryProtocol   = "protocol"
	CategoryTransport  = "transport"
)

// Publisher accepts events for asynchronous routing.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function into the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// NopPublisher returns a publisher that discards every event.
func NopPublisher() Publisher {
	return nopPublisher{}
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

// WithFields wraps a publisher so every event carries the provided extra
// fields unless the event already sets them.
func WithFields(next Publisher, fields map[string]any) Publisher {
	if next == nil {
		next = NopPublisher()
	}
	if len(fields) == 0 {
		return next
	}
	cloned := make(map[string]any, len(fields))
	for k, v := range fields {
		cloned[k] = v
	}
	return &fieldPublisher{next: next, fields: cloned}
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	if p == nil || p.next == nil {
		return
	}
	event = cloneEvent(event)
	if event.Extra == nil {
		event.Extra = make(map[string]any, len(p.fields))
	}
	for k, v := range p.fields {
		if _, exists := event.Extra[k]; !exists {
			event.Extra[k] = v
		}
	}
	p.next.Publish(ctx, event)
}

func cloneEvent(event Event) Event {
	cloned := event
	if len(event.Targets) > 0 {
		cloned.Targets = append([]EntityRef(nil), event.Targets...)
	}
	if event.Extra != nil {
		copied := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			copied[k] = v
		}
		cloned.Extra = copied
	}
	return cloned
}
