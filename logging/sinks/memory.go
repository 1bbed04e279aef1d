package sinks

import (
	"context"
	"sync"

	"engain/server/logging"
)

// Memory retains events for inspection in tests.
type Memory struct {
	mu     sync.RWMutex
	events []logging.Event
}

// NewMemory constructs an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{events: make([]logging.Event, 0)}
}

// Write satisfies logging.Sink.
func (s *Memory) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, cloneForMemory(event))
	return nil
}

// Events returns a copy of every retained event.
func (s *Memory) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]logging.Event, len(s.events))
	copy(copied, s.events)
	return copied
}

// Reset discards retained events.
func (s *Memory) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
}

// Close satisfies logging.Sink.
func (s *Memory) Close(context.Context) error {
	return nil
}

func cloneForMemory(event logging.Event) logging.Event {
	cloned := event
	if len(event.Targets) > 0 {
		cloned.Targets = append([]logging.EntityRef(nil), event.Targets...)
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
