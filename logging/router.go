package logging

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Clock abstracts time for deterministic router tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sink consumes routed events.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// Router buffers published events and fans them out to the enabled sinks on a
// dedicated goroutine so publishers never block on sink I/O.
type Router struct {
	cfg         Config
	queue       chan Event
	sinks       []namedSink
	clock       Clock
	fallback    *log.Logger
	cancel      context.CancelFunc
	closed      atomic.Bool
	minSeverity Severity
	fields      map[string]any
	wg          sync.WaitGroup

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
	lastDropLog  atomic.Int64
}

type namedSink struct {
	name string
	sink Sink
}

// RouterStats summarizes router throughput for diagnostics.
type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
}

// NewRouter constructs a router draining into the sinks named by cfg.
// Unknown sink names in cfg.EnabledSinks are an error.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, sinks map[string]Sink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 512
	}

	enabled := make([]namedSink, 0, len(cfg.EnabledSinks))
	for _, name := range cfg.EnabledSinks {
		sink, ok := sinks[name]
		if !ok || sink == nil {
			return nil, errors.New("logging: unknown sink " + name)
		}
		enabled = append(enabled, namedSink{name: name, sink: sink})
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		cfg:         cfg,
		queue:       make(chan Event, bufferSize),
		sinks:       enabled,
		clock:       clock,
		fallback:    fallback,
		cancel:      cancel,
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
	}

	r.wg.Add(1)
	go r.dispatch(ctx)
	return r, nil
}

// Publish enqueues an event, dropping it if the queue is saturated.
func (r *Router) Publish(_ context.Context, event Event) {
	if r == nil || r.closed.Load() {
		return
	}
	if event.Severity < r.minSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	if len(r.fields) > 0 {
		event = cloneEvent(event)
		if event.Extra == nil {
			event.Extra = make(map[string]any, len(r.fields))
		}
		for k, v := range r.fields {
			if _, exists := event.Extra[k]; !exists {
				event.Extra[k] = v
			}
		}
	}

	select {
	case r.queue <- event:
		r.eventsTotal.Add(1)
	default:
		r.noteDrop()
	}
}

// Stats reports totals since construction.
func (r *Router) Stats() RouterStats {
	if r == nil {
		return RouterStats{}
	}
	return RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
	}
}

// Close drains the queue and closes every sink.
func (r *Router) Close(ctx context.Context) error {
	if r == nil || !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.queue)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.cancel()
		<-done
	}

	var firstErr error
	for _, ns := range r.sinks {
		if err := ns.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) dispatch(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case event, ok := <-r.queue:
			if !ok {
				return
			}
			r.deliver(event)
		case <-ctx.Done():
			// Drain whatever is already queued before bailing out.
			for {
				select {
				case event, ok := <-r.queue:
					if !ok {
						return
					}
					r.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) deliver(event Event) {
	for _, ns := range r.sinks {
		if err := ns.sink.Write(event); err != nil {
			r.fallback.Printf("sink %s failed to write %s: %v", ns.name, event.Type, err)
		}
	}
}

func (r *Router) noteDrop() {
	r.droppedTotal.Add(1)
	interval := r.cfg.DropWarnInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := r.clock.Now().UnixNano()
	last := r.lastDropLog.Load()
	if now-last < interval.Nanoseconds() {
		return
	}
	if r.lastDropLog.CompareAndSwap(last, now) {
		r.fallback.Printf("event queue saturated; dropped %d events so far", r.droppedTotal.Load())
	}
}
