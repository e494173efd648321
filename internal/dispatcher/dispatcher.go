// Package dispatcher routes named events to handlers, either inline or
// through a bounded queue drained by one worker per event name. The bridge
// routes decoded MAVLink messages through it; the recorder queues its
// storage jobs.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrQueueFull    = errors.New("queue full")
	ErrClosed       = errors.New("dispatcher closed")
)

// Queued is the result of a dispatch that was handed to a queue.
const Queued = "queued"

// Event is a named unit of work: a decoded MAVLink message keyed by its
// message name, or a recorder job.
type Event struct {
	Name      string
	Payload   any
	Source    string
	Timestamp time.Time
}

type HandlerFunc func(Event) (any, error)

// Logger is satisfied by logging.EventLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type Option func(*route)

// Buffered hands events to a queue of size events and returns Queued.
func Buffered(size int) Option {
	return func(r *route) { r.size = size }
}

// Blocking makes a full queue wait for room instead of dropping.
func Blocking() Option {
	return func(r *route) { r.blocking = true }
}

// Logged logs each event at debug level and failures at error level.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

type route struct {
	size     int
	blocking bool
	logged   bool
}

// Dispatcher is configured with Register before the first Dispatch.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger
	metrics  *instruments

	mu      sync.RWMutex
	queues  map[string]chan Event
	closed  bool
	workers sync.WaitGroup
}

// New creates a dispatcher whose metrics carry scope, e.g. "bridge" or
// "recorder". The global meter is used, so metrics are no-ops unless the
// process installed a provider.
func New(scope string, logger Logger) (*Dispatcher, error) {
	in, err := newInstruments(scope)
	if err != nil {
		return nil, fmt.Errorf("dispatcher %s: %w", scope, err)
	}
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]chan Event),
		logger:   logger,
		metrics:  in,
	}
	if err := in.observe(d.depths); err != nil {
		return nil, fmt.Errorf("dispatcher %s: %w", scope, err)
	}
	return d, nil
}

func (d *Dispatcher) depths(yield func(string, int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for name, q := range d.queues {
		yield(name, len(q))
	}
}

// Register installs h for name. Logging wraps the queue, so a Logged
// buffered handler logs the enqueue and the worker logs handler failures.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...Option) {
	var r route
	for _, opt := range opts {
		opt(&r)
	}
	if r.size > 0 {
		h = d.enqueue(name, r, h)
	}
	if r.logged && d.logger != nil {
		h = d.logged(name, h)
	}
	d.handlers[name] = h
}

func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, e.Name)
	}
	return h(e)
}

func (d *Dispatcher) HasHandler(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

// Close rejects further queued events and returns once every queue is
// drained. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) enqueue(name string, r route, h HandlerFunc) HandlerFunc {
	q := make(chan Event, r.size)
	d.mu.Lock()
	d.queues[name] = q
	d.mu.Unlock()

	attrs := d.metrics.attrs(name)
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range q {
			if _, err := h(e); err != nil && d.logger != nil {
				d.logger.Error("Queued event failed", "event", name, "error", err)
			}
			d.metrics.processed.Add(context.Background(), 1, attrs)
		}
	}()

	return func(e Event) (any, error) {
		// the read lock keeps Close from closing q under a blocked send
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("%w: %s", ErrClosed, name)
		}
		if r.blocking {
			q <- e
			return Queued, nil
		}
		select {
		case q <- e:
			return Queued, nil
		default:
			d.metrics.dropped.Add(context.Background(), 1, attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
}

func (d *Dispatcher) logged(name string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("Handling event", "event", name, "source", e.Source)
		result, err := h(e)
		if err != nil {
			d.logger.Error("Event failed", "event", name, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("Event handled", "event", name, "duration", time.Since(start))
		return result, nil
	}
}
