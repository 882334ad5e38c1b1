// Package resource implements the resource collector: a registry of
// recovery handlers per resource kind and the escalation loop that asks them,
// with increasing urgency, to free capacity after an allocation failed.
//
// Typical use from an allocation site:
//
//	try := resource.TryOne
//	for {
//	    ptr, err := allocate()
//	    if err == nil {
//	        return ptr, nil
//	    }
//	    if !collector.Run(resource.Mmap, &try, nil) {
//	        return nil, err
//	    }
//	}
//
// Run only returns false after the process exit hook was invoked (which
// never returns in production) or when the collector is closed.
package resource

import (
	"container/list"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittovault/internal/logger"
)

// HandlerFunc is a recovery callback. It receives the requested level, the
// opaque data given at registration and the context passed to Run. It
// returns the level it actually satisfied.
//
// Handlers run under the collector lock and must not call back into the
// collector.
type HandlerFunc func(try Try, data any, context any) Try

// Registration is the record of one registered handler.
type Registration struct {
	id      uuid.UUID
	name    string
	kind    Kind
	handler HandlerFunc
	data    any
	elem    *list.Element
}

// ID returns the unique id of the registration.
func (r *Registration) ID() uuid.UUID {
	return r.id
}

// Name returns the human readable handler name.
func (r *Registration) Name() string {
	return r.name
}

// Kind returns the resource kind the handler serves.
func (r *Registration) Kind() Kind {
	return r.kind
}

// Metrics receives escalation events. Implementations must be cheap and
// non-blocking; they are called with the collector lock held.
type Metrics interface {
	ObserveEscalation(kind Kind, try Try, satisfied bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEscalation(Kind, Try, bool) {}

// Collector holds the handler lists and serializes escalation.
//
// Thread Safety: Safe for concurrent use. All operations share one mutex.
type Collector struct {
	mu       sync.Mutex
	handlers [numKinds]*list.List
	closed   bool
	exit     func(code int)
	metrics  Metrics
}

// Option configures a Collector.
type Option func(*Collector)

// WithExitFunc replaces the process exit used after a panic sweep.
func WithExitFunc(exit func(code int)) Option {
	return func(c *Collector) {
		c.exit = exit
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Collector) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates an empty collector.
func New(opts ...Option) *Collector {
	c := &Collector{
		exit:    os.Exit,
		metrics: noopMetrics{},
	}
	for i := range c.handlers {
		c.handlers[i] = list.New()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register appends a handler for kind. Handlers registered earlier are
// asked first until a later one proves more successful.
func (c *Collector) Register(kind Kind, name string, fn HandlerFunc, data any) *Registration {
	if !kind.valid() {
		panic("resource: register with invalid kind")
	}
	if fn == nil {
		panic("resource: register with nil handler")
	}

	r := &Registration{
		id:      uuid.New(),
		name:    name,
		kind:    kind,
		handler: fn,
		data:    data,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r.elem = c.handlers[kind].PushBack(r)
	logger.Debug("Resource handler registered: kind=%s name=%s id=%s", kind, name, r.id)
	return r
}

// Unregister removes r and delivers TryUnregister to it. Removing a handler
// twice is a no-op.
func (c *Collector) Unregister(r *Registration) {
	if r == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.unregisterLocked(r)
}

func (c *Collector) unregisterLocked(r *Registration) {
	if r.elem == nil {
		return
	}
	c.handlers[r.kind].Remove(r.elem)
	r.elem = nil
	r.handler(TryUnregister, r.data, nil)
	logger.Debug("Resource handler unregistered: kind=%s name=%s id=%s", r.kind, r.name, r.id)
}

// Destroy unregisters every handler. The collector refuses further runs.
func (c *Collector) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range c.handlers {
		for e := l.Front(); e != nil; {
			next := e.Next()
			c.unregisterLocked(e.Value.(*Registration))
			e = next
		}
	}
	c.closed = true
}

// Len returns the number of handlers registered for kind.
func (c *Collector) Len(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[kind].Len()
}

// Run asks the handlers for kind to free resources, starting at *try and
// escalating until one of them reports success. On return *try holds the
// level that was reached, so a caller whose retry fails again continues
// from there on the next call. A level of TryNone starts at TryOne.
//
// Reaching TryPanic gives every handler of every kind one TryPanic call and
// then terminates the process.
func (c *Collector) Run(kind Kind, try *Try, context any) bool {
	return c.RunUntil(kind, try, TryPanic, context)
}

// RunUntil is Run with an upper bound: escalation stops at limit and false
// is returned when no handler could satisfy it. With limit TryPanic it
// behaves exactly like Run.
func (c *Collector) RunUntil(kind Kind, try *Try, limit Try, context any) bool {
	if !kind.valid() {
		panic("resource: run with invalid kind")
	}
	if limit > TryPanic {
		limit = TryPanic
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if *try < TryOne {
		*try = TryOne
	}

	if *try > limit {
		return false
	}

	for *try < TryPanic {
		if c.sweepLocked(kind, *try, context) {
			c.metrics.ObserveEscalation(kind, *try, true)
			return true
		}
		c.metrics.ObserveEscalation(kind, *try, false)
		logger.Debug("Resource collector: %s not satisfied at level %s", kind, *try)

		if *try == limit {
			return false
		}
		*try = try.Next()
	}

	c.panicLocked(kind)
	return false
}

// sweepLocked invokes the handlers of kind once at level try.
func (c *Collector) sweepLocked(kind Kind, try Try, context any) bool {
	l := c.handlers[kind]
	satisfied := false

	for e := l.Front(); e != nil; {
		cur := e
		e = e.Next()

		r := cur.Value.(*Registration)
		progress := r.handler(try, r.data, context)
		if !progress.Satisfies(try) {
			continue
		}

		// Most successful handlers are asked first next time
		l.MoveToFront(cur)
		satisfied = true
		if try < TryAll {
			return true
		}
	}

	return satisfied
}

func (c *Collector) panicLocked(kind Kind) {
	logger.Error("PANIC, not enough resources: %s", kind)
	c.metrics.ObserveEscalation(kind, TryPanic, false)

	for _, l := range c.handlers {
		for e := l.Front(); e != nil; e = e.Next() {
			r := e.Value.(*Registration)
			r.handler(TryPanic, r.data, nil)
		}
	}

	c.exit(1)
}
