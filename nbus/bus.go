package nbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nvelope"

	"github.com/pkg/errors"
)

// ErrNoListener is returned by Publish when no listener accepts the
// event
var ErrNoListener = errors.New("no listener for event")

// ErrNoResolver is returned when a listener needs a dependency but
// the bus has nothing to resolve it from
var ErrNoResolver = errors.New("event bus has no resolver")

// ErrSinkUnset is returned by Sink when the Registry has no Sink
var ErrSinkUnset = errors.New("event sink is not set")

// Resolver builds listener dependencies.  *ngraph.Graph and
// *ngraph.Scope implement it.
type Resolver interface {
	Resolve(ctx context.Context, t reflect.Type, known map[string]interface{}) (interface{}, error)
}

// Sink takes events out of the process, to a queue or an outbox
type Sink interface {
	Sink(ctx context.Context, events ...interface{}) error
}

type listener struct {
	event reflect.Type
	name  string
	call  func(ctx context.Context, event interface{}, resolver Resolver) error
}

func (l listener) accepts(t reflect.Type) bool {
	if l.event == t {
		return true
	}
	return l.event.Kind() == reflect.Interface && t.Implements(l.event)
}

// Registry holds the listeners.  It is safe for concurrent use.
type Registry struct {
	lock      sync.RWMutex
	listeners []listener
	graph     *ngraph.Graph
	log       nvelope.BasicLogger
	sink      Sink
	pending   sync.WaitGroup
}

type Option func(*Registry)

// WithGraph sets the graph that emitted events resolve listener
// dependencies from.  Each emitted event gets its own Scope.
func WithGraph(g *ngraph.Graph) Option {
	return func(r *Registry) { r.graph = g }
}

// WithLogger sets the logger for failures of emitted events
func WithLogger(log nvelope.BasicLogger) Option {
	return func(r *Registry) { r.log = log }
}

// WithSink sets where Bus.Sink sends events
func WithSink(s Sink) Option {
	return func(r *Registry) { r.sink = s }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		log: nvelope.NoLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) add(l listener) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.listeners = append(r.listeners, l)
}

// Listen registers fn for events of type E.  When E is an interface,
// fn receives every event that implements it.
func Listen[E any](r *Registry, fn func(ctx context.Context, event E) error) {
	t := reflect.TypeOf((*E)(nil)).Elem()
	r.add(listener{
		event: t,
		name:  t.String(),
		call: func(ctx context.Context, event interface{}, _ Resolver) error {
			return fn(ctx, event.(E))
		},
	})
}

// ListenWith registers fn for events of type E.  The dependency D is
// resolved for each event from the publishing Bus.
func ListenWith[E, D any](r *Registry, fn func(ctx context.Context, event E, dep D) error) {
	t := reflect.TypeOf((*E)(nil)).Elem()
	dt := reflect.TypeOf((*D)(nil)).Elem()
	r.add(listener{
		event: t,
		name:  t.String() + " with " + dt.String(),
		call: func(ctx context.Context, event interface{}, resolver Resolver) error {
			if resolver == nil {
				return errors.Wrap(ErrNoResolver, dt.String())
			}
			dep, err := resolver.Resolve(ctx, dt, nil)
			if err != nil {
				return errors.Wrapf(err, "listener dependency %s", dt)
			}
			return fn(ctx, event.(E), dep.(D))
		},
	})
}

func (r *Registry) matching(t reflect.Type) []listener {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var found []listener
	for _, l := range r.listeners {
		if l.accepts(t) {
			found = append(found, l)
		}
	}
	return found
}

// Listeners counts the listeners that would receive event
func (r *Registry) Listeners(event interface{}) int {
	return len(r.matching(reflect.TypeOf(event)))
}

// Bus returns a Bus that resolves listener dependencies from
// resolver.  The resolver may be nil.
func (r *Registry) Bus(resolver Resolver) *Bus {
	return &Bus{registry: r, resolver: resolver}
}

// Wait blocks until every emitted event has been handled
func (r *Registry) Wait() {
	r.pending.Wait()
}

// Bus publishes events to the listeners of a Registry.  Endpoints
// get a new Bus per request.
type Bus struct {
	registry *Registry
	resolver Resolver
}

// Publish calls the listeners of event in the order they were
// registered.  It stops at the first error.
func (b *Bus) Publish(ctx context.Context, event interface{}) error {
	if event == nil {
		return errors.New("publish nil event")
	}
	t := reflect.TypeOf(event)
	listeners := b.registry.matching(t)
	if len(listeners) == 0 {
		return errors.Wrap(ErrNoListener, t.String())
	}
	return deliver(ctx, event, listeners, b.resolver)
}

func deliver(ctx context.Context, event interface{}, listeners []listener, resolver Resolver) error {
	for _, l := range listeners {
		if err := l.call(ctx, event, resolver); err != nil {
			return errors.Wrapf(err, "listener %s", l.name)
		}
	}
	return nil
}

// Emit publishes event in the background, outliving the request.
// Listener dependencies come from a new Scope of the Registry's
// graph.  done, if not nil, receives the result; otherwise failures
// are logged.
func (b *Bus) Emit(ctx context.Context, event interface{}, done func(error)) {
	r := b.registry
	ctx = context.WithoutCancel(ctx)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		err := nvelope.CatchPanic(func() error {
			return r.emit(ctx, event)
		}, r.log)
		if done != nil {
			done(err)
			return
		}
		if err != nil {
			r.log.Error("Event listener failed", map[string]interface{}{
				"event": fmt.Sprintf("%T", event),
				"error": err.Error(),
			})
		}
	}()
}

func (r *Registry) emit(ctx context.Context, event interface{}) error {
	if event == nil {
		return errors.New("emit nil event")
	}
	t := reflect.TypeOf(event)
	listeners := r.matching(t)
	if len(listeners) == 0 {
		return errors.Wrap(ErrNoListener, t.String())
	}
	if r.graph == nil {
		return deliver(ctx, event, listeners, nil)
	}
	scope, err := r.graph.EnterScope(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := scope.Close(); err != nil {
			r.log.Warn("Cannot close event scope", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return deliver(ctx, event, listeners, scope)
}

// Sink hands events to the Registry's Sink
func (b *Bus) Sink(ctx context.Context, events ...interface{}) error {
	if b.registry.sink == nil {
		return ErrSinkUnset
	}
	return b.registry.sink.Sink(ctx, events...)
}
