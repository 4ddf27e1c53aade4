package nserve

import (
	"context"
	"reflect"
	"sync"

	"github.com/muir/nhttp/ngraph"

	"github.com/pkg/errors"
)

// Callback is run when a hook is invoked
type Callback func(ctx context.Context, app *App) error

// App provides hooks to start and stop libraries that are used by an app.  It
// expected that an App corresponds to a service and that libraries that the
// service uses need to be started & stopped.
type App struct {
	Name    string
	Graph   *ngraph.Graph
	lock    sync.Mutex // held when adding hooks
	runLock sync.Mutex // held when running hooks
	hooks   map[hookID][]Callback
	cancel  context.CancelFunc
	ctx     context.Context
}

// CreateApp registers the app itself in graph and then calls each
// constructor, in order, through the graph.  Constructors take the
// *App (and anything else in the graph) and register their start and
// stop callbacks with On.  The values they return are added to the
// graph as singletons, so later constructors and endpoints can depend
// on them.
//
// Shutdown cancels the app's context and closes the graph.
func CreateApp(name string, graph *ngraph.Graph, constructors ...interface{}) (*App, error) {
	if graph == nil {
		graph = ngraph.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Name:   name,
		Graph:  graph,
		hooks:  make(map[hookID][]Callback),
		cancel: cancel,
		ctx:    ctx,
	}
	app.hooks[Shutdown.ID] = append(app.hooks[Shutdown.ID], func(context.Context, *App) error {
		cancel()
		return graph.Close()
	})
	if err := graph.Value(app); err != nil {
		return app, errors.Wrapf(err, "app %s", name)
	}
	for _, c := range constructors {
		t := reflect.TypeOf(c)
		if t == nil || t.Kind() != reflect.Func || t.NumOut() == 0 {
			return app, errors.Errorf("app %s: %T is not a constructor", name, c)
		}
		if err := graph.Provide(c); err != nil {
			return app, errors.Wrapf(err, "app %s", name)
		}
		if _, err := graph.Resolve(ctx, t.Out(0), nil); err != nil {
			return app, errors.Wrapf(err, "app %s", name)
		}
	}
	return app, nil
}

// Context is cancelled by Shutdown
func (app *App) Context() context.Context { return app.ctx }

// On registers a callback to be invoked on hook invocation.  This can be used during
// callbacks, for example a start callback, can register a stop callback.
func (app *App) On(h *Hook, callbacks ...Callback) {
	app.lock.Lock()
	defer app.lock.Unlock()
	app.hooks[h.ID] = append(app.hooks[h.ID], callbacks...)
}

// Do invokes the callbacks for a hook.  It returns only the first error reported
// unless the hook provides an error combiner.
func (app *App) Do(ctx context.Context, h *Hook) error {
	app.runLock.Lock()
	defer app.runLock.Unlock()
	return app.do(ctx, h)
}

func (app *App) do(ctx context.Context, h *Hook) error {
	h.lock.Lock()
	ec := h.ErrorCombiner
	order := h.Order
	continuePast := h.ContinuePast
	onError := append([]*Hook(nil), h.InvokeOnError...)
	h.lock.Unlock()
	if ec == nil {
		ec = func(err, _ error) error { return err }
	}
	ecw := func(e1, e2 error) error {
		if e1 == nil {
			return e2
		}
		if e2 == nil {
			return e1
		}
		return ec(e1, e2)
	}
	app.lock.Lock()
	callbacks := make([]Callback, len(app.hooks[h.ID]))
	copy(callbacks, app.hooks[h.ID])
	app.lock.Unlock()
	var err error
	run := func(cb Callback) {
		err = ecw(err, errors.Wrap(cb(ctx, app), h.Name))
	}
	if order == ForwardOrder {
		for _, cb := range callbacks {
			run(cb)
			if err != nil && !continuePast {
				break
			}
		}
	} else {
		for i := len(callbacks) - 1; i >= 0; i-- {
			run(callbacks[i])
			if err != nil && !continuePast {
				break
			}
		}
	}
	if err != nil {
		for _, oe := range onError {
			err = ecw(err, app.do(ctx, oe))
		}
	}
	return err
}
