package npoint

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

// ServiceWithMux allows a group of related endpoints to be started
// together. This form of service represents an already-started
// service that binds its endpoints using gorilla
// mux.Router.HandleFunc.
type ServiceWithMux struct {
	Name      string
	endpoints map[string][]*EndpointRegistrationWithMux
	cfg       *config
	binder    endpointBinderWithMux
	lock      sync.Mutex
}

// ServiceRegistrationWithMux allows a group of related endpoints to be started
// together. This form of service represents pre-registered service
// service that binds its endpoints using gorilla
// mux.Router.HandleFunc.  None of the endpoints associated
// with this service will be parsed or start listening
// until Start() is called.
type ServiceRegistrationWithMux struct {
	Name      string
	started   *ServiceWithMux
	endpoints map[string][]*EndpointRegistrationWithMux
	cfg       *config
	lock      sync.Mutex
}

// EndpointRegistrationWithMux holds endpoint definitions for
// services that will be Start()ed with gorilla mux.  Route
// modifiers like Methods are remembered and applied when the
// endpoint is bound.
type EndpointRegistrationWithMux struct {
	EndpointRegistration
	muxroutes []func(*mux.Route) *mux.Route
	route     *mux.Route
}

type endpointBinderWithMux func(string, func(http.ResponseWriter, *http.Request)) *mux.Route

// PreregisterServiceWithMux creates a service that must be Start()ed later.
//
// The options apply to every endpoint registered with the service.
//
// The name of the service is just used for error messages and is otherwise ignored.
func PreregisterServiceWithMux(name string, opts ...Opt) *ServiceRegistrationWithMux {
	return &ServiceRegistrationWithMux{
		Name:      name,
		endpoints: make(map[string][]*EndpointRegistrationWithMux),
		cfg:       newConfig(opts),
	}
}

// RegisterServiceWithMux creates a service and starts it immediately.
func RegisterServiceWithMux(name string, router *mux.Router, opts ...Opt) *ServiceWithMux {
	sr := PreregisterServiceWithMux(name, opts...)
	return sr.Start(router)
}

// Start parses the endpoints of this Service and then registers all the
// endpoint handlers to the router.   Start() should be called at most once.
func (s *ServiceRegistrationWithMux) Start(router *mux.Router) *ServiceWithMux {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started != nil {
		panic("duplicate call to Start()")
	}
	for path, el := range s.endpoints {
		for _, endpoint := range el {
			endpoint.start(s.Name, s.cfg, path, router.HandleFunc)
		}
	}
	svc := &ServiceWithMux{
		Name:      s.Name,
		endpoints: s.endpoints,
		cfg:       s.cfg,
		binder:    router.HandleFunc,
	}
	s.started = svc
	return svc
}

func (r *EndpointRegistrationWithMux) start(service string, cfg *config, path string, binder endpointBinderWithMux) *mux.Route {
	r.route = binder(path, r.build(service, cfg).ServeHTTP)
	for _, mod := range r.muxroutes {
		r.route = mod(r.route)
	}
	return r.route
}

func newRegistrationWithMux(path string, handler interface{}, items []interface{}) *EndpointRegistrationWithMux {
	return &EndpointRegistrationWithMux{
		EndpointRegistration: EndpointRegistration{
			path:    path,
			handler: handler,
			items:   items,
		},
	}
}

// RegisterEndpoint pre-registers an endpoint.  Items are described
// at NewEndpoint.  A path may be registered more than once, for
// example with different Methods.
//
// The return value can be used to add mux.Route-like
// modifiers.  They will not take effect until the service is started.
func (s *ServiceRegistrationWithMux) RegisterEndpoint(path string, handler interface{}, items ...interface{}) *EndpointRegistrationWithMux {
	s.lock.Lock()
	defer s.lock.Unlock()
	r := newRegistrationWithMux(path, handler, items)
	s.endpoints[path] = append(s.endpoints[path], r)
	if s.started != nil {
		r.start(s.Name, s.cfg, path, s.started.binder)
	}
	return r
}

// RegisterEndpoint registers and immediately starts an endpoint.
func (s *ServiceWithMux) RegisterEndpoint(path string, handler interface{}, items ...interface{}) *mux.Route {
	s.lock.Lock()
	defer s.lock.Unlock()
	r := newRegistrationWithMux(path, handler, items)
	s.endpoints[path] = append(s.endpoints[path], r)
	return r.start(s.Name, s.cfg, path, s.binder)
}

func (r *EndpointRegistrationWithMux) add(f func(m *mux.Route) *mux.Route) *EndpointRegistrationWithMux {
	r.muxroutes = append(r.muxroutes, f)
	if r.route != nil {
		r.route = f(r.route)
	}
	return r
}

// Route returns the *mux.Route of a started endpoint
func (r *EndpointRegistrationWithMux) Route() (*mux.Route, error) {
	if r.route == nil {
		return nil, fmt.Errorf("registration is not complete for %s", r.path)
	}
	return r.route, nil
}

// Methods restricts the HTTP methods, as mux.Route.Methods does
func (r *EndpointRegistrationWithMux) Methods(methods ...string) *EndpointRegistrationWithMux {
	return r.add(func(m *mux.Route) *mux.Route { return m.Methods(methods...) })
}

// Headers is mux.Route.Headers
func (r *EndpointRegistrationWithMux) Headers(pairs ...string) *EndpointRegistrationWithMux {
	return r.add(func(m *mux.Route) *mux.Route { return m.Headers(pairs...) })
}

// Host is mux.Route.Host
func (r *EndpointRegistrationWithMux) Host(tpl string) *EndpointRegistrationWithMux {
	return r.add(func(m *mux.Route) *mux.Route { return m.Host(tpl) })
}

// MatcherFunc is mux.Route.MatcherFunc
func (r *EndpointRegistrationWithMux) MatcherFunc(f mux.MatcherFunc) *EndpointRegistrationWithMux {
	return r.add(func(m *mux.Route) *mux.Route { return m.MatcherFunc(f) })
}

// Name is mux.Route.Name
func (r *EndpointRegistrationWithMux) Name(name string) *EndpointRegistrationWithMux {
	return r.add(func(m *mux.Route) *mux.Route { return m.Name(name) })
}

// Queries is mux.Route.Queries.  Query parameters matched this way
// are still extracted by the endpoint from the query string.
func (r *EndpointRegistrationWithMux) Queries(pairs ...string) *EndpointRegistrationWithMux {
	return r.add(func(m *mux.Route) *mux.Route { return m.Queries(pairs...) })
}

// Schemes is mux.Route.Schemes
func (r *EndpointRegistrationWithMux) Schemes(schemes ...string) *EndpointRegistrationWithMux {
	return r.add(func(m *mux.Route) *mux.Route { return m.Schemes(schemes...) })
}

// GetError returns the route error, if any, once started
func (r *EndpointRegistrationWithMux) GetError() error {
	if r.route == nil {
		return nil
	}
	return r.route.GetError()
}
