package npoint

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Service allows a group of related endpoints to be started
// together. This form of service represents an already-started
// service that binds its endpoints using a simple binder like
// http.ServeMux.HandleFunc().
type Service struct {
	Name      string
	endpoints map[string]*EndpointRegistration
	cfg       *config
	binder    EndpointBinder
	lock      sync.Mutex
}

// ServiceRegistration allows a group of related endpoints to be started
// together. This form of service represents pre-registered service
// service that binds its endpoints using a simple binder like
// http.ServeMux.HandleFunc().  None of the endpoints associated
// with this service will be parsed or start listening
// until Start() is called.
type ServiceRegistration struct {
	Name      string
	started   *Service
	endpoints map[string]*EndpointRegistration
	cfg       *config
	lock      sync.Mutex
}

// EndpointRegistration holds an endpoint definition until its
// service starts
type EndpointRegistration struct {
	path     string
	handler  interface{}
	items    []interface{}
	endpoint *Endpoint
}

// PreregisterService creates a service that must be Start()ed later.
//
// The options apply to every endpoint registered with the service;
// endpoints may add to or override them.
//
// The name of the service is just used for error messages and is otherwise ignored.
func PreregisterService(name string, opts ...Opt) *ServiceRegistration {
	return &ServiceRegistration{
		Name:      name,
		endpoints: make(map[string]*EndpointRegistration),
		cfg:       newConfig(opts),
	}
}

// RegisterService creates a service and starts it immediately.
func RegisterService(name string, binder EndpointBinder, opts ...Opt) *Service {
	sr := PreregisterService(name, opts...)
	return sr.Start(binder)
}

func newConfig(opts []Opt) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// EndpointBinder is the signature of the binding function
// used to start a ServiceRegistration.  http.ServeMux.HandleFunc
// is one.
type EndpointBinder func(path string, fn func(http.ResponseWriter, *http.Request))

// Start parses all endpoints pre-registered with this service and
// binds them.  Start() may only be called once.  Endpoint
// configuration errors panic.
func (s *ServiceRegistration) Start(binder EndpointBinder) *Service {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started != nil {
		panic("duplicate call to Start()")
	}
	for path, endpoint := range s.endpoints {
		endpoint.start(s.Name, s.cfg, path, binder)
	}
	svc := &Service{
		Name:      s.Name,
		endpoints: s.endpoints,
		cfg:       s.cfg,
		binder:    binder,
	}
	s.started = svc
	return svc
}

func (r *EndpointRegistration) build(service string, cfg *config) *Endpoint {
	if r.endpoint == nil {
		e, err := newEndpoint(cfg, r.path, r.handler, r.items)
		if err != nil {
			panic(fmt.Sprintf("Cannot bind %s %s: %s", service, r.path, err))
		}
		r.endpoint = e
	}
	return r.endpoint
}

func (r *EndpointRegistration) start(service string, cfg *config, path string, binder EndpointBinder) {
	binder(path, r.build(service, cfg).ServeHTTP)
}

// Path is the path the endpoint was registered with
func (r *EndpointRegistration) Path() string { return r.path }

// Endpoints lists the registered endpoints sorted by path
func (s *ServiceRegistration) Endpoints() []*EndpointRegistration {
	s.lock.Lock()
	defer s.lock.Unlock()
	list := make([]*EndpointRegistration, 0, len(s.endpoints))
	for _, r := range s.endpoints {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].path < list[j].path })
	return list
}

// Endpoint returns the endpoint once its service has started
func (r *EndpointRegistration) Endpoint() (*Endpoint, bool) {
	return r.endpoint, r.endpoint != nil
}

// CreateEndpoint generates a http.HandlerFunc from a handler and its
// parameter descriptions.  This bypasses services.  The path is the
// route template the handler will be bound to; its {variables} are
// path parameters.  Configuration errors panic.
func CreateEndpoint(path string, handler interface{}, items ...interface{}) http.HandlerFunc {
	e, err := NewEndpoint(path, handler, items...)
	if err != nil {
		panic(fmt.Sprintf("Cannot create HandlerFunc: %s", err))
	}
	return e.ServeHTTP
}

// RegisterEndpoint pre-registers an endpoint.  Items are described
// at NewEndpoint.
//
// The return value does not need to be retained -- it is also remembered
// in the ServiceRegistration.
//
// The endpoint will not be parsed until the service is started.  If the
// service has already been started, the endpoint will be started immediately.
func (s *ServiceRegistration) RegisterEndpoint(path string, handler interface{}, items ...interface{}) *EndpointRegistration {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.endpoints[path] != nil {
		panic("endpoint path already registered")
	}
	r := &EndpointRegistration{
		path:    path,
		handler: handler,
		items:   items,
	}
	s.endpoints[path] = r
	if s.started != nil {
		r.start(s.Name, s.cfg, path, s.started.binder)
	}
	return r
}

// RegisterEndpoint registers and immediately starts an endpoint.
//
// The return value does not need to be retained -- it is also remembered
// in the Service.
func (s *Service) RegisterEndpoint(path string, handler interface{}, items ...interface{}) *EndpointRegistration {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.endpoints[path] != nil {
		panic("endpoint path already registered")
	}
	r := &EndpointRegistration{
		path:    path,
		handler: handler,
		items:   items,
	}
	s.endpoints[path] = r
	r.start(s.Name, s.cfg, path, s.binder)
	return r
}
