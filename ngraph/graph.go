package ngraph

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
)

// Lifetime controls how often a constructor runs
type Lifetime int

const (
	// Singleton values are built once per Graph
	Singleton Lifetime = iota
	// Transient values are built every time they are resolved
	Transient
	// Scoped values are built once per Scope
	Scoped
)

func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Transient:
		return "transient"
	case Scoped:
		return "scoped"
	}
	return "unknown"
}

// ErrNotRegistered is returned when resolving a type with no
// constructor
var ErrNotRegistered = errors.New("type is not registered")

// ErrCycle is returned when constructors depend on each other
var ErrCycle = errors.New("dependency cycle")

// ErrScopeRequired is returned when a scoped value is resolved
// outside of a Scope
var ErrScopeRequired = errors.New("scoped dependency resolved without a scope")

// ErrClosed is returned when resolving from a closed Graph or Scope
var ErrClosed = errors.New("resolver is closed")

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	cleanupType = reflect.TypeOf(func() {})
)

// Param is a constructor input that the graph cannot build.  Its
// value must be supplied by name when resolving.
type Param struct {
	Name string
	Type reflect.Type
}

type input struct {
	Param
	isContext bool
}

// Node is a registered constructor
type Node struct {
	graph      *Graph
	provides   reflect.Type
	fn         reflect.Value
	inputs     []input
	lifetime   Lifetime
	hasErr     bool
	hasCleanup bool

	lock  sync.Mutex
	built bool
	value reflect.Value
}

// Option modifies a registration
type Option func(*registration)

type registration struct {
	names    []string
	lifetime Lifetime
	as       []reflect.Type
}

// Named gives names to the constructor's inputs, in order, skipping
// a context.Context input.  Inputs without a name are named after
// their type.
func Named(names ...string) Option {
	return func(r *registration) { r.names = names }
}

// WithLifetime sets the lifetime.  The default is Singleton.
func WithLifetime(l Lifetime) Option {
	return func(r *registration) { r.lifetime = l }
}

// As also registers the constructor as providing an interface.  Pass
// a pointer to the interface: ngraph.As((*io.Reader)(nil)).
func As(ifacePtr interface{}) Option {
	return func(r *registration) {
		r.as = append(r.as, reflect.TypeOf(ifacePtr).Elem())
	}
}

// Graph is a set of constructors keyed by the exact type they
// provide.  A Graph is safe for concurrent use.
type Graph struct {
	lock     sync.RWMutex
	nodes    map[reflect.Type]*Node
	cleanups cleanupList
	closed   bool
}

// New creates an empty Graph
func New() *Graph {
	return &Graph{
		nodes: make(map[reflect.Type]*Node),
	}
}

// Provide registers a constructor.  Accepted shapes are
//
//	func(inputs...) T
//	func(inputs...) (T, error)
//	func(inputs...) (T, func())
//	func(inputs...) (T, func(), error)
//
// The func() is a cleanup that runs when the value's owner (the
// Graph for singletons, the Scope otherwise) is closed.  A first
// input of context.Context receives the context passed to Resolve.
func (g *Graph) Provide(constructor interface{}, opts ...Option) error {
	reg := registration{lifetime: Singleton}
	for _, opt := range opts {
		opt(&reg)
	}
	n, err := characterize(constructor, reg)
	if err != nil {
		return err
	}
	n.graph = g
	for _, iface := range reg.as {
		if iface.Kind() != reflect.Interface || !n.provides.Implements(iface) {
			return errors.Errorf("%s does not implement %s", n.provides, iface)
		}
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	for _, t := range append([]reflect.Type{n.provides}, reg.as...) {
		if _, ok := g.nodes[t]; ok {
			return errors.Errorf("%s is already registered", t)
		}
	}
	g.nodes[n.provides] = n
	for _, iface := range reg.as {
		g.nodes[iface] = n
	}
	return nil
}

// MustProvide is Provide that panics on error
func (g *Graph) MustProvide(constructor interface{}, opts ...Option) {
	if err := g.Provide(constructor, opts...); err != nil {
		panic(err.Error())
	}
}

// Value registers an existing value as a singleton
func (g *Graph) Value(v interface{}, opts ...Option) error {
	rv := reflect.ValueOf(v)
	fn := reflect.MakeFunc(reflect.FuncOf(nil, []reflect.Type{rv.Type()}, false),
		func([]reflect.Value) []reflect.Value { return []reflect.Value{rv} })
	return g.Provide(fn.Interface(), opts...)
}

func characterize(constructor interface{}, reg registration) (*Node, error) {
	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func {
		return nil, errors.Errorf("constructor must be a function, not %T", constructor)
	}
	ft := fn.Type()
	n := &Node{
		fn:       fn,
		lifetime: reg.lifetime,
	}
	switch ft.NumOut() {
	case 1:
	case 2:
		switch ft.Out(1) {
		case errorType:
			n.hasErr = true
		case cleanupType:
			n.hasCleanup = true
		default:
			return nil, errors.Errorf("constructor %s: second return must be error or func()", ft)
		}
	case 3:
		if ft.Out(1) != cleanupType || ft.Out(2) != errorType {
			return nil, errors.Errorf("constructor %s: three returns must be (T, func(), error)", ft)
		}
		n.hasCleanup = true
		n.hasErr = true
	default:
		return nil, errors.Errorf("constructor %s must return a value", ft)
	}
	n.provides = ft.Out(0)
	if n.provides == errorType || n.provides == cleanupType {
		return nil, errors.Errorf("constructor %s must return a value first", ft)
	}
	names := reg.names
	for i := 0; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if i == 0 && in == contextType {
			n.inputs = append(n.inputs, input{Param: Param{Type: in}, isContext: true})
			continue
		}
		var name string
		if len(names) > 0 {
			name = names[0]
			names = names[1:]
		}
		if name == "" {
			name = typeName(in)
		}
		n.inputs = append(n.inputs, input{Param: Param{Name: name, Type: in}})
	}
	if len(names) > 0 {
		return nil, errors.Errorf("constructor %s: more names than inputs", ft)
	}
	return n, nil
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = strings.ToLower(t.Kind().String())
	}
	r := []rune(name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// IsRegistered reports whether t has a constructor
func (g *Graph) IsRegistered(t reflect.Type) bool {
	_, ok := g.Node(t)
	return ok
}

// Node returns the constructor registered for t
func (g *Graph) Node(t reflect.Type) (*Node, bool) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	n, ok := g.nodes[t]
	return n, ok
}

// Dependent is the type the node provides
func (n *Node) Dependent() reflect.Type { return n.provides }

// Lifetime is the node's lifetime
func (n *Node) Lifetime() Lifetime { return n.lifetime }

// Params are the inputs that are not registered in the graph: they
// must be supplied by name when resolving.
func (n *Node) Params() []Param {
	var params []Param
	for _, in := range n.inputs {
		if in.isContext || n.graph.IsRegistered(in.Type) {
			continue
		}
		params = append(params, in.Param)
	}
	return params
}

// Dependencies are the inputs that the graph builds
func (n *Node) Dependencies() []*Node {
	var deps []*Node
	for _, in := range n.inputs {
		if in.isContext {
			continue
		}
		if dep, ok := n.graph.Node(in.Type); ok {
			deps = append(deps, dep)
		}
	}
	return deps
}

// Scoped is true if the node, or anything it depends on, has the
// Scoped lifetime
func (n *Node) Scoped() bool {
	return n.scoped(map[*Node]bool{})
}

func (n *Node) scoped(seen map[*Node]bool) bool {
	if n.lifetime == Scoped {
		return true
	}
	if seen[n] {
		return false
	}
	seen[n] = true
	for _, dep := range n.Dependencies() {
		if dep.scoped(seen) {
			return true
		}
	}
	return false
}

// RequestBound is true if the node, or anything it depends on, takes
// inputs from the known values of a resolve.  A request bound Singleton
// is built on every resolve rather than cached.
func (n *Node) RequestBound() bool {
	return n.requestBound(map[*Node]bool{})
}

func (n *Node) requestBound(seen map[*Node]bool) bool {
	if len(n.Params()) > 0 {
		return true
	}
	if seen[n] {
		return false
	}
	seen[n] = true
	for _, dep := range n.Dependencies() {
		if dep.requestBound(seen) {
			return true
		}
	}
	return false
}

func (n *Node) String() string {
	return n.lifetime.String() + " " + n.provides.String()
}

// Resolve builds (or finds) a value of type t.  Inputs that are not
// registered are taken from known by name.  Scoped values cannot be
// resolved from the Graph directly; use a Scope.
func (g *Graph) Resolve(ctx context.Context, t reflect.Type, known map[string]interface{}) (interface{}, error) {
	g.lock.RLock()
	closed := g.closed
	g.lock.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	v, err := g.resolve(ctx, t, known, nil, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (g *Graph) resolve(ctx context.Context, t reflect.Type, known map[string]interface{}, scope *Scope, visiting map[reflect.Type]bool) (reflect.Value, error) {
	n, ok := g.Node(t)
	if !ok {
		return reflect.Value{}, errors.Wrap(ErrNotRegistered, t.String())
	}
	if visiting[n.provides] {
		return reflect.Value{}, errors.Wrapf(ErrCycle, "resolving %s", t)
	}
	visiting[n.provides] = true
	defer delete(visiting, n.provides)

	lifetime := n.lifetime
	if lifetime == Singleton && n.RequestBound() {
		lifetime = Transient
	}
	switch lifetime {
	case Singleton:
		n.lock.Lock()
		defer n.lock.Unlock()
		if n.built {
			return n.value, nil
		}
		// singletons cannot capture scoped values
		v, cleanup, err := n.build(ctx, known, nil, visiting)
		if err != nil {
			return reflect.Value{}, err
		}
		n.built = true
		n.value = v
		g.cleanups.add(cleanup)
		return v, nil
	case Scoped:
		if scope == nil {
			return reflect.Value{}, errors.Wrap(ErrScopeRequired, t.String())
		}
		return scope.cached(n, func() (reflect.Value, func(), error) {
			return n.build(ctx, known, scope, visiting)
		})
	default:
		v, cleanup, err := n.build(ctx, known, scope, visiting)
		if err != nil {
			return reflect.Value{}, err
		}
		if scope != nil {
			scope.cleanups.add(cleanup)
		} else {
			g.cleanups.add(cleanup)
		}
		return v, nil
	}
}

func (n *Node) build(ctx context.Context, known map[string]interface{}, scope *Scope, visiting map[reflect.Type]bool) (reflect.Value, func(), error) {
	args := make([]reflect.Value, len(n.inputs))
	for i, in := range n.inputs {
		switch {
		case in.isContext:
			if ctx == nil {
				ctx = context.Background()
			}
			args[i] = reflect.ValueOf(&ctx).Elem()
		case n.graph.IsRegistered(in.Type):
			v, err := n.graph.resolve(ctx, in.Type, known, scope, visiting)
			if err != nil {
				return reflect.Value{}, nil, errors.Wrapf(err, "build %s", n.provides)
			}
			args[i] = v
		default:
			v, ok := known[in.Name]
			if !ok {
				return reflect.Value{}, nil, errors.Errorf("build %s: no value for %s (%s)", n.provides, in.Name, in.Type)
			}
			if v == nil {
				args[i] = reflect.Zero(in.Type)
				continue
			}
			rv := reflect.ValueOf(v)
			if !rv.Type().AssignableTo(in.Type) {
				if !rv.Type().ConvertibleTo(in.Type) {
					return reflect.Value{}, nil, errors.Errorf("build %s: %s is %s, not %s", n.provides, in.Name, rv.Type(), in.Type)
				}
				rv = rv.Convert(in.Type)
			}
			args[i] = rv
		}
	}
	out := n.fn.Call(args)
	if n.hasErr {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			return reflect.Value{}, nil, errors.Wrapf(err, "construct %s", n.provides)
		}
	}
	var cleanup func()
	if n.hasCleanup {
		cleanup, _ = out[1].Interface().(func())
	}
	return out[0], cleanup, nil
}

// Close runs singleton cleanups in reverse order of construction.
// Resolving after Close fails.
func (g *Graph) Close() error {
	g.lock.Lock()
	g.closed = true
	g.lock.Unlock()
	g.cleanups.run()
	return nil
}

type cleanupList struct {
	lock  sync.Mutex
	funcs []func()
}

func (c *cleanupList) add(f func()) {
	if f == nil {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.funcs = append(c.funcs, f)
}

func (c *cleanupList) run() {
	c.lock.Lock()
	funcs := c.funcs
	c.funcs = nil
	c.lock.Unlock()
	for i := len(funcs) - 1; i >= 0; i-- {
		funcs[i]()
	}
}
