package nsig

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/ncodec"
	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/ntype"
	"github.com/muir/nhttp/nvelope"

	"github.com/pkg/errors"
)

type missing struct{}

// Missing is the default of a parameter that has none
var Missing interface{} = missing{}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Parsed is one extractor produced by ParseParam.  Exactly one of
// the pointer fields is set.
type Parsed struct {
	Name       string
	Request    *nparam.RequestParam
	Body       *nparam.BodyParam
	Form       *nparam.FormParam
	Pack       *nparam.PackParam
	Dependency *Dependency
	Plugin     *PluginParam
}

// Source is where the value comes from, empty for dependencies,
// plugins and packs
func (p Parsed) Source() nparam.Source {
	switch {
	case p.Request != nil:
		return p.Request.Source
	case p.Body != nil, p.Form != nil:
		return nparam.SourceBody
	}
	return nparam.SourceNone
}

// Alias is the wire name of a path, query, header, or cookie
// parameter
func (p Parsed) Alias() string {
	if p.Request != nil {
		return p.Request.Alias
	}
	return ""
}

// Parser turns handler declarations into EndpointSignatures.  One
// Parser is used per route.
type Parser struct {
	graph    Graph
	route    string
	pathKeys map[string]bool
	reg      *ncodec.Registry
	plugins  map[reflect.Type]PluginFunc
	log      nvelope.BasicLogger
}

// ParserOpt configures a Parser
type ParserOpt func(*Parser)

// WithRegistry sets the decoder and encoder registry.  The default
// is ncodec.Default().
func WithRegistry(reg *ncodec.Registry) ParserOpt {
	return func(p *Parser) { p.reg = reg }
}

// WithPlugin makes parameters of type t plugin parameters
func WithPlugin(t reflect.Type, fn PluginFunc) ParserOpt {
	return func(p *Parser) { p.plugins[t] = fn }
}

// WithLogger sets the logger injected into nvelope.BasicLogger
// parameters
func WithLogger(log nvelope.BasicLogger) ParserOpt {
	return func(p *Parser) {
		p.log = log
		p.plugins[loggerType] = builtinPlugins(log)[loggerType]
	}
}

// WithBus supplies *nbus.Bus parameters from reg.  Each request gets
// a Bus that resolves listener dependencies from the request's
// resolver.
func WithBus(reg *nbus.Registry) ParserOpt {
	return func(p *Parser) { p.plugins[busType] = busPlugin(reg) }
}

// NewParser creates a parser for handlers of route.  The graph may
// be nil when there are no dependencies.
func NewParser(graph Graph, route string, opts ...ParserOpt) *Parser {
	p := &Parser{
		graph:    graph,
		route:    route,
		pathKeys: make(map[string]bool),
		reg:      ncodec.Default(),
		log:      nvelope.NoLogger(),
	}
	p.plugins = builtinPlugins(p.log)
	for _, key := range PathKeys(route) {
		p.pathKeys[key] = true
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry is the parser's registry
func (p *Parser) Registry() *ncodec.Registry { return p.reg }

// PathKeys lists the {name} and {name:pattern} variables of a route
func PathKeys(route string) []string {
	var keys []string
	depth, start := 0, 0
	for i, c := range route {
		switch c {
		case '{':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case '}':
			depth--
			if depth == 0 {
				name := route[start:i]
				if colon := strings.IndexByte(name, ':'); colon >= 0 {
					name = name[:colon]
				}
				name = strings.TrimSuffix(name, "...")
				if name != "" && name != "$" {
					keys = append(keys, name)
				}
			}
		}
	}
	return keys
}

// Parse describes a handler.  There must be one Arg per handler
// parameter.  The handler may return nothing, a value, an error, or
// a value and an error.  The value's Go type determines the
// response; use ParseWithReturns to describe it further.
func (p *Parser) Parse(fn interface{}, args ...ArgSpec) (*EndpointSignature, error) {
	return p.ParseWithReturns(fn, nil, args...)
}

// ParseWithReturns is Parse with an explicit return expression.  A
// nil expression uses the handler's result type.
func (p *Parser) ParseWithReturns(fn interface{}, returns ntype.Expr, args ...ArgSpec) (*EndpointSignature, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, errors.Errorf("handler must be a function, not %T", fn)
	}
	ft := v.Type()
	if ft.IsVariadic() {
		return nil, nparam.NotSupported("variadic handler %s", ft)
	}
	if len(args) != ft.NumIn() {
		return nil, errors.Errorf("handler %s takes %d parameters but %d were described", ft, ft.NumIn(), len(args))
	}
	sig := &EndpointSignature{
		Route:      p.route,
		Transitive: make(map[string]bool),
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			sig.HasError = true
		} else {
			sig.Result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.Errorf("handler %s: second result must be error", ft)
		}
		sig.HasError = true
		sig.Result = ft.Out(0)
	default:
		return nil, errors.Errorf("handler %s returns too many results", ft)
	}

	seen := make(map[string]bool)
	var deps []Parsed
	for i, a := range args {
		if a.name == "" {
			return nil, &nparam.InvalidParamError{Name: "#" + strconv.Itoa(i), Reason: "no name"}
		}
		if seen[a.name] {
			return nil, &nparam.InvalidParamError{Name: a.name, Reason: "duplicate parameter name"}
		}
		seen[a.name] = true
		goType := ft.In(i)
		expr, err := argExpr(a, goType)
		if err != nil {
			return nil, err
		}
		def := Missing
		if a.hasDefault {
			def = a.def
		}
		parsed, err := p.ParseParam(a.name, expr, def)
		if err != nil {
			return nil, err
		}
		sig.Names = append(sig.Names, a.name)
		sig.Types = append(sig.Types, goType)
		for _, pp := range parsed {
			if pp.Name != a.name && pp.Request != nil && pp.Request.Pack == "" {
				// a dependency's own request parameter
				deps = append(deps, pp)
				continue
			}
			if pp.Name != a.name && pp.Plugin != nil {
				deps = append(deps, pp)
				continue
			}
			if err := sig.add(pp); err != nil {
				return nil, err
			}
		}
	}
	for _, pp := range deps {
		if sig.has(pp.Name) {
			continue
		}
		if err := sig.add(pp); err != nil {
			return nil, err
		}
		sig.Transitive[pp.Name] = true
	}
	for _, d := range sig.Dependencies {
		if d.Node.Scoped() || d.Node.RequestBound() {
			sig.Scoped = true
		}
	}
	for _, pl := range sig.Plugins {
		// handlers and bus listeners may resolve scoped values themselves
		if pl.Type == resolverType || pl.Type == busType {
			sig.Scoped = true
		}
	}

	if returns == nil {
		if sig.Result != nil {
			returns = ntype.TypeOf(sig.Result)
			if _, ok := streamItem(sig.Result); ok {
				returns = ntype.Annotate(returns, Stream)
			}
		} else {
			returns = ntype.Nil
		}
	}
	var err error
	sig.Returns, err = ParseReturns(p.reg, returns)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func argExpr(a ArgSpec, goType reflect.Type) (ntype.Expr, error) {
	expr := a.expr
	if expr == nil {
		expr = ntype.TypeOf(goType)
	} else {
		t, err := ntype.Concrete(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "param %s", a.name)
		}
		if t == nil || !t.AssignableTo(goType) {
			return nil, &nparam.InvalidParamError{Name: a.name, Reason: "declared type " + expr.String() + " is not assignable to " + goType.String()}
		}
	}
	if len(a.meta) > 0 {
		expr = ntype.Annotate(expr, a.meta...)
	}
	return expr, nil
}

func (s *EndpointSignature) add(pp Parsed) error {
	switch {
	case pp.Request != nil:
		if pp.Request.Pack == "" && s.has(pp.Name) {
			return &nparam.InvalidParamError{Name: pp.Name, Reason: "declared twice"}
		}
		// nolint:exhaustive
		switch pp.Request.Source {
		case nparam.SourcePath:
			s.PathParams = append(s.PathParams, pp.Request)
		case nparam.SourceQuery:
			s.QueryParams = append(s.QueryParams, pp.Request)
		default:
			s.HeaderParams = append(s.HeaderParams, pp.Request)
		}
	case pp.Body != nil, pp.Form != nil:
		if s.Body != nil || s.Form != nil {
			return nparam.NotSupported("more than one body parameter: %s and %s", s.BodyName(), pp.Name)
		}
		s.Body = pp.Body
		s.Form = pp.Form
		if pp.Form != nil {
			s.FormMeta = pp.Form.Meta
		}
	case pp.Pack != nil:
		s.Packs = append(s.Packs, pp.Pack)
	case pp.Dependency != nil:
		s.Dependencies = append(s.Dependencies, pp.Dependency)
	case pp.Plugin != nil:
		s.Plugins = append(s.Plugins, pp.Plugin)
	}
	return nil
}

// ParseParam classifies one parameter.  Pass Missing when there is
// no default.  A parameter may produce several extractors: a pack
// produces one per field followed by the pack itself, and a
// dependency is followed by the request parameters its constructors
// need.
//
// Classification, first match wins:
//
//  1. a name in the route is a path parameter
//  2. metadata with a PluginMarker is a plugin; an explicit body or
//     form marker is a body
//  3. an unmarked type registered in the graph is a dependency
//  4. a framework type (context.Context, *http.Request, ...) is a
//     plugin
//  5. a struct with an explicit non-body marker is a pack
//  6. textual, scalar, and sequence types are query parameters
//     unless marked otherwise
//  7. other structured types are the body
func (p *Parser) ParseParam(name string, expr ntype.Expr, def interface{}) ([]Parsed, error) {
	hasDefault := def != Missing
	if !hasDefault {
		def = nil
	}
	base, meta, err := ntype.Resolve(expr)
	if err != nil {
		return nil, &nparam.InvalidParamError{Name: name, Reason: err.Error()}
	}
	merged, err := nparam.Merge(meta)
	if err != nil {
		return nil, err
	}
	if len(merged.Sources) > 1 {
		srcs := make([]string, len(merged.Sources))
		for i, s := range merged.Sources {
			srcs[i] = string(s)
		}
		return nil, &nparam.InvalidParamError{Name: name, Reason: "multiple param markers: " + strings.Join(srcs, ", ")}
	}
	t, err := ntype.Concrete(base)
	if err != nil {
		return nil, &nparam.InvalidParamError{Name: name, Reason: err.Error()}
	}
	if t == nil {
		return nil, &nparam.InvalidParamError{Name: name, Reason: "parameter cannot be nil"}
	}
	if hasDefault {
		def, err = convertDefault(name, t, def)
		if err != nil {
			return nil, err
		}
	}

	// 1. path
	if p.pathKeys[name] || (merged.Source == nparam.SourcePath && p.pathKeys[merged.Alias]) {
		if !p.pathKeys[merged.Alias] {
			merged.Alias = name
		}
		rp, err := p.requestParam(name, nparam.SourcePath, t, merged, def, hasDefault)
		if err != nil {
			return nil, err
		}
		return []Parsed{{Name: name, Request: rp}}, nil
	}
	if merged.Source == nparam.SourcePath {
		return nil, &nparam.InvalidParamError{Name: name, Reason: "path parameter is not in route " + p.route}
	}

	// 2. explicit markers
	for _, m := range meta {
		if marker, ok := m.(PluginMarker); ok {
			fn, err := marker.Plugin(name, t)
			if err != nil {
				return nil, errors.Wrapf(err, "plugin param %s", name)
			}
			return []Parsed{{Name: name, Plugin: &PluginParam{Name: name, Type: t, Provide: fn}}}, nil
		}
	}
	if merged.Source == nparam.SourceBody {
		return p.bodyParam(name, t, merged, def, hasDefault)
	}

	// 3. dependency
	if !merged.Explicit && p.graph != nil && p.graph.IsRegistered(t) {
		return p.dependency(name, t)
	}

	// 4. plugin
	if fn, ok := p.plugins[t]; ok {
		return []Parsed{{Name: name, Plugin: &PluginParam{Name: name, Type: t, Provide: fn}}}, nil
	}

	structured := ntype.IsStructuredExpr(base)

	// 5. pack
	if merged.Explicit && structured && !merged.SkipUnpack && merged.Content == "" {
		switch {
		case ntype.IsUnion(base):
			return nil, nparam.PackError(name, "a param pack cannot be part of a union")
		case hasDefault:
			return nil, nparam.PackError(name, "a param pack cannot have a default")
		}
		return p.pack(name, merged.Source, t, merged)
	}

	// 6. query and other text parameters
	if merged.Explicit || ntype.IsTextual(base) || ntype.IsScalar(t) || ntype.IsNonTextualSequence(t) || t.Kind() == reflect.Interface {
		source := merged.Source
		if source == nparam.SourceNone {
			source = nparam.SourceQuery
		}
		rp, err := p.requestParam(name, source, t, merged, def, hasDefault)
		if err != nil {
			return nil, err
		}
		return []Parsed{{Name: name, Request: rp}}, nil
	}

	// 7. body
	if structured {
		return p.bodyParam(name, t, merged, def, hasDefault)
	}

	return nil, &nparam.InvalidParamError{Name: name, Reason: "invalid parameter type " + t.String()}
}

func (p *Parser) requestParam(name string, source nparam.Source, t reflect.Type, m nparam.Merged, def interface{}, hasDefault bool) (*nparam.RequestParam, error) {
	sequence := ntype.IsNonTextualSequence(t) && m.Content == ""
	multivals := sequence && source != nparam.SourcePath
	decode, err := nparam.TextDecoderFor(p.reg, t, m, multivals)
	if err != nil {
		return nil, &nparam.InvalidParamError{Name: name, Reason: err.Error()}
	}
	c := m.Constraint
	var check nparam.Check
	if sequence && (c.Gt != nil || c.Ge != nil || c.Lt != nil || c.Le != nil || c.MultipleOf != nil || c.Pattern != "") {
		check, err = c.CompileElements(p.reg, t)
	} else {
		check, err = c.Compile(p.reg, t)
	}
	if err != nil {
		return nil, &nparam.InvalidParamError{Name: name, Reason: err.Error()}
	}
	return nparam.NewRequestParam(nparam.RequestParam{
		Name:       name,
		Alias:      m.Alias,
		Source:     source,
		Type:       t,
		Multivals:  multivals,
		Decode:     decode,
		Check:      check,
		Default:    def,
		HasDefault: hasDefault,
	})
}

func (p *Parser) bodyParam(name string, t reflect.Type, m nparam.Merged, def interface{}, hasDefault bool) ([]Parsed, error) {
	if m.Form != nil {
		decode, err := nparam.FormDecoderFor(p.reg, t, m, def, hasDefault)
		if err != nil {
			return nil, &nparam.InvalidParamError{Name: name, Reason: err.Error()}
		}
		return []Parsed{{Name: name, Form: &nparam.FormParam{
			Name:       name,
			Type:       t,
			Meta:       m.Form,
			Decode:     decode,
			Default:    def,
			HasDefault: hasDefault,
		}}}, nil
	}
	contentType := m.Content
	if contentType == "" {
		contentType = "application/json"
	}
	decode, err := nparam.BodyDecoderFor(p.reg, t, m, contentType)
	if err != nil {
		return nil, &nparam.InvalidParamError{Name: name, Reason: err.Error()}
	}
	check, err := m.Constraint.Compile(p.reg, t)
	if err != nil {
		return nil, &nparam.InvalidParamError{Name: name, Reason: err.Error()}
	}
	return []Parsed{{Name: name, Body: &nparam.BodyParam{
		Name:        name,
		Type:        t,
		ContentType: contentType,
		Decode:      decode,
		Check:       check,
		Default:     def,
		HasDefault:  hasDefault,
	}}}, nil
}

func (p *Parser) dependency(name string, t reflect.Type) ([]Parsed, error) {
	node, ok := p.graph.Node(t)
	if !ok {
		return nil, errors.Errorf("%s is registered but has no node", t)
	}
	dep := &Dependency{
		Name:   name,
		Type:   t,
		Node:   node,
		Params: transitiveParams(node),
	}
	out := []Parsed{{Name: name, Dependency: dep}}
	for _, param := range dep.Params {
		sub, err := p.ParseParam(param.Name, ntype.TypeOf(param.Type), Missing)
		if err != nil {
			return nil, errors.Wrapf(err, "dependency %s of %s", t, name)
		}
		for _, s := range sub {
			if s.Dependency != nil || s.Pack != nil || s.Body != nil || s.Form != nil {
				return nil, &nparam.InvalidParamError{Name: param.Name, Reason: "constructor inputs of " + t.String() + " must be request or plugin parameters"}
			}
		}
		out = append(out, sub...)
	}
	return out, nil
}

// transitiveParams collects the request parameters of a node and
// everything it depends on, in order, without repeats
func transitiveParams(n *ngraph.Node) []ngraph.Param {
	var params []ngraph.Param
	seen := make(map[string]bool)
	visited := make(map[*ngraph.Node]bool)
	var walk func(*ngraph.Node)
	walk = func(n *ngraph.Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, param := range n.Params() {
			if !seen[param.Name] {
				seen[param.Name] = true
				params = append(params, param)
			}
		}
		for _, dep := range n.Dependencies() {
			walk(dep)
		}
	}
	walk(n)
	return params
}

func convertDefault(name string, t reflect.Type, def interface{}) (interface{}, error) {
	if def == nil {
		if ntype.Nillable(t) {
			return nil, nil
		}
		return nil, &nparam.InvalidParamError{Name: name, Reason: "nil default for " + t.String()}
	}
	rv := reflect.ValueOf(def)
	switch {
	case rv.Type() == t:
		return def, nil
	case rv.Type().AssignableTo(t):
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out.Interface(), nil
	case rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t),
		isNumber(rv.Type()) && isNumber(t):
		return rv.Convert(t).Interface(), nil
	}
	return nil, &nparam.InvalidParamError{Name: name, Reason: "default " + rv.Type().String() + " is not a " + t.String()}
}

func isNumber(t reflect.Type) bool {
	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
