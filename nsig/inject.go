package nsig

import (
	"context"
	"reflect"

	"github.com/muir/nhttp/nparam"

	"github.com/pkg/errors"
)

// ParseResult is what the Injector found in one request
type ParseResult struct {
	// Params holds values by parameter name
	Params    map[string]interface{}
	Errors    []*nparam.Problem
	Callbacks []func()
}

// Cleanup runs the callbacks, last registered first.  It is safe to
// call more than once.
func (r *ParseResult) Cleanup() {
	callbacks := r.Callbacks
	r.Callbacks = nil
	for i := len(callbacks) - 1; i >= 0; i-- {
		callbacks[i]()
	}
}

func (r *ParseResult) problem(p *nparam.Problem) {
	r.Errors = append(r.Errors, p)
}

// Injector extracts the parameters of an EndpointSignature from
// requests.  It holds no per-request state and may be shared.
type Injector struct {
	sig *EndpointSignature
}

// NewInjector builds the injector for a signature
func NewInjector(sig *EndpointSignature) *Injector {
	return &Injector{sig: sig}
}

// Signature is the signature being injected
func (inj *Injector) Signature() *EndpointSignature { return inj.sig }

// ValidateRequest extracts every parameter: headers and cookies,
// then path, query, body, plugins, and finally dependencies.  All
// validation problems are returned together as *nparam.RequestErrors.
// Plugin and dependency failures are returned as they are.  The
// result is never nil so that its Cleanup can always be deferred.
func (inj *Injector) ValidateRequest(ctx context.Context, conn Connection, resolver Resolver) (*ParseResult, error) {
	return inj.validate(ctx, conn, resolver, true)
}

// ValidateWebSocket is ValidateRequest without a body
func (inj *Injector) ValidateWebSocket(ctx context.Context, conn Connection, resolver Resolver) (*ParseResult, error) {
	return inj.validate(ctx, conn, resolver, false)
}

func (inj *Injector) validate(ctx context.Context, conn Connection, resolver Resolver, withBody bool) (*ParseResult, error) {
	sig := inj.sig
	res := &ParseResult{Params: make(map[string]interface{}, len(sig.Names))}

	extract := func(params []*nparam.RequestParam, lookup nparam.Lookup) {
		for _, p := range params {
			l := lookup
			if p.Source == nparam.SourceCookie {
				// the Cookie header is parsed once, on first use
				l = conn.Cookie
			}
			v, problem := p.Extract(l)
			if problem != nil {
				res.problem(problem)
				continue
			}
			res.Params[p.Key()] = v
		}
	}

	extract(sig.HeaderParams, conn.Header().Values)
	extract(sig.PathParams, func(key string) []string {
		if v, ok := conn.PathValue(key); ok {
			return []string{v}
		}
		return nil
	})
	query := conn.Query()
	extract(sig.QueryParams, func(key string) []string {
		return query[key]
	})

	if withBody {
		if err := inj.body(conn, res); err != nil {
			return res, err
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	inj.packs(res)

	for _, p := range sig.Plugins {
		v, err := p.Provide(ctx, conn, resolver)
		if err != nil {
			return res, err
		}
		res.Params[p.Name] = v
	}

	if len(res.Errors) > 0 {
		return res, &nparam.RequestErrors{Problems: res.Errors}
	}

	for _, d := range sig.Dependencies {
		if resolver == nil {
			return res, errors.Errorf("no resolver for dependency %s", d.Name)
		}
		v, err := resolver.Resolve(ctx, d.Type, res.Params)
		if err != nil {
			return res, errors.Wrapf(err, "resolve %s", d.Name)
		}
		res.Params[d.Name] = v
	}

	for name := range sig.Transitive {
		delete(res.Params, name)
	}
	return res, nil
}

func (inj *Injector) body(conn Connection, res *ParseResult) error {
	sig := inj.sig
	switch {
	case sig.Form != nil:
		form, err := conn.Form(sig.FormMeta)
		if err != nil {
			var fe *nparam.FormError
			if errors.As(err, &fe) {
				res.problem(nparam.NewProblem(nparam.InvalidForm, nparam.SourceBody, sig.Form.Name, fe.Error()))
				return nil
			}
			return err
		}
		res.Callbacks = append(res.Callbacks, func() { _ = form.Close() })
		v, problem := sig.Form.Extract(form)
		if problem != nil {
			res.problem(problem)
			return nil
		}
		res.Params[sig.Form.Name] = v
	case sig.Body != nil:
		body, err := conn.Body()
		if err != nil {
			res.problem(nparam.NewProblem(nparam.InvalidDataType, nparam.SourceBody, sig.Body.Name, err.Error()))
			return nil
		}
		v, problem := sig.Body.Extract(body)
		if problem != nil {
			res.problem(problem)
			return nil
		}
		res.Params[sig.Body.Name] = v
	}
	return nil
}

func (inj *Injector) packs(res *ParseResult) {
	for _, pack := range inj.sig.Packs {
		values := make(map[string]interface{}, len(pack.Fields))
		complete := true
		for _, f := range pack.Fields {
			v, ok := res.Params[f.Key()]
			if !ok {
				complete = false
				continue
			}
			values[f.Name] = v
			delete(res.Params, f.Key())
		}
		if !complete {
			continue
		}
		v, err := pack.Assemble(values)
		if err != nil {
			res.problem(nparam.NewProblem(nparam.InvalidDataType, pack.Fields[0].Source, pack.Name, err.Error()))
			continue
		}
		res.Params[pack.Name] = v
	}
}

// Args puts the parameters in handler order for reflect.Value.Call.
// Absent parameters are zero values.
func (inj *Injector) Args(res *ParseResult) []reflect.Value {
	args := make([]reflect.Value, len(inj.sig.Names))
	for i, name := range inj.sig.Names {
		t := inj.sig.Types[i]
		v, ok := res.Params[name]
		if !ok || v == nil {
			args[i] = reflect.Zero(t)
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Type() != t {
			if rv.Type().AssignableTo(t) {
				c := reflect.New(t).Elem()
				c.Set(rv)
				rv = c
			} else if rv.Type().ConvertibleTo(t) {
				rv = rv.Convert(t)
			}
		}
		args[i] = rv
	}
	return args
}
