package ntype

import (
	"reflect"

	"github.com/pkg/errors"
)

// ErrForwardRef is returned when resolving a ForwardRef
var ErrForwardRef = errors.New("forward references are not supported")

// ErrUnboundTypeVar is returned by Concrete for a type variable that
// was never given a type argument
var ErrUnboundTypeVar = errors.New("unbound type variable")

// Resolve normalizes a type expression into a base expression and the
// ordered metadata attached to it.  Alias indirection is followed,
// nested Annotated wrappers are flattened with inner metadata before
// outer metadata, union members are resolved individually with their
// metadata hoisted to the union, and generic aliases have their type
// arguments substituted.  A nil metadata slice means there was none.
//
// Resolve is idempotent: resolving Annotate(Annotate(X, m1), m2) and
// Annotate(X, m1, m2) give the same result.
func Resolve(e Expr) (Expr, []any, error) {
	base, meta, err := resolve(e, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if len(meta) == 0 {
		meta = nil
	}
	return base, meta, nil
}

// MustResolve is Resolve that panics on error
func MustResolve(e Expr) (Expr, []any) {
	base, meta, err := Resolve(e)
	if err != nil {
		panic(err.Error())
	}
	return base, meta
}

func resolve(e Expr, meta []any, args []Expr) (Expr, []any, error) {
	switch x := e.(type) {
	case nil:
		return Nil, meta, nil
	case ForwardRef:
		return nil, nil, errors.Wrapf(ErrForwardRef, "cannot resolve %s", x)
	case *Alias:
		if args == nil {
			args = x.args
		}
		if len(x.Params) == 0 || len(args) == 0 {
			return resolve(x.Value, meta, args)
		}
		binding, err := bind(x, args)
		if err != nil {
			return nil, nil, err
		}
		base, inner, err := resolve(x.Value, meta, nil)
		if err != nil {
			return nil, nil, err
		}
		if len(inner) == 0 {
			// the container itself gets the arguments
			return resolveSubstituted(Substitute(base, binding))
		}
		// the first argument becomes the base, the rest fill in the
		// type variables found in the metadata
		return Substitute(base, binding), substituteMeta(inner, binding), nil
	case Annotated:
		local, err := flattenMeta(x.Meta)
		if err != nil {
			return nil, nil, err
		}
		combined := make([]any, 0, len(local)+len(meta))
		combined = append(combined, local...)
		combined = append(combined, meta...)
		return resolve(x.Inner, combined, args)
	case Union:
		members := make([]Expr, 0, len(x.Members))
		var hoisted []any
		for _, m := range x.Members {
			base, mm, err := resolve(m, nil, nil)
			if err != nil {
				return nil, nil, err
			}
			members = append(members, base)
			hoisted = append(hoisted, mm...)
		}
		rebuilt := Or(members...)
		if len(hoisted) == 0 {
			return rebuilt, meta, nil
		}
		combined := make([]any, 0, len(meta)+len(hoisted))
		combined = append(combined, meta...)
		combined = append(combined, hoisted...)
		return rebuilt, combined, nil
	default:
		return e, meta, nil
	}
}

func resolveSubstituted(e Expr) (Expr, []any, error) {
	base, meta, err := resolve(e, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return base, meta, nil
}

// flattenMeta pulls the metadata out of metadata entries that are
// themselves Annotated, recursively.
func flattenMeta(meta []any) ([]any, error) {
	out := make([]any, 0, len(meta))
	for _, m := range meta {
		switch x := m.(type) {
		case Annotated:
			_, inner, err := resolve(x, nil, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		case *Alias:
			_, inner, err := resolve(x, nil, nil)
			if err != nil {
				return nil, err
			}
			if len(inner) == 0 {
				out = append(out, m)
				continue
			}
			out = append(out, inner...)
		default:
			out = append(out, m)
		}
	}
	return out, nil
}

// bind maps an alias's type variables to its arguments positionally.
// Each distinct type variable is bound once.
func bind(a *Alias, args []Expr) (map[*TypeVar]Expr, error) {
	if len(args) != len(a.Params) {
		return nil, errors.Errorf("alias %s takes %d type arguments, got %d", a.Name, len(a.Params), len(args))
	}
	binding := make(map[*TypeVar]Expr, len(args))
	i := 0
	for _, v := range a.Params {
		if _, done := binding[v]; done {
			continue
		}
		binding[v] = args[i]
		i++
	}
	return binding, nil
}

// Substitute replaces type variables in e using binding.  Unbound
// variables are left in place.
func Substitute(e Expr, binding map[*TypeVar]Expr) Expr {
	switch x := e.(type) {
	case *TypeVar:
		if b, ok := binding[x]; ok {
			return b
		}
		return x
	case Generic:
		return Generic{Origin: x.Origin, Args: substituteList(x.Args, binding)}
	case Union:
		return Or(substituteList(x.Members, binding)...)
	case Annotated:
		return Annotated{Inner: Substitute(x.Inner, binding), Meta: substituteMeta(x.Meta, binding)}
	case *Alias:
		if len(x.args) == 0 {
			return x
		}
		return x.Of(substituteList(x.args, binding)...)
	}
	return e
}

func substituteList(list []Expr, binding map[*TypeVar]Expr) []Expr {
	out := make([]Expr, len(list))
	for i, e := range list {
		out[i] = Substitute(e, binding)
	}
	return out
}

func substituteMeta(meta []any, binding map[*TypeVar]Expr) []any {
	out := make([]any, len(meta))
	for i, m := range meta {
		if e, ok := m.(Expr); ok {
			out[i] = Substitute(e, binding)
			continue
		}
		out[i] = m
	}
	return out
}

func collectVars(e Expr, seen []*TypeVar) []*TypeVar {
	add := func(v *TypeVar) {
		for _, s := range seen {
			if s == v {
				return
			}
		}
		seen = append(seen, v)
	}
	switch x := e.(type) {
	case *TypeVar:
		add(x)
	case Generic:
		for _, a := range x.Args {
			seen = collectVars(a, seen)
		}
	case Union:
		for _, m := range x.Members {
			seen = collectVars(m, seen)
		}
	case Annotated:
		seen = collectVars(x.Inner, seen)
		for _, m := range x.Meta {
			if me, ok := m.(Expr); ok {
				seen = collectVars(me, seen)
			}
		}
	case *Alias:
		for _, a := range x.args {
			seen = collectVars(a, seen)
		}
	}
	return seen
}

// Concrete returns the Go type for an expression.  Metadata is
// ignored.  A union of T and Nil is *T, or T when T can already be
// nil.  Any other union is interface{}.  Nil is a nil reflect.Type.
func Concrete(e Expr) (reflect.Type, error) {
	base, _, err := Resolve(e)
	if err != nil {
		return nil, err
	}
	switch x := base.(type) {
	case Type:
		return x.T, nil
	case nilExpr:
		return nil, nil
	case *TypeVar:
		return nil, errors.Wrap(ErrUnboundTypeVar, x.Name)
	case Generic:
		if len(x.Args) != x.Origin.Arity() {
			return nil, errors.Errorf("%s takes %d type arguments, got %d", x.Origin.Name(), x.Origin.Arity(), len(x.Args))
		}
		args := make([]reflect.Type, len(x.Args))
		for i, a := range x.Args {
			t, err := Concrete(a)
			if err != nil {
				return nil, err
			}
			if t == nil {
				return nil, errors.Errorf("nil type argument to %s", x.Origin.Name())
			}
			args[i] = t
		}
		return x.Origin.Instantiate(args)
	case Union:
		nonNil := NonNil(x)
		if len(nonNil) == 1 {
			t, err := Concrete(nonNil[0])
			if err != nil {
				return nil, err
			}
			if t == nil || Nillable(t) {
				return t, nil
			}
			return reflect.PointerTo(t), nil
		}
		return anyType, nil
	}
	return nil, errors.Errorf("cannot make a concrete type from %s", base)
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()
