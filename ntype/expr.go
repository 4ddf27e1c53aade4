package ntype

import (
	"fmt"
	"reflect"
	"strings"
)

// Expr is a node in a type expression.  Go has no runtime notion of
// annotated types, unions, or generic aliases so handler parameter types
// that need them are described with an Expr tree instead.  The
// implementations are Type, Generic, Union, Annotated, *Alias, *TypeVar,
// ForwardRef, and Nil.
type Expr interface {
	fmt.Stringer
	isExpr()
}

// Type is a bare Go type.
type Type struct {
	T reflect.Type
}

// Of returns the Type for T.
func Of[T any]() Type {
	return Type{T: reflect.TypeFor[T]()}
}

// TypeOf wraps a reflect.Type.  A nil reflect.Type becomes Nil.
func TypeOf(t reflect.Type) Expr {
	if t == nil {
		return Nil
	}
	return Type{T: t}
}

func (Type) isExpr() {}

func (t Type) String() string {
	if t.T == nil {
		return "<nil>"
	}
	return t.T.String()
}

type nilExpr struct{}

func (nilExpr) isExpr()        {}
func (nilExpr) String() string { return "nil" }

// Nil is the empty type: no value.  A Union that includes Nil
// describes an optional value.
var Nil Expr = nilExpr{}

// Generic is an instantiation of a container type such as a slice or
// map.  Args may contain type variables; see Alias.
type Generic struct {
	Origin Origin
	Args   []Expr
}

func (Generic) isExpr() {}

func (g Generic) String() string {
	return g.Origin.Name() + "[" + joinExprs(g.Args, ", ") + "]"
}

// SliceOf is Generic{Slice, elem}
func SliceOf(elem Expr) Generic { return Generic{Origin: Slice, Args: []Expr{elem}} }

// MapOf is Generic{Map, key, value}
func MapOf(key, value Expr) Generic { return Generic{Origin: Map, Args: []Expr{key, value}} }

// SetOf is Generic{Set, elem}: a map[elem]struct{}
func SetOf(elem Expr) Generic { return Generic{Origin: Set, Args: []Expr{elem}} }

// PointerTo is Generic{Pointer, elem}
func PointerTo(elem Expr) Generic { return Generic{Origin: Pointer, Args: []Expr{elem}} }

// ArrayOf is Generic{Array(n), elem}
func ArrayOf(n int, elem Expr) Generic { return Generic{Origin: Array(n), Args: []Expr{elem}} }

// Union is a set of alternatives.  Build unions with Or so that
// nested unions are flattened and duplicates removed.
type Union struct {
	Members []Expr
}

func (Union) isExpr() {}

func (u Union) String() string {
	return joinExprs(u.Members, " | ")
}

// Or builds a union.  Nested unions are flattened, duplicate members
// dropped, and a single surviving member is returned by itself.
func Or(members ...Expr) Expr {
	flat := make([]Expr, 0, len(members))
	var add func(e Expr)
	add = func(e Expr) {
		if u, ok := e.(Union); ok {
			for _, m := range u.Members {
				add(m)
			}
			return
		}
		for _, existing := range flat {
			if Equal(existing, e) {
				return
			}
		}
		flat = append(flat, e)
	}
	for _, m := range members {
		add(m)
	}
	switch len(flat) {
	case 0:
		return Nil
	case 1:
		return flat[0]
	}
	return Union{Members: flat}
}

// Optional is Or(e, Nil)
func Optional(e Expr) Expr {
	return Or(e, Nil)
}

// Annotated attaches ordered metadata to an expression.
type Annotated struct {
	Inner Expr
	Meta  []any
}

func (Annotated) isExpr() {}

func (a Annotated) String() string {
	parts := make([]string, 0, len(a.Meta)+1)
	parts = append(parts, a.Inner.String())
	for _, m := range a.Meta {
		parts = append(parts, fmt.Sprintf("%v", m))
	}
	return "Annotated[" + strings.Join(parts, ", ") + "]"
}

// Annotate builds an Annotated.
func Annotate(inner Expr, meta ...any) Annotated {
	return Annotated{Inner: inner, Meta: meta}
}

// TypeVar is a type variable used inside alias definitions.  Type
// variables are compared by identity.
type TypeVar struct {
	Name string
}

func (*TypeVar) isExpr() {}

func (v *TypeVar) String() string { return v.Name }

// Var creates a new type variable.
func Var(name string) *TypeVar {
	return &TypeVar{Name: name}
}

// Alias is a named type alias, possibly generic.  An Alias with
// parameters is subscripted with Of:
//
//	V := ntype.Var("V")
//	StrDict := ntype.NewAlias("StrDict", ntype.MapOf(ntype.Of[string](), V), V)
//	StrDict.Of(ntype.Of[int]()) // resolves to map[string]int
type Alias struct {
	Name   string
	Params []*TypeVar
	Value  Expr
	args   []Expr
}

func (*Alias) isExpr() {}

func (a *Alias) String() string {
	if len(a.args) == 0 {
		return a.Name
	}
	return a.Name + "[" + joinExprs(a.args, ", ") + "]"
}

// NewAlias defines an alias.  When params is empty, the type variables
// are collected from value in order of first appearance.
func NewAlias(name string, value Expr, params ...*TypeVar) *Alias {
	if len(params) == 0 {
		params = collectVars(value, nil)
	}
	return &Alias{
		Name:   name,
		Params: params,
		Value:  value,
	}
}

// Of subscripts the alias.  The original alias is not modified.
func (a *Alias) Of(args ...Expr) *Alias {
	c := *a
	c.args = append([]Expr(nil), args...)
	return &c
}

// Args returns the type arguments supplied with Of.
func (a *Alias) Args() []Expr { return a.args }

// ForwardRef is a type referenced by name only.  Forward references
// cannot be resolved.
type ForwardRef struct {
	Name string
}

func (ForwardRef) isExpr() {}

func (f ForwardRef) String() string { return "'" + f.Name + "'" }

func joinExprs(exprs []Expr, sep string) string {
	s := make([]string, len(exprs))
	for i, e := range exprs {
		if e == nil {
			s[i] = "nil"
			continue
		}
		s[i] = e.String()
	}
	return strings.Join(s, sep)
}

// Equal compares two expressions structurally.  Metadata is compared
// with reflect.DeepEqual.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case Type:
		y, ok := b.(Type)
		return ok && x.T == y.T
	case nilExpr:
		_, ok := b.(nilExpr)
		return ok
	case *TypeVar:
		y, ok := b.(*TypeVar)
		return ok && x == y
	case ForwardRef:
		y, ok := b.(ForwardRef)
		return ok && x.Name == y.Name
	case Generic:
		y, ok := b.(Generic)
		return ok && x.Origin == y.Origin && equalList(x.Args, y.Args)
	case Union:
		y, ok := b.(Union)
		return ok && equalList(x.Members, y.Members)
	case Annotated:
		y, ok := b.(Annotated)
		return ok && Equal(x.Inner, y.Inner) && reflect.DeepEqual(x.Meta, y.Meta)
	case *Alias:
		y, ok := b.(*Alias)
		return ok && x.Name == y.Name && Equal(x.Value, y.Value) && equalList(x.args, y.args)
	}
	return a == nil && b == nil
}

func equalList(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
