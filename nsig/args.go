package nsig

import (
	"github.com/muir/nhttp/ntype"
)

// Arg describes one handler parameter.  Go reflection does not keep
// parameter names so they are given when the endpoint is declared:
//
//	p.Parse(getUser,
//		nsig.Arg("id"),
//		nsig.Arg("verbose", nparam.Query()).Default(false),
//		nsig.Arg("auth", nparam.Header(nparam.Alias("Authorization"))))
type ArgSpec struct {
	name       string
	meta       []interface{}
	def        interface{}
	hasDefault bool
	expr       ntype.Expr
}

// Arg names a handler parameter and attaches metadata to its type
func Arg(name string, meta ...interface{}) ArgSpec {
	return ArgSpec{name: name, meta: meta}
}

// Names builds plain Args
func Names(names ...string) []ArgSpec {
	args := make([]ArgSpec, len(names))
	for i, n := range names {
		args[i] = Arg(n)
	}
	return args
}

// Default gives the parameter a default used when it is absent
func (a ArgSpec) Default(v interface{}) ArgSpec {
	a.def = v
	a.hasDefault = true
	return a
}

// As replaces the parameter's type expression, for example to use a
// generic alias.  The expression must resolve to a type assignable
// to the Go parameter.  Metadata given to Arg is added after the
// expression's own.
func (a ArgSpec) As(expr ntype.Expr) ArgSpec {
	a.expr = expr
	return a
}

// Name is the parameter name
func (a ArgSpec) Name() string { return a.name }
