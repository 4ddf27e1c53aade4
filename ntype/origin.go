package ntype

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// Origin is the type constructor of a Generic.  The built-in origins
// cover the Go composite kinds.  Callers may supply their own, for
// example to instantiate a Go generic type from a fixed set of
// instantiations.
type Origin interface {
	Name() string
	// Arity is the number of type arguments Instantiate expects.
	Arity() int
	Instantiate(args []reflect.Type) (reflect.Type, error)
}

type sliceOrigin struct{}
type mapOrigin struct{}
type setOrigin struct{}
type pointerOrigin struct{}
type chanOrigin struct{}
type arrayOrigin struct{ n int }

var (
	// Slice instantiates []E
	Slice Origin = sliceOrigin{}
	// Map instantiates map[K]V
	Map Origin = mapOrigin{}
	// Set instantiates map[E]struct{}
	Set Origin = setOrigin{}
	// Pointer instantiates *E
	Pointer Origin = pointerOrigin{}
	// Chan instantiates chan E
	Chan Origin = chanOrigin{}
)

// Array returns the origin of [n]E
func Array(n int) Origin { return arrayOrigin{n: n} }

var emptyStruct = reflect.TypeOf(struct{}{})

func (sliceOrigin) Name() string { return "slice" }
func (sliceOrigin) Arity() int   { return 1 }
func (sliceOrigin) Instantiate(args []reflect.Type) (reflect.Type, error) {
	return reflect.SliceOf(args[0]), nil
}

func (mapOrigin) Name() string { return "map" }
func (mapOrigin) Arity() int   { return 2 }
func (mapOrigin) Instantiate(args []reflect.Type) (reflect.Type, error) {
	if !args[0].Comparable() {
		return nil, errors.Errorf("map key %s is not comparable", args[0])
	}
	return reflect.MapOf(args[0], args[1]), nil
}

func (setOrigin) Name() string { return "set" }
func (setOrigin) Arity() int   { return 1 }
func (setOrigin) Instantiate(args []reflect.Type) (reflect.Type, error) {
	if !args[0].Comparable() {
		return nil, errors.Errorf("set element %s is not comparable", args[0])
	}
	return reflect.MapOf(args[0], emptyStruct), nil
}

func (pointerOrigin) Name() string { return "pointer" }
func (pointerOrigin) Arity() int   { return 1 }
func (pointerOrigin) Instantiate(args []reflect.Type) (reflect.Type, error) {
	return reflect.PointerTo(args[0]), nil
}

func (chanOrigin) Name() string { return "chan" }
func (chanOrigin) Arity() int   { return 1 }
func (chanOrigin) Instantiate(args []reflect.Type) (reflect.Type, error) {
	return reflect.ChanOf(reflect.BothDir, args[0]), nil
}

func (a arrayOrigin) Name() string { return fmt.Sprintf("array%d", a.n) }
func (arrayOrigin) Arity() int     { return 1 }
func (a arrayOrigin) Instantiate(args []reflect.Type) (reflect.Type, error) {
	if a.n < 0 {
		return nil, errors.Errorf("negative array length %d", a.n)
	}
	return reflect.ArrayOf(a.n, args[0]), nil
}

// IsSet reports whether t is a map whose value type is struct{}
func IsSet(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Map && t.Elem() == emptyStruct
}
