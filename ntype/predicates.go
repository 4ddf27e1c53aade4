package ntype

import (
	"encoding"
	"reflect"
	"time"
)

var (
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	timeType            = reflect.TypeOf(time.Time{})
	bytesType           = reflect.TypeOf([]byte(nil))
)

// IsUnion reports whether e is a Union
func IsUnion(e Expr) bool {
	_, ok := e.(Union)
	return ok
}

// Members returns the members of a union, or e alone.
func Members(e Expr) []Expr {
	if u, ok := e.(Union); ok {
		return u.Members
	}
	return []Expr{e}
}

// ContainsNil reports whether e is Nil or a union including Nil
func ContainsNil(e Expr) bool {
	for _, m := range Members(e) {
		if _, ok := m.(nilExpr); ok {
			return true
		}
	}
	return false
}

// NonNil returns the union members other than Nil
func NonNil(e Expr) []Expr {
	var out []Expr
	for _, m := range Members(e) {
		if _, ok := m.(nilExpr); !ok {
			out = append(out, m)
		}
	}
	return out
}

// IsGeneric reports whether e still contains unbound type variables
func IsGeneric(e Expr) bool {
	return len(collectVars(e, nil)) > 0
}

// IsTextual reports whether e is a string or []byte, or a union
// containing one.
func IsTextual(e Expr) bool {
	for _, m := range Members(e) {
		t, err := Concrete(m)
		if err != nil || t == nil {
			continue
		}
		if t.Kind() == reflect.String || t == bytesType {
			return true
		}
	}
	return false
}

// IsScalar reports whether values of t are written as a single text
// value: booleans, numbers, strings, and types that implement
// encoding.TextUnmarshaler.  Pointers to scalars are scalars.
func IsScalar(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(textUnmarshalerType) || reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return true
	}
	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Ptr:
		return IsScalar(t.Elem())
	}
	return t == bytesType
}

// IsStructured reports whether t looks like a payload: a struct or a
// map, or a pointer to one.  time.Time and other text-decodable structs
// are scalars, not structured.
func IsStructured(t reflect.Type) bool {
	if t == nil || IsScalar(t) {
		return false
	}
	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Struct:
		return true
	case reflect.Map:
		return !IsSet(t)
	case reflect.Ptr:
		return IsStructured(t.Elem())
	}
	return false
}

// IsStructuredExpr is IsStructured over every non-nil member of a
// resolved expression.  A union is structured if any member is.
func IsStructuredExpr(e Expr) bool {
	for _, m := range NonNil(e) {
		t, err := Concrete(m)
		if err == nil && IsStructured(t) {
			return true
		}
	}
	return false
}

// IsNonTextualSequence reports whether t holds repeated values: a
// slice other than []byte, an array, or a set.
func IsNonTextualSequence(t reflect.Type) bool {
	if t == nil || t == bytesType || t.Implements(textUnmarshalerType) {
		return false
	}
	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return true
	case reflect.Map:
		return IsSet(t)
	case reflect.Ptr:
		return IsNonTextualSequence(t.Elem())
	}
	return false
}

// IsTime reports whether t is time.Time or a pointer to one
func IsTime(t reflect.Type) bool {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t == timeType
}

// Nillable reports whether the zero value of t is nil
func Nillable(t reflect.Type) bool {
	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return true
	}
	return false
}
