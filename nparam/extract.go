package nparam

import (
	"reflect"

	"github.com/pkg/errors"
)

// Lookup returns every value sent for a wire key
type Lookup func(key string) []string

// TextDecode turns wire text into a value.  Single valued parameters
// get exactly one value.
type TextDecode func(values []string) (reflect.Value, error)

// RequestParam reads one path, query, header, or cookie value.
type RequestParam struct {
	Name   string
	Alias  string
	Source Source
	Type   reflect.Type
	// Multivals reads every occurrence of the key instead of the first
	Multivals  bool
	Decode     TextDecode
	Check      Check
	Default    interface{}
	HasDefault bool
	// Pack and Field are set for fields of a param pack: the name
	// of the pack parameter and the field's index in the struct
	Pack  string
	Field []int
}

// NewRequestParam validates a RequestParam.  Path parameters cannot
// have defaults.
func NewRequestParam(p RequestParam) (*RequestParam, error) {
	if p.Alias == "" {
		p.Alias = p.Name
	}
	if p.Decode == nil {
		return nil, &InvalidParamError{Name: p.Name, Reason: "no decoder"}
	}
	// nolint:exhaustive
	switch p.Source {
	case SourcePath:
		if p.HasDefault {
			return nil, NotSupported("path param %s with a default value", p.Name)
		}
		if p.Multivals {
			return nil, NotSupported("path param %s with multiple values", p.Name)
		}
	case SourceQuery, SourceHeader, SourceCookie:
	default:
		return nil, &InvalidParamSourceError{Source: string(p.Source)}
	}
	return &p, nil
}

// Required is true when there is no default
func (p *RequestParam) Required() bool { return !p.HasDefault }

// Key is unique within a signature: the name, qualified by the pack
// for pack fields
func (p *RequestParam) Key() string {
	if p.Pack != "" {
		return p.Pack + "." + p.Name
	}
	return p.Name
}

func (p *RequestParam) String() string {
	return string(p.Source) + " " + p.Key() + " " + p.Type.String()
}

// Extract finds and decodes the parameter
func (p *RequestParam) Extract(lookup Lookup) (interface{}, *Problem) {
	values := lookup(p.Alias)
	if len(values) == 0 {
		if p.HasDefault {
			return copyValue(p.Default), nil
		}
		return nil, NewProblem(MissingRequestParam, p.Source, p.Alias, "")
	}
	if !p.Multivals {
		values = values[:1]
	}
	return p.Validate(values)
}

// Validate decodes and checks raw values
func (p *RequestParam) Validate(values []string) (interface{}, *Problem) {
	v, err := p.Decode(values)
	if err == nil && p.Check != nil {
		err = p.Check(v)
	}
	if err != nil {
		return nil, problemFor(p.Source, p.Name, err)
	}
	return v.Interface(), nil
}

// BodyParam decodes the request body
type BodyParam struct {
	Name        string
	Type        reflect.Type
	ContentType string
	Decode      func(body []byte) (reflect.Value, error)
	Check       Check
	Default     interface{}
	HasDefault  bool
}

func (p *BodyParam) String() string {
	return "body<" + p.ContentType + "> " + p.Name + " " + p.Type.String()
}

// Extract decodes a body.  An empty body is missing.
func (p *BodyParam) Extract(body []byte) (interface{}, *Problem) {
	if len(body) == 0 {
		if p.HasDefault {
			return copyValue(p.Default), nil
		}
		return nil, NewProblem(MissingRequestParam, SourceBody, p.Name, "")
	}
	v, err := p.Decode(body)
	if err == nil && p.Check != nil {
		err = p.Check(v)
	}
	if err != nil {
		return nil, problemFor(SourceBody, p.Name, err)
	}
	return v.Interface(), nil
}

// FormParam decodes a multipart or url-encoded form body
type FormParam struct {
	Name       string
	Type       reflect.Type
	Meta       *FormMeta
	Decode     func(form *FormData) (reflect.Value, error)
	Default    interface{}
	HasDefault bool
}

func (p *FormParam) String() string {
	return "form " + p.Name + " " + p.Type.String()
}

// Extract decodes a parsed form.  An empty form is missing.
func (p *FormParam) Extract(form *FormData) (interface{}, *Problem) {
	if form == nil || form.Len() == 0 {
		if p.HasDefault {
			return copyValue(p.Default), nil
		}
		return nil, NewProblem(MissingRequestParam, SourceBody, p.Name, "")
	}
	v, err := p.Decode(form)
	if err != nil {
		return nil, problemFor(SourceBody, p.Name, err)
	}
	return v.Interface(), nil
}

// PackParam rebuilds a struct whose fields were read as separate
// parameters.
type PackParam struct {
	Name   string
	Type   reflect.Type
	Fields []*RequestParam
}

func (p *PackParam) String() string {
	return "pack " + p.Name + " " + p.Type.String()
}

// Assemble builds the struct from field values keyed by field
// parameter name.  Missing fields are left zero.
func (p *PackParam) Assemble(values map[string]interface{}) (interface{}, error) {
	ptr := p.Type.Kind() == reflect.Ptr
	st := p.Type
	if ptr {
		st = st.Elem()
	}
	out := reflect.New(st)
	for _, f := range p.Fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		field := out.Elem().FieldByIndex(f.Field)
		if !rv.Type().AssignableTo(field.Type()) {
			return nil, errors.Errorf("pack %s field %s: cannot use %s as %s", p.Name, f.Name, rv.Type(), field.Type())
		}
		field.Set(rv)
	}
	if ptr {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}

// copyValue deep copies slices and maps so that defaults are not
// shared between requests.
func copyValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	// nolint:exhaustive
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return deepCopy(rv).Interface()
	}
	return v
}

func deepCopy(v reflect.Value) reflect.Value {
	// nolint:exhaustive
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			c.Index(i).Set(deepCopy(v.Index(i)))
		}
		return c
	case reflect.Array:
		c := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			c.Index(i).Set(deepCopy(v.Index(i)))
		}
		return c
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		c := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			c.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return c
	}
	return v
}
