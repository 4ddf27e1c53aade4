package nparam

import (
	"reflect"

	"github.com/muir/nhttp/ncodec"

	"github.com/pkg/errors"
)

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	stringType   = reflect.TypeOf("")
	stringsType  = reflect.TypeOf([]string(nil))
	bytesType    = reflect.TypeOf([]byte(nil))
	formDataType = reflect.TypeOf((*FormData)(nil))
)

// TextDecoderFor picks the decoder for a path, query, header, or
// cookie parameter: the explicit decoder from the metadata if there
// is one, otherwise the registry's decoder for t.
func TextDecoderFor(reg *ncodec.Registry, t reflect.Type, meta Merged, multivals bool) (TextDecode, error) {
	if meta.Decoder != nil {
		return adaptTextDecoder(meta.Decoder, t, multivals)
	}
	opts := ncodec.TextOptions{
		Delimiter: meta.Delimiter,
		Content:   meta.Content,
		Layouts:   meta.Constraint.TimeLayouts(),
	}
	if multivals {
		mu, err := reg.MultiDecoder(t, opts)
		if err != nil {
			return nil, err
		}
		return func(values []string) (reflect.Value, error) {
			target := reflect.New(t).Elem()
			return target, mu(target, values)
		}, nil
	}
	u, err := reg.TextDecoder(t, opts)
	if err != nil {
		return nil, err
	}
	return func(values []string) (reflect.Value, error) {
		target := reflect.New(t).Elem()
		return target, u(target, values[0])
	}, nil
}

// BodyDecoderFor picks the decoder for a body parameter
func BodyDecoderFor(reg *ncodec.Registry, t reflect.Type, meta Merged, contentType string) (func([]byte) (reflect.Value, error), error) {
	if meta.Decoder != nil {
		return adaptBodyDecoder(meta.Decoder, t)
	}
	dec, err := reg.BodyDecoder(t, contentType)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

// decoderShape checks that fn is func(in) out or func(in) (out, error)
// with out assignable to t, and returns its input type.
func decoderShape(fn interface{}, t reflect.Type) (reflect.Value, reflect.Type, error) {
	v := reflect.ValueOf(fn)
	ft := v.Type()
	if ft.Kind() != reflect.Func || ft.NumIn() != 1 {
		return reflect.Value{}, nil, errors.Errorf("decoder must be a function of one argument, got %s", ft)
	}
	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errorType {
			return reflect.Value{}, nil, errors.Errorf("decoder second return must be error, got %s", ft.Out(1))
		}
	default:
		return reflect.Value{}, nil, errors.Errorf("decoder must return a value and optionally an error, got %s", ft)
	}
	if !ft.Out(0).AssignableTo(t) {
		return reflect.Value{}, nil, errors.Errorf("decoder returns %s, not assignable to %s", ft.Out(0), t)
	}
	return v, ft.In(0), nil
}

func callDecoder(fn reflect.Value, in reflect.Value, t reflect.Type) (reflect.Value, error) {
	out := fn.Call([]reflect.Value{in})
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}
	target := reflect.New(t).Elem()
	target.Set(out[0])
	return target, nil
}

func adaptTextDecoder(fn interface{}, t reflect.Type, multivals bool) (TextDecode, error) {
	v, in, err := decoderShape(fn, t)
	if err != nil {
		return nil, err
	}
	switch in {
	case stringType:
		return func(values []string) (reflect.Value, error) {
			return callDecoder(v, reflect.ValueOf(values[0]), t)
		}, nil
	case stringsType:
		return func(values []string) (reflect.Value, error) {
			return callDecoder(v, reflect.ValueOf(values), t)
		}, nil
	case bytesType:
		if multivals {
			return nil, errors.Errorf("decoder for repeated values must take []string, not %s", in)
		}
		return func(values []string) (reflect.Value, error) {
			return callDecoder(v, reflect.ValueOf([]byte(values[0])), t)
		}, nil
	}
	return nil, errors.Errorf("text decoder must take string, []string, or []byte, not %s", in)
}

func adaptBodyDecoder(fn interface{}, t reflect.Type) (func([]byte) (reflect.Value, error), error) {
	v, in, err := decoderShape(fn, t)
	if err != nil {
		return nil, err
	}
	switch in {
	case bytesType:
		return func(body []byte) (reflect.Value, error) {
			return callDecoder(v, reflect.ValueOf(body), t)
		}, nil
	case stringType:
		return func(body []byte) (reflect.Value, error) {
			return callDecoder(v, reflect.ValueOf(string(body)), t)
		}, nil
	}
	return nil, errors.Errorf("body decoder must take []byte or string, not %s", in)
}

func adaptFormDecoder(fn interface{}, t reflect.Type) (func(*FormData) (reflect.Value, error), error) {
	if f, ok := fn.(func(*FormData) (interface{}, error)); ok {
		return func(form *FormData) (reflect.Value, error) {
			out, err := f(form)
			if err != nil {
				return reflect.Value{}, err
			}
			rv := reflect.ValueOf(out)
			if !rv.IsValid() || !rv.Type().AssignableTo(t) {
				return reflect.Value{}, errors.Errorf("form decoder returned %T, not %s", out, t)
			}
			target := reflect.New(t).Elem()
			target.Set(rv)
			return target, nil
		}, nil
	}
	v, in, err := decoderShape(fn, t)
	if err != nil {
		return nil, err
	}
	if in != formDataType {
		return nil, errors.Errorf("form decoder must take *nparam.FormData, not %s", in)
	}
	return func(form *FormData) (reflect.Value, error) {
		return callDecoder(v, reflect.ValueOf(form), t)
	}, nil
}
