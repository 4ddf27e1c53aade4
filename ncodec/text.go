package ncodec

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Unpacker decodes a single wire value into target.  Target is
// always settable.
type Unpacker func(target reflect.Value, value string) error

// MultiUnpacker decodes every occurrence of a repeated wire value
// into target.
type MultiUnpacker func(target reflect.Value, values []string) error

// TextOptions adjust how text values are decoded
type TextOptions struct {
	// Delimiter, when set, splits each value of a sequence
	// further: "a,b&c" becomes three elements with ",".
	Delimiter string
	// Content names a body content type (like "application/json")
	// used to decode the text instead of the kind-driven decoders.
	Content string
	// Layouts replace time.RFC3339Nano for time.Time values
	Layouts []string
}

var (
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	durationType        = reflect.TypeOf(time.Duration(0))
	timeType            = reflect.TypeOf(time.Time{})
	bytesType           = reflect.TypeOf([]byte(nil))
	emptyStructType     = reflect.TypeOf(struct{}{})
)

// TextDecoder returns an unpacker for path, query, header, and
// cookie values of type t.
func (r *Registry) TextDecoder(t reflect.Type, opts TextOptions) (Unpacker, error) {
	if u, ok := r.lookupText(t); ok {
		return u, nil
	}
	if opts.Content != "" {
		return r.contentUnpacker(t, opts.Content)
	}
	if t == timeType && len(opts.Layouts) > 0 {
		return timeUnpacker(opts.Layouts), nil
	}
	if t == durationType {
		return func(target reflect.Value, value string) error {
			d, err := time.ParseDuration(value)
			if err != nil {
				return errors.Errorf("%q is not a valid duration", value)
			}
			target.SetInt(int64(d))
			return nil
		}, nil
	}
	if t.Implements(textUnmarshalerType) && t.Kind() != reflect.Ptr && t.Kind() != reflect.Interface {
		return func(target reflect.Value, value string) error {
			return target.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value))
		}, nil
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(target reflect.Value, value string) error {
			return target.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value))
		}, nil
	}
	if t == bytesType {
		return func(target reflect.Value, value string) error {
			target.SetBytes([]byte(value))
			return nil
		}, nil
	}

	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Ptr:
		vu, err := r.TextDecoder(t.Elem(), opts)
		if err != nil {
			return nil, err
		}
		return func(target reflect.Value, value string) error {
			p := reflect.New(t.Elem())
			if err := vu(p.Elem(), value); err != nil {
				return err
			}
			target.Set(p)
			return nil
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(target reflect.Value, value string) error {
			i, err := strconv.ParseInt(strings.TrimSpace(value), 10, t.Bits())
			if err != nil {
				return numError(value, t, err)
			}
			target.SetInt(i)
			return nil
		}, nil
	case reflect.Uint, reflect.Uintptr, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(target reflect.Value, value string) error {
			i, err := strconv.ParseUint(strings.TrimSpace(value), 10, t.Bits())
			if err != nil {
				return numError(value, t, err)
			}
			target.SetUint(i)
			return nil
		}, nil
	case reflect.Float32, reflect.Float64:
		return func(target reflect.Value, value string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(value), t.Bits())
			if err != nil {
				return numError(value, t, err)
			}
			target.SetFloat(f)
			return nil
		}, nil
	case reflect.Complex64, reflect.Complex128:
		return func(target reflect.Value, value string) error {
			c, err := strconv.ParseComplex(value, t.Bits())
			if err != nil {
				return numError(value, t, err)
			}
			target.SetComplex(c)
			return nil
		}, nil
	case reflect.String:
		return func(target reflect.Value, value string) error {
			target.SetString(value)
			return nil
		}, nil
	case reflect.Bool:
		return func(target reflect.Value, value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return errors.Errorf("%q is not a valid boolean", value)
			}
			target.SetBool(b)
			return nil
		}, nil
	case reflect.Slice, reflect.Array, reflect.Map:
		// a sequence sent as one value, "1,2,3"
		mu, err := r.MultiDecoder(t, TextOptions{Delimiter: ",", Layouts: opts.Layouts})
		if err != nil {
			return nil, err
		}
		return func(target reflect.Value, value string) error {
			return mu(target, []string{value})
		}, nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return func(target reflect.Value, value string) error {
				target.Set(reflect.ValueOf(value))
				return nil
			}, nil
		}
	}
	return nil, errors.Errorf("cannot decode text into %s: it does not implement encoding.TextUnmarshaler", t)
}

// MultiDecoder returns an unpacker for repeated values of a slice,
// array, or set type t.
func (r *Registry) MultiDecoder(t reflect.Type, opts TextOptions) (MultiUnpacker, error) {
	split := func(values []string) []string {
		if opts.Delimiter == "" {
			return values
		}
		var out []string
		for _, v := range values {
			out = append(out, strings.Split(v, opts.Delimiter)...)
		}
		return out
	}
	elemOpts := TextOptions{Content: opts.Content, Layouts: opts.Layouts}

	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Ptr:
		mu, err := r.MultiDecoder(t.Elem(), opts)
		if err != nil {
			return nil, err
		}
		return func(target reflect.Value, values []string) error {
			p := reflect.New(t.Elem())
			if err := mu(p.Elem(), values); err != nil {
				return err
			}
			target.Set(p)
			return nil
		}, nil
	case reflect.Slice:
		single, err := r.TextDecoder(t.Elem(), elemOpts)
		if err != nil {
			return nil, err
		}
		return func(target reflect.Value, values []string) error {
			values = split(values)
			a := reflect.MakeSlice(t, len(values), len(values))
			for i, value := range values {
				if err := single(a.Index(i), value); err != nil {
					return errors.Wrapf(err, "item %d", i)
				}
			}
			target.Set(a)
			return nil
		}, nil
	case reflect.Array:
		single, err := r.TextDecoder(t.Elem(), elemOpts)
		if err != nil {
			return nil, err
		}
		return func(target reflect.Value, values []string) error {
			values = split(values)
			if len(values) != t.Len() {
				return errors.Errorf("expected %d values, got %d", t.Len(), len(values))
			}
			a := reflect.New(t).Elem()
			for i, value := range values {
				if err := single(a.Index(i), value); err != nil {
					return errors.Wrapf(err, "item %d", i)
				}
			}
			target.Set(a)
			return nil
		}, nil
	case reflect.Map:
		if t.Elem() != emptyStructType {
			return nil, errors.Errorf("cannot decode repeated values into %s", t)
		}
		single, err := r.TextDecoder(t.Key(), elemOpts)
		if err != nil {
			return nil, err
		}
		return func(target reflect.Value, values []string) error {
			values = split(values)
			m := reflect.MakeMapWithSize(t, len(values))
			for _, value := range values {
				k := reflect.New(t.Key()).Elem()
				if err := single(k, value); err != nil {
					return err
				}
				m.SetMapIndex(k, reflect.Zero(emptyStructType))
			}
			target.Set(m)
			return nil
		}, nil
	}
	return nil, errors.Errorf("cannot decode repeated values into %s", t)
}

// contentUnpacker decodes text with a body unmarshaler, for values
// tagged with a content type like "application/json".
func (r *Registry) contentUnpacker(t reflect.Type, contentType string) (Unpacker, error) {
	unmarshal, ok := r.unmarshaler(contentType)
	if !ok {
		return nil, errors.Errorf("no decoder provided for content type '%s'", contentType)
	}
	return func(target reflect.Value, value string) error {
		p := reflect.New(t)
		if err := unmarshal([]byte(value), p.Interface()); err != nil {
			return Malformed(err)
		}
		target.Set(p.Elem())
		return nil
	}, nil
}

func timeUnpacker(layouts []string) Unpacker {
	return func(target reflect.Value, value string) error {
		for _, layout := range layouts {
			tm, err := time.Parse(layout, value)
			if err == nil {
				target.Set(reflect.ValueOf(tm))
				return nil
			}
		}
		return errors.Errorf("%q does not match time layout %s", value, layouts[0])
	}
}

func numError(value string, t reflect.Type, err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) && ne.Err == strconv.ErrRange {
		return errors.Errorf("%q is out of range for %s", value, t)
	}
	return errors.Errorf("%q is not a valid %s", value, t)
}
