package ncodec

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BodyUnpacker decodes a request body
type BodyUnpacker func(body []byte) (reflect.Value, error)

// BodyDecoder returns a decoder for bodies of type t sent as
// contentType.  Structs (and pointers to structs) are validated with
// their `validate` tags after decoding.  Syntax errors are reported
// as MalformedError.
func (r *Registry) BodyDecoder(t reflect.Type, contentType string) (BodyUnpacker, error) {
	if t == bytesType {
		return func(body []byte) (reflect.Value, error) {
			return reflect.ValueOf(body), nil
		}, nil
	}
	if t.Kind() == reflect.String {
		return func(body []byte) (reflect.Value, error) {
			return reflect.ValueOf(string(body)).Convert(t), nil
		}, nil
	}
	unmarshal, ok := r.unmarshaler(contentType)
	if !ok {
		return nil, errors.Errorf("no body decoder for content type '%s'", contentType)
	}
	validate := r.structValidator(t)
	return func(body []byte) (reflect.Value, error) {
		p := reflect.New(t)
		if err := unmarshal(body, p.Interface()); err != nil {
			return reflect.Value{}, classifyUnmarshal(err)
		}
		if validate != nil {
			if err := validate(p.Elem()); err != nil {
				return reflect.Value{}, err
			}
		}
		return p.Elem(), nil
	}, nil
}

// structValidator returns nil when t has nothing to validate
func (r *Registry) structValidator(t reflect.Type) func(reflect.Value) error {
	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return nil
	}
	return func(v reflect.Value) error {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		return Explain(r.validate.Struct(v.Interface()))
	}
}

// ValidateStruct runs the struct's `validate` tags
func (r *Registry) ValidateStruct(v interface{}) error {
	f := r.structValidator(reflect.TypeOf(v))
	if f == nil {
		return nil
	}
	return f(reflect.ValueOf(v))
}

// ValidateVar checks a single value against a validator tag
func (r *Registry) ValidateVar(v interface{}, tag string) error {
	return Explain(r.validate.Var(v, tag))
}

func classifyUnmarshal(err error) error {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var yamlType *yaml.TypeError
	switch {
	case errors.As(err, &typeErr):
		return errors.Errorf("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	case errors.As(err, &yamlType):
		return errors.New(strings.Join(yamlType.Errors, "; "))
	case errors.As(err, &syntax):
		return Malformed(err)
	}
	return err
}

var tagText = map[string]string{
	"gt":       "greater than",
	"gte":      "greater than or equal to",
	"lt":       "less than",
	"lte":      "less than or equal to",
	"min":      "at least",
	"max":      "at most",
	"len":      "exactly",
	"required": "present",
	"oneof":    "one of",
	"email":    "an email address",
	"uuid":     "a UUID",
}

// Explain rewrites go-playground validation errors into readable
// messages.  Other errors are returned unchanged.
func Explain(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		what, ok := tagText[fe.Tag()]
		if !ok {
			what = "valid for '" + fe.Tag() + "'"
		}
		msg := "must be " + what
		if fe.Param() != "" {
			msg += " " + fe.Param()
		}
		if field := fe.Namespace(); field != "" {
			msg = field + " " + msg
		} else {
			msg = "value " + msg
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
